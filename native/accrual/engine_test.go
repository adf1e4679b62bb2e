package accrual

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"qstake/core/schedule"
	"qstake/native/bank"
)

// memLayer is one copy of the ledger state used by the in-memory test store.
type memLayer struct {
	epochs    map[uint64]*EpochRecord
	accounts  map[string]*AccountEpochRecord
	cursors   map[common.Address]uint64
	global    uint64
	balances  map[common.Address]*big.Int
	shareBals map[common.Address]*big.Int
}

func newMemLayer() *memLayer {
	return &memLayer{
		epochs:    make(map[uint64]*EpochRecord),
		accounts:  make(map[string]*AccountEpochRecord),
		cursors:   make(map[common.Address]uint64),
		balances:  make(map[common.Address]*big.Int),
		shareBals: make(map[common.Address]*big.Int),
	}
}

func (l *memLayer) clone() *memLayer {
	out := newMemLayer()
	for k, v := range l.epochs {
		out.epochs[k] = v.Clone()
	}
	for k, v := range l.accounts {
		out.accounts[k] = v.Clone()
	}
	for k, v := range l.cursors {
		out.cursors[k] = v
	}
	out.global = l.global
	for k, v := range l.balances {
		out.balances[k] = new(big.Int).Set(v)
	}
	for k, v := range l.shareBals {
		out.shareBals[k] = new(big.Int).Set(v)
	}
	return out
}

// memState implements LedgerState and bank.State with commit/discard
// semantics matching the production manager.
type memState struct {
	committed *memLayer
	work      *memLayer
}

func newMemState() *memState {
	return &memState{committed: newMemLayer(), work: newMemLayer()}
}

func accountKey(addr common.Address, index uint64) string {
	return fmt.Sprintf("%x/%d", addr, index)
}

func (s *memState) Commit() error {
	s.committed = s.work.clone()
	return nil
}

func (s *memState) Discard() {
	s.work = s.committed.clone()
}

func (s *memState) Epoch(index uint64) (*EpochRecord, error) {
	if rec, ok := s.work.epochs[index]; ok {
		return rec.Clone(), nil
	}
	return NewEpochRecord(), nil
}

func (s *memState) PutEpoch(index uint64, rec *EpochRecord) error {
	s.work.epochs[index] = rec.Clone()
	return nil
}

func (s *memState) AccountEpoch(addr common.Address, index uint64) (*AccountEpochRecord, error) {
	if rec, ok := s.work.accounts[accountKey(addr, index)]; ok {
		return rec.Clone(), nil
	}
	return NewAccountEpochRecord(), nil
}

func (s *memState) PutAccountEpoch(addr common.Address, index uint64, rec *AccountEpochRecord) error {
	s.work.accounts[accountKey(addr, index)] = rec.Clone()
	return nil
}

func (s *memState) GlobalCursor() (uint64, error) {
	return s.work.global, nil
}

func (s *memState) SetGlobalCursor(index uint64) error {
	s.work.global = index
	return nil
}

func (s *memState) AccountCursor(addr common.Address) (uint64, bool, error) {
	cursor, ok := s.work.cursors[addr]
	return cursor, ok, nil
}

func (s *memState) SetAccountCursor(addr common.Address, index uint64) error {
	s.work.cursors[addr] = index
	return nil
}

func (s *memState) Balance(addr common.Address) (*big.Int, error) {
	if bal, ok := s.work.balances[addr]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (s *memState) SetBalance(addr common.Address, amount *big.Int) error {
	s.work.balances[addr] = new(big.Int).Set(amount)
	return nil
}

func (s *memState) ShareBalance(addr common.Address) (*big.Int, error) {
	if bal, ok := s.work.shareBals[addr]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (s *memState) SetShareBalance(addr common.Address, amount *big.Int) error {
	s.work.shareBals[addr] = new(big.Int).Set(amount)
	return nil
}

var (
	ledgerAddr   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	treasuryAddr = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	alice        = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob          = common.HexToAddress("0x0000000000000000000000000000000000000b22")
)

type harness struct {
	state    *memState
	vault    *bank.Vault
	assets   *bank.Ledger
	treasury *bank.Treasury
	engine   *Engine
}

func newHarness(t *testing.T, boundaries []uint64, budget, treasuryFunding int64) *harness {
	t.Helper()
	sched, err := schedule.New(boundaries, big.NewInt(budget))
	if err != nil {
		t.Fatalf("new schedule: %v", err)
	}
	st := newMemState()
	assets := bank.NewLedger(st)
	vault := bank.NewVault(st)
	treasury := bank.NewTreasury(assets, treasuryAddr, ledgerAddr)
	if treasuryFunding > 0 {
		if err := assets.Mint(treasuryAddr, big.NewInt(treasuryFunding)); err != nil {
			t.Fatalf("fund treasury: %v", err)
		}
		if err := st.Commit(); err != nil {
			t.Fatalf("commit funding: %v", err)
		}
	}
	engine := NewEngine(sched, ledgerAddr)
	engine.SetState(st)
	engine.SetVault(vault)
	engine.SetTreasury(treasury)
	return &harness{state: st, vault: vault, assets: assets, treasury: treasury, engine: engine}
}

func at(ts uint64) time.Time {
	return time.Unix(int64(ts), 0).UTC()
}

func TestDepositValidation(t *testing.T) {
	h := newHarness(t, []uint64{100, 200, 300}, 20_000, 100_000)

	if _, err := h.engine.Deposit(alice, big.NewInt(0), at(150)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
	if _, err := h.engine.Deposit(common.Address{}, big.NewInt(10), at(150)); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if _, err := h.engine.Deposit(alice, big.NewInt(10), at(50)); !errors.Is(err, ErrOutsidePeriod) {
		t.Fatalf("deposit before period start: expected ErrOutsidePeriod, got %v", err)
	}
	if _, err := h.engine.Deposit(alice, big.NewInt(10), at(300)); !errors.Is(err, ErrOutsidePeriod) {
		t.Fatalf("deposit after period end: expected ErrOutsidePeriod, got %v", err)
	}
	shares, err := h.engine.Deposit(alice, big.NewInt(1_000), at(100))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if shares.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("unexpected shares: got %s want 1000", shares)
	}
	bal, err := h.vault.ShareBalanceOf(alice)
	if err != nil {
		t.Fatalf("share balance: %v", err)
	}
	if bal.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("unexpected vault balance: got %s want 1000", bal)
	}
}

func TestWithdrawBounds(t *testing.T) {
	h := newHarness(t, []uint64{100, 200, 300}, 20_000, 100_000)
	if _, err := h.engine.Deposit(alice, big.NewInt(500), at(110)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := h.engine.Withdraw(alice, big.NewInt(0), at(120)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
	if _, err := h.engine.Withdraw(alice, big.NewInt(600), at(120)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if _, err := h.engine.Withdraw(bob, big.NewInt(1), at(120)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("stranger withdrawal: expected ErrInsufficientBalance, got %v", err)
	}
	burned, err := h.engine.Withdraw(alice, big.NewInt(200), at(130))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if burned.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("unexpected burned shares: got %s want 200", burned)
	}
	rec, err := h.engine.AccountRecordAt(alice, 0)
	if err != nil {
		t.Fatalf("account record: %v", err)
	}
	if rec.Shares.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("unexpected remaining shares: got %s want 300", rec.Shares)
	}
}

func TestMintAndRedeemShares(t *testing.T) {
	h := newHarness(t, []uint64{100, 200, 300}, 20_000, 100_000)
	assets, err := h.engine.MintShares(alice, big.NewInt(400), at(100))
	if err != nil {
		t.Fatalf("mint shares: %v", err)
	}
	if assets.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("unexpected asset value: got %s want 400", assets)
	}
	released, err := h.engine.Redeem(alice, big.NewInt(150), at(120))
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if released.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("unexpected released assets: got %s want 150", released)
	}
	rec, err := h.engine.AccountRecordAt(alice, 0)
	if err != nil {
		t.Fatalf("account record: %v", err)
	}
	if rec.Shares.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("unexpected shares: got %s want 250", rec.Shares)
	}
}

func TestTransferHooksPreserveTotals(t *testing.T) {
	h := newHarness(t, []uint64{100, 200, 300}, 20_000, 100_000)
	if _, err := h.engine.Deposit(alice, big.NewInt(900), at(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	before, err := h.engine.EpochRecordAt(0)
	if err != nil {
		t.Fatalf("epoch record: %v", err)
	}
	if err := h.engine.TransferOut(alice, big.NewInt(300), at(140)); err != nil {
		t.Fatalf("transfer out: %v", err)
	}
	if err := h.engine.TransferIn(bob, big.NewInt(300), at(140)); err != nil {
		t.Fatalf("transfer in: %v", err)
	}
	after, err := h.engine.EpochRecordAt(0)
	if err != nil {
		t.Fatalf("epoch record: %v", err)
	}
	if before.TotalShares.Cmp(after.TotalShares) != 0 {
		t.Fatalf("transfer changed total shares: %s -> %s", before.TotalShares, after.TotalShares)
	}
	aliceRec, err := h.engine.AccountRecordAt(alice, 0)
	if err != nil {
		t.Fatalf("account record: %v", err)
	}
	bobRec, err := h.engine.AccountRecordAt(bob, 0)
	if err != nil {
		t.Fatalf("account record: %v", err)
	}
	if aliceRec.Shares.Cmp(big.NewInt(600)) != 0 || bobRec.Shares.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("unexpected split: alice %s bob %s", aliceRec.Shares, bobRec.Shares)
	}
	if err := h.engine.TransferOut(bob, big.NewInt(301), at(150)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestTreasuryShortfallAborts(t *testing.T) {
	// Treasury deliberately unfunded: the first rollover's pull must fail
	// and leave the ledger untouched.
	h := newHarness(t, []uint64{100, 200, 300}, 20_000, 0)
	if _, err := h.engine.Deposit(alice, big.NewInt(1_000), at(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	err := h.engine.Settle(at(250))
	if !errors.Is(err, ErrFundingShortfall) {
		t.Fatalf("expected ErrFundingShortfall, got %v", err)
	}
	cursor, err := h.engine.LastProcessedEpoch()
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if cursor != 0 {
		t.Fatalf("cursor moved despite aborted settlement: %d", cursor)
	}
	ep, err := h.engine.EpochRecordAt(0)
	if err != nil {
		t.Fatalf("epoch record: %v", err)
	}
	if ep.SharesGenerated.Sign() != 0 {
		t.Fatalf("shares generated despite aborted settlement: %s", ep.SharesGenerated)
	}
	ledgerShares, err := h.vault.ShareBalanceOf(ledgerAddr)
	if err != nil {
		t.Fatalf("ledger shares: %v", err)
	}
	if ledgerShares.Sign() != 0 {
		t.Fatalf("ledger holding minted despite abort: %s", ledgerShares)
	}

	// Funding the treasury afterwards lets the same settlement through.
	if err := h.assets.Mint(treasuryAddr, big.NewInt(100_000)); err != nil {
		t.Fatalf("fund treasury: %v", err)
	}
	if err := h.state.Commit(); err != nil {
		t.Fatalf("commit funding: %v", err)
	}
	if err := h.engine.Settle(at(250)); err != nil {
		t.Fatalf("settle after funding: %v", err)
	}
}

// reentrantVault drives a nested call into the engine from inside a vault
// operation to prove the entry-point guard rejects it.
type reentrantVault struct {
	*bank.Vault
	engine *Engine
}

func (v *reentrantVault) MintShares(to common.Address, amount *big.Int) error {
	if _, err := v.engine.Deposit(to, big.NewInt(1), at(150)); !errors.Is(err, ErrReentrantCall) {
		return errors.New("nested deposit was not rejected")
	}
	return ErrReentrantCall
}

func TestReentrancyGuard(t *testing.T) {
	h := newHarness(t, []uint64{100, 200, 300}, 20_000, 100_000)
	h.engine.SetVault(&reentrantVault{Vault: h.vault, engine: h.engine})
	if _, err := h.engine.Deposit(alice, big.NewInt(10), at(150)); !errors.Is(err, ErrReentrantCall) {
		t.Fatalf("expected ErrReentrantCall, got %v", err)
	}
	// The guard must release after the rejected call.
	h.engine.SetVault(h.vault)
	if _, err := h.engine.Deposit(alice, big.NewInt(10), at(150)); err != nil {
		t.Fatalf("deposit after rejected call: %v", err)
	}
}

func TestClaimOutsidePeriod(t *testing.T) {
	h := newHarness(t, []uint64{100, 200, 300}, 20_000, 100_000)
	if _, err := h.engine.Claim(alice, at(99)); !errors.Is(err, ErrOutsidePeriod) {
		t.Fatalf("expected ErrOutsidePeriod, got %v", err)
	}
	if _, err := h.engine.Claim(alice, at(100)); err != nil {
		t.Fatalf("claim at period start: %v", err)
	}
}
