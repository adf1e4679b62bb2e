package accrual

import (
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"qstake/core/events"
	"qstake/core/schedule"
	"qstake/observability/metrics"
)

// LedgerState describes what the engine needs from the surrounding state
// implementation. Missing records read back zero-valued; writes stay in the
// manager's overlay until Commit, so a failed operation discards everything.
type LedgerState interface {
	Epoch(index uint64) (*EpochRecord, error)
	PutEpoch(index uint64, rec *EpochRecord) error
	AccountEpoch(addr common.Address, index uint64) (*AccountEpochRecord, error)
	PutAccountEpoch(addr common.Address, index uint64, rec *AccountEpochRecord) error
	GlobalCursor() (uint64, error)
	SetGlobalCursor(index uint64) error
	AccountCursor(addr common.Address) (uint64, bool, error)
	SetAccountCursor(addr common.Address, index uint64) error
	Commit() error
	Discard()
}

// Vault is the fungible-share collaborator: share/asset conversion at its
// current exchange rate plus mint, burn and transfer of shares.
type Vault interface {
	SharesToAssets(shares *big.Int) (*big.Int, error)
	AssetsToShares(assets *big.Int) (*big.Int, error)
	MintShares(to common.Address, amount *big.Int) error
	BurnShares(from common.Address, amount *big.Int) error
	TransferShares(from, to common.Address, amount *big.Int) error
}

// Treasury is the custodian holding undistributed reward assets. Pull moves
// the requested amount into the ledger's custody and fails when underfunded.
type Treasury interface {
	Pull(amount *big.Int) error
}

// Engine is the accrual core: global epoch settlement, per-account lazy
// catch-up and the compounding bridge. Every balance-changing entry point
// settles elapsed epochs first, then catches the account up, then applies the
// effect, so no unit of reward is ever lost or counted twice.
type Engine struct {
	schedule *schedule.Schedule
	state    LedgerState
	vault    Vault
	treasury Treasury
	self     common.Address
	emitter  events.Emitter
	busy     atomic.Bool
}

// NewEngine constructs an engine bound to the emission schedule. self is the
// ledger's own address: compounding shares are minted there and handed out to
// accounts as their catch-up walks materialize them.
func NewEngine(sched *schedule.Schedule, self common.Address) *Engine {
	return &Engine{schedule: sched, self: self, emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state LedgerState) { e.state = state }

// SetVault wires the share bookkeeping collaborator.
func (e *Engine) SetVault(vault Vault) { e.vault = vault }

// SetTreasury wires the reward custodian collaborator.
func (e *Engine) SetTreasury(treasury Treasury) { e.treasury = treasury }

// SetEmitter wires an event sink. A nil emitter silences events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// Schedule exposes the emission calendar backing the engine.
func (e *Engine) Schedule() *schedule.Schedule { return e.schedule }

// LedgerAddress returns the engine's own share-holding address.
func (e *Engine) LedgerAddress() common.Address { return e.self }

func (e *Engine) ready() error {
	if e.state == nil {
		return ErrNilState
	}
	if e.vault == nil {
		return ErrNilVault
	}
	if e.treasury == nil {
		return ErrNilTreasury
	}
	return nil
}

// begin rejects re-entrant calls into any balance-changing entry point while
// one is already executing.
func (e *Engine) begin() error {
	if !e.busy.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (e *Engine) end() { e.busy.Store(false) }

func (e *Engine) discard() {
	if e.state != nil {
		e.state.Discard()
	}
}

func tsOf(now time.Time) uint64 {
	unix := now.UTC().Unix()
	if unix < 0 {
		return 0
	}
	return uint64(unix)
}

// Settle rolls forward every epoch that has fully elapsed. It is idempotent
// and callable by anyone: the cursor only moves forward and past-epoch totals
// only ever grow.
func (e *Engine) Settle(now time.Time) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	if err := e.ready(); err != nil {
		return err
	}
	ts := tsOf(now)
	if !e.schedule.Started(ts) {
		return ErrOutsidePeriod
	}
	current, _, _ := e.schedule.Locate(ts)
	if err := e.settle(current, ts); err != nil {
		e.discard()
		return err
	}
	return e.state.Commit()
}

// Deposit credits an account with the shares its assets are worth and starts
// them accruing in the current epoch. Returns the shares credited.
func (e *Engine) Deposit(addr common.Address, assets *big.Int, now time.Time) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	shares, err := e.deposit(addr, assets, nil, tsOf(now))
	if err != nil {
		e.discard()
		return nil, err
	}
	if err := e.state.Commit(); err != nil {
		return nil, err
	}
	return shares, nil
}

// MintShares credits an exact share amount, valuing it through the vault's
// current exchange rate. Returns the asset-equivalent value recorded.
func (e *Engine) MintShares(addr common.Address, shares *big.Int, now time.Time) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	assets, err := e.mintShares(addr, shares, tsOf(now))
	if err != nil {
		e.discard()
		return nil, err
	}
	if err := e.state.Commit(); err != nil {
		return nil, err
	}
	return assets, nil
}

// Withdraw burns the shares backing the requested asset amount. Returns the
// shares burned.
func (e *Engine) Withdraw(addr common.Address, assets *big.Int, now time.Time) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	shares, err := e.withdraw(addr, assets, tsOf(now))
	if err != nil {
		e.discard()
		return nil, err
	}
	if err := e.state.Commit(); err != nil {
		return nil, err
	}
	return shares, nil
}

// Redeem burns an exact share amount. Returns the asset value released.
func (e *Engine) Redeem(addr common.Address, shares *big.Int, now time.Time) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	assets, err := e.redeem(addr, shares, tsOf(now))
	if err != nil {
		e.discard()
		return nil, err
	}
	if err := e.state.Commit(); err != nil {
		return nil, err
	}
	return assets, nil
}

// TransferIn is the hook for shares arriving at an account through a vault
// transfer: the account is caught up first so the incoming shares never earn
// reward for time before they arrived.
func (e *Engine) TransferIn(addr common.Address, shares *big.Int, now time.Time) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	if err := e.transfer(addr, shares, true, tsOf(now)); err != nil {
		e.discard()
		return err
	}
	return e.state.Commit()
}

// TransferOut is the hook for shares leaving an account.
func (e *Engine) TransferOut(addr common.Address, shares *big.Int, now time.Time) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	if err := e.transfer(addr, shares, false, tsOf(now)); err != nil {
		e.discard()
		return err
	}
	return e.state.Commit()
}

// Claim forces settlement and the caller's catch-up walk, materializing any
// compounded shares. Returns the shares transferred to the account, which may
// legitimately be zero.
func (e *Engine) Claim(addr common.Address, now time.Time) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	minted, err := e.claim(addr, tsOf(now))
	if err != nil {
		e.discard()
		return nil, err
	}
	if err := e.state.Commit(); err != nil {
		return nil, err
	}
	return minted, nil
}

// prepare runs the shared prelude of every balance-changing operation: locate
// the current epoch, settle elapsed epochs, catch the account up.
func (e *Engine) prepare(addr common.Address, ts uint64) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if addr == (common.Address{}) {
		return 0, ErrZeroAddress
	}
	if !e.schedule.Started(ts) {
		return 0, ErrOutsidePeriod
	}
	current, _, _ := e.schedule.Locate(ts)
	if err := e.settle(current, ts); err != nil {
		return 0, err
	}
	if _, err := e.catchUp(addr, current, ts); err != nil {
		return 0, err
	}
	return current, nil
}

func (e *Engine) deposit(addr common.Address, assets *big.Int, exactShares *big.Int, ts uint64) (*big.Int, error) {
	if assets == nil || assets.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if e.schedule.Ended(ts) {
		return nil, ErrOutsidePeriod
	}
	current, err := e.prepare(addr, ts)
	if err != nil {
		return nil, err
	}
	shares := exactShares
	if shares == nil {
		if shares, err = e.vault.AssetsToShares(assets); err != nil {
			return nil, err
		}
	}
	if shares.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if err := e.vault.MintShares(addr, shares); err != nil {
		return nil, err
	}
	if err := e.applyShareDelta(addr, current, shares, assets, false, ts); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.SharesDeposited{Account: addr, Epoch: current, Shares: copyBigInt(shares), Assets: copyBigInt(assets)})
	return copyBigInt(shares), nil
}

func (e *Engine) mintShares(addr common.Address, shares *big.Int, ts uint64) (*big.Int, error) {
	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if err := e.ready(); err != nil {
		return nil, err
	}
	assets, err := e.vault.SharesToAssets(shares)
	if err != nil {
		return nil, err
	}
	if assets.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if _, err := e.deposit(addr, assets, shares, ts); err != nil {
		return nil, err
	}
	return copyBigInt(assets), nil
}

func (e *Engine) withdraw(addr common.Address, assets *big.Int, ts uint64) (*big.Int, error) {
	if assets == nil || assets.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	current, err := e.prepare(addr, ts)
	if err != nil {
		return nil, err
	}
	shares, err := e.vault.AssetsToShares(assets)
	if err != nil {
		return nil, err
	}
	if shares.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if err := e.burn(addr, current, shares, assets, ts); err != nil {
		return nil, err
	}
	return copyBigInt(shares), nil
}

func (e *Engine) redeem(addr common.Address, shares *big.Int, ts uint64) (*big.Int, error) {
	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	current, err := e.prepare(addr, ts)
	if err != nil {
		return nil, err
	}
	assets, err := e.vault.SharesToAssets(shares)
	if err != nil {
		return nil, err
	}
	if err := e.burn(addr, current, shares, assets, ts); err != nil {
		return nil, err
	}
	return copyBigInt(assets), nil
}

func (e *Engine) burn(addr common.Address, current uint64, shares, assets *big.Int, ts uint64) error {
	rec, err := e.state.AccountEpoch(addr, current)
	if err != nil {
		return err
	}
	if rec.Shares.Cmp(shares) < 0 {
		return insufficientBalance(shares, rec.Shares)
	}
	if err := e.vault.BurnShares(addr, shares); err != nil {
		return err
	}
	if err := e.applyShareDelta(addr, current, shares, assets, true, ts); err != nil {
		return err
	}
	e.emitter.Emit(events.SharesWithdrawn{Account: addr, Epoch: current, Shares: copyBigInt(shares), Assets: copyBigInt(assets)})
	return nil
}

func (e *Engine) transfer(addr common.Address, shares *big.Int, incoming bool, ts uint64) error {
	if shares == nil || shares.Sign() <= 0 {
		return ErrZeroAmount
	}
	current, err := e.prepare(addr, ts)
	if err != nil {
		return err
	}
	assets, err := e.vault.SharesToAssets(shares)
	if err != nil {
		return err
	}
	if !incoming {
		rec, err := e.state.AccountEpoch(addr, current)
		if err != nil {
			return err
		}
		if rec.Shares.Cmp(shares) < 0 {
			return insufficientBalance(shares, rec.Shares)
		}
	}
	if err := e.applyShareDelta(addr, current, shares, assets, !incoming, ts); err != nil {
		return err
	}
	e.emitter.Emit(events.SharesTransferred{Account: addr, Epoch: current, Shares: copyBigInt(shares), Incoming: incoming})
	return nil
}

func (e *Engine) claim(addr common.Address, ts uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if addr == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if !e.schedule.Started(ts) {
		return nil, ErrOutsidePeriod
	}
	current, _, _ := e.schedule.Locate(ts)
	if err := e.settle(current, ts); err != nil {
		return nil, err
	}
	return e.catchUp(addr, current, ts)
}

// applyShareDelta applies a share change to the account's and epoch's running
// totals. The caller has already caught the account up, so re-basing the
// reward debt here cannot skip or replay any growth.
func (e *Engine) applyShareDelta(addr common.Address, index uint64, shares, assets *big.Int, sub bool, ts uint64) error {
	rec, err := e.state.AccountEpoch(addr, index)
	if err != nil {
		return err
	}
	ep, err := e.state.Epoch(index)
	if err != nil {
		return err
	}
	if sub {
		rec.Shares = clampedSub(rec.Shares, shares)
		ep.TotalShares = clampedSub(ep.TotalShares, shares)
		ep.TotalStaked = clampedSub(ep.TotalStaked, assets)
	} else {
		rec.Shares = new(big.Int).Add(rec.Shares, shares)
		ep.TotalShares = new(big.Int).Add(ep.TotalShares, shares)
		ep.TotalStaked = new(big.Int).Add(ep.TotalStaked, assets)
	}
	debt := new(big.Int).Mul(rec.Shares, ep.AccRewardPerShare)
	rec.RewardDebt = debt.Quo(debt, scaleBig)
	rec.LastUpdateTs = ts
	if err := e.state.PutAccountEpoch(addr, index, rec); err != nil {
		return err
	}
	return e.state.PutEpoch(index, ep)
}

func observeDust(epoch uint64, dust *big.Int) {
	metrics.Ledger().ObserveRoundingDust(epoch, dust)
}
