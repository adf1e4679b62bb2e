package bank

import (
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice    = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b22")
	treasury = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	ledger   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

type mapState struct {
	mu        sync.Mutex
	balances  map[common.Address]*big.Int
	shareBals map[common.Address]*big.Int
}

func newMapState() *mapState {
	return &mapState{
		balances:  make(map[common.Address]*big.Int),
		shareBals: make(map[common.Address]*big.Int),
	}
}

func (s *mapState) Balance(addr common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bal, ok := s.balances[addr]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (s *mapState) SetBalance(addr common.Address, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[addr] = new(big.Int).Set(amount)
	return nil
}

func (s *mapState) ShareBalance(addr common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bal, ok := s.shareBals[addr]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (s *mapState) SetShareBalance(addr common.Address, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shareBals[addr] = new(big.Int).Set(amount)
	return nil
}

func TestLedgerTransfer(t *testing.T) {
	l := NewLedger(newMapState())
	if err := l.Mint(alice, big.NewInt(1_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Transfer(alice, bob, big.NewInt(400)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	aliceBal, err := l.BalanceOf(alice)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	bobBal, err := l.BalanceOf(bob)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if aliceBal.Cmp(big.NewInt(600)) != 0 || bobBal.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("unexpected balances: alice %s bob %s", aliceBal, bobBal)
	}
	if err := l.Transfer(alice, bob, big.NewInt(601)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestVaultExchangeRate(t *testing.T) {
	v := NewVault(newMapState())

	// Default rate is 1:1.
	shares, err := v.AssetsToShares(big.NewInt(500))
	if err != nil {
		t.Fatalf("assets to shares: %v", err)
	}
	if shares.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected shares at par: %s", shares)
	}

	// 2 assets per share.
	if err := v.SetExchangeRate(big.NewInt(2), big.NewInt(1)); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	shares, err = v.AssetsToShares(big.NewInt(500))
	if err != nil {
		t.Fatalf("assets to shares: %v", err)
	}
	if shares.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("unexpected shares at 2:1: %s", shares)
	}
	assets, err := v.SharesToAssets(big.NewInt(250))
	if err != nil {
		t.Fatalf("shares to assets: %v", err)
	}
	if assets.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected assets at 2:1: %s", assets)
	}

	if err := v.SetExchangeRate(big.NewInt(0), big.NewInt(1)); err == nil {
		t.Fatalf("expected error for zero rate")
	}
}

func TestVaultShareAccounting(t *testing.T) {
	v := NewVault(newMapState())
	if err := v.MintShares(alice, big.NewInt(900)); err != nil {
		t.Fatalf("mint shares: %v", err)
	}
	if err := v.TransferShares(alice, bob, big.NewInt(300)); err != nil {
		t.Fatalf("transfer shares: %v", err)
	}
	if err := v.BurnShares(alice, big.NewInt(700)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := v.BurnShares(alice, big.NewInt(600)); err != nil {
		t.Fatalf("burn shares: %v", err)
	}
	aliceBal, err := v.ShareBalanceOf(alice)
	if err != nil {
		t.Fatalf("share balance: %v", err)
	}
	bobBal, err := v.ShareBalanceOf(bob)
	if err != nil {
		t.Fatalf("share balance: %v", err)
	}
	if aliceBal.Sign() != 0 || bobBal.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("unexpected balances: alice %s bob %s", aliceBal, bobBal)
	}
}

func TestTreasuryPull(t *testing.T) {
	st := newMapState()
	l := NewLedger(st)
	tr := NewTreasury(l, treasury, ledger)
	if err := tr.Pull(big.NewInt(100)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := l.Mint(treasury, big.NewInt(1_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := tr.Pull(big.NewInt(100)); err != nil {
		t.Fatalf("pull: %v", err)
	}
	bal, err := l.BalanceOf(ledger)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected ledger balance: %s", bal)
	}
}
