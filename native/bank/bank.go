package bank

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNilState          = errors.New("bank: state not configured")
	ErrInvalidAmount     = errors.New("bank: amount must be positive")
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	ErrInvalidRate       = errors.New("bank: exchange rate must be positive")
)

// State is the persistence surface for asset and share balances.
type State interface {
	Balance(addr common.Address) (*big.Int, error)
	SetBalance(addr common.Address, amount *big.Int) error
	ShareBalance(addr common.Address) (*big.Int, error)
	SetShareBalance(addr common.Address, amount *big.Int) error
}

// Ledger is the reference AssetLedger: plain fungible balances with mint and
// transfer. It backs the treasury and side-pool custody in tests and in the
// daemon.
type Ledger struct {
	state State
}

// NewLedger constructs an asset ledger over the supplied state.
func NewLedger(state State) *Ledger {
	return &Ledger{state: state}
}

// BalanceOf returns a copy of the account's asset balance.
func (l *Ledger) BalanceOf(addr common.Address) (*big.Int, error) {
	if l.state == nil {
		return nil, ErrNilState
	}
	bal, err := l.state.Balance(addr)
	if err != nil {
		return nil, err
	}
	return copyBigInt(bal), nil
}

// Mint credits new assets to an account.
func (l *Ledger) Mint(addr common.Address, amount *big.Int) error {
	if l.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	bal, err := l.state.Balance(addr)
	if err != nil {
		return err
	}
	return l.state.SetBalance(addr, new(big.Int).Add(bal, amount))
}

// Transfer moves assets between accounts, failing on insufficient funds.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if l.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBal, err := l.state.Balance(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, fromBal, amount)
	}
	toBal, err := l.state.Balance(to)
	if err != nil {
		return err
	}
	if err := l.state.SetBalance(from, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return l.state.SetBalance(to, new(big.Int).Add(toBal, amount))
}

// Vault is the reference share token: share balances plus a configurable
// assets-per-share exchange rate used for conversions. The default rate is 1:1.
type Vault struct {
	state   State
	rateNum *big.Int
	rateDen *big.Int
}

// NewVault constructs a vault over the supplied state at a 1:1 exchange rate.
func NewVault(state State) *Vault {
	return &Vault{state: state, rateNum: big.NewInt(1), rateDen: big.NewInt(1)}
}

// SetExchangeRate fixes the assets-per-share rate to num/den.
func (v *Vault) SetExchangeRate(num, den *big.Int) error {
	if num == nil || den == nil || num.Sign() <= 0 || den.Sign() <= 0 {
		return ErrInvalidRate
	}
	v.rateNum = new(big.Int).Set(num)
	v.rateDen = new(big.Int).Set(den)
	return nil
}

// SharesToAssets values shares at the current exchange rate.
func (v *Vault) SharesToAssets(shares *big.Int) (*big.Int, error) {
	if shares == nil {
		return big.NewInt(0), nil
	}
	out := new(big.Int).Mul(shares, v.rateNum)
	return out.Quo(out, v.rateDen), nil
}

// AssetsToShares prices assets in shares at the current exchange rate.
func (v *Vault) AssetsToShares(assets *big.Int) (*big.Int, error) {
	if assets == nil {
		return big.NewInt(0), nil
	}
	out := new(big.Int).Mul(assets, v.rateDen)
	return out.Quo(out, v.rateNum), nil
}

// MintShares credits freshly minted shares to an account.
func (v *Vault) MintShares(to common.Address, amount *big.Int) error {
	if v.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	bal, err := v.state.ShareBalance(to)
	if err != nil {
		return err
	}
	return v.state.SetShareBalance(to, new(big.Int).Add(bal, amount))
}

// BurnShares destroys shares held by an account.
func (v *Vault) BurnShares(from common.Address, amount *big.Int) error {
	if v.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	bal, err := v.state.ShareBalance(from)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, bal, amount)
	}
	return v.state.SetShareBalance(from, new(big.Int).Sub(bal, amount))
}

// TransferShares moves shares between accounts.
func (v *Vault) TransferShares(from, to common.Address, amount *big.Int) error {
	if v.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBal, err := v.state.ShareBalance(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, fromBal, amount)
	}
	toBal, err := v.state.ShareBalance(to)
	if err != nil {
		return err
	}
	if err := v.state.SetShareBalance(from, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return v.state.SetShareBalance(to, new(big.Int).Add(toBal, amount))
}

// ShareBalanceOf returns a copy of the account's share balance.
func (v *Vault) ShareBalanceOf(addr common.Address) (*big.Int, error) {
	if v.state == nil {
		return nil, ErrNilState
	}
	bal, err := v.state.ShareBalance(addr)
	if err != nil {
		return nil, err
	}
	return copyBigInt(bal), nil
}

// Treasury is the reference reward custodian: a funded account whose balance
// backs each epoch's compounding pull. Keeping it funded ahead of rollovers is
// an operational requirement, not ledger logic.
type Treasury struct {
	assets  *Ledger
	account common.Address
	ledger  common.Address
}

// NewTreasury binds the treasury's funding account to the ledger custody
// address pulls are delivered to.
func NewTreasury(assets *Ledger, account, ledger common.Address) *Treasury {
	return &Treasury{assets: assets, account: account, ledger: ledger}
}

// Pull moves the requested reward amount into ledger custody.
func (t *Treasury) Pull(amount *big.Int) error {
	return t.assets.Transfer(t.account, t.ledger, amount)
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
