package sidepool

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"qstake/core/events"
	"qstake/observability/metrics"
)

var (
	ErrNilState             = errors.New("sidepool: state not configured")
	ErrNilVotingLedger      = errors.New("sidepool: voting ledger not configured")
	ErrNilAssetLedger       = errors.New("sidepool: asset ledger not configured")
	ErrZeroAmount           = errors.New("sidepool: amount must be positive")
	ErrZeroAddress          = errors.New("sidepool: zero address")
	ErrDistributionConflict = errors.New("sidepool: previous distribution not fully settled")
	ErrNoDistribution       = errors.New("sidepool: no live distribution")
	ErrClaimWindowClosed    = errors.New("sidepool: claim window closed")
	ErrClaimWindowOpen      = errors.New("sidepool: claim window still open")
	ErrAlreadyClaimed       = errors.New("sidepool: already claimed this round")
	ErrUnauthorized         = errors.New("sidepool: caller not authorized to sweep")
)

// Status is the derived lifecycle position of the single distribution slot.
// It is computed from the stored timestamps at call time; nothing runs in the
// background.
type Status uint8

const (
	StatusClosed Status = iota
	StatusOpen
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusClosed:
		return "closed"
	case StatusOpen:
		return "open"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Distribution is the single-slot side-pool round. The slot is free for a new
// round only once Claimed equals Amount, either through claims or a sweep.
type Distribution struct {
	Amount   *big.Int
	Claimed  *big.Int
	OpenedAt uint64
}

// NewDistribution returns an empty, settled slot.
func NewDistribution() *Distribution {
	return &Distribution{Amount: big.NewInt(0), Claimed: big.NewInt(0)}
}

// Clone returns a deep copy of the distribution.
func (d *Distribution) Clone() *Distribution {
	if d == nil {
		return NewDistribution()
	}
	out := &Distribution{OpenedAt: d.OpenedAt}
	out.Amount = copyBigInt(d.Amount)
	out.Claimed = copyBigInt(d.Claimed)
	return out
}

func (d *Distribution) settled() bool {
	return d.Amount.Cmp(d.Claimed) == 0
}

// PoolState is the persistence surface the distributor needs.
type PoolState interface {
	Distribution() (*Distribution, error)
	PutDistribution(dist *Distribution) error
	LastClaimed(addr common.Address) (uint64, error)
	SetLastClaimed(addr common.Address, ts uint64) error
	Commit() error
	Discard()
}

// VotingLedger answers historical voting-power queries. Payouts always use
// the snapshot at the distribution instant, never live power, so votes moved
// after a round opens cannot change anyone's share.
type VotingLedger interface {
	VotingPowerAt(addr common.Address, ts uint64) (*big.Int, error)
	TotalVotingPowerAt(ts uint64) (*big.Int, error)
}

// AssetLedger moves the underlying fungible asset.
type AssetLedger interface {
	Transfer(from, to common.Address, amount *big.Int) error
}

// Distributor runs the one-at-a-time side-pool rounds: open, pro-rata claims
// within a bounded window, and an authority sweep of whatever expires
// unclaimed.
type Distributor struct {
	state       PoolState
	voting      VotingLedger
	assets      AssetLedger
	self        common.Address
	authority   common.Address
	claimWindow uint64
	emitter     events.Emitter
}

// NewDistributor constructs a distributor custodying round funds at self.
// claimWindow is the number of seconds each round stays claimable.
func NewDistributor(self, authority common.Address, claimWindow uint64) *Distributor {
	return &Distributor{
		self:        self,
		authority:   authority,
		claimWindow: claimWindow,
		emitter:     events.NoopEmitter{},
	}
}

// SetState wires the distributor to the persistence layer.
func (d *Distributor) SetState(state PoolState) { d.state = state }

// SetVotingLedger wires the snapshot collaborator.
func (d *Distributor) SetVotingLedger(voting VotingLedger) { d.voting = voting }

// SetAssetLedger wires the fungible-asset collaborator.
func (d *Distributor) SetAssetLedger(assets AssetLedger) { d.assets = assets }

// SetEmitter wires an event sink. A nil emitter silences events.
func (d *Distributor) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	d.emitter = emitter
}

// ClaimWindow returns the round claim window in seconds.
func (d *Distributor) ClaimWindow() uint64 { return d.claimWindow }

func (d *Distributor) ready() error {
	if d.state == nil {
		return ErrNilState
	}
	if d.voting == nil {
		return ErrNilVotingLedger
	}
	if d.assets == nil {
		return ErrNilAssetLedger
	}
	return nil
}

func (d *Distributor) statusOf(dist *Distribution, ts uint64) Status {
	if dist.settled() {
		return StatusClosed
	}
	if ts <= dist.OpenedAt+d.claimWindow {
		return StatusOpen
	}
	return StatusExpired
}

// Status reports the derived state of the slot at now.
func (d *Distributor) Status(now time.Time) (Status, error) {
	if d.state == nil {
		return StatusClosed, ErrNilState
	}
	dist, err := d.state.Distribution()
	if err != nil {
		return StatusClosed, err
	}
	return d.statusOf(dist, tsOf(now)), nil
}

// Current returns a copy of the distribution slot.
func (d *Distributor) Current() (*Distribution, error) {
	if d.state == nil {
		return nil, ErrNilState
	}
	dist, err := d.state.Distribution()
	if err != nil {
		return nil, err
	}
	return dist.Clone(), nil
}

// Open funds a new round. It fails while any part of the previous round is
// neither claimed nor swept: at most one distribution is ever live.
func (d *Distributor) Open(funder common.Address, amount *big.Int, now time.Time) error {
	if err := d.ready(); err != nil {
		return err
	}
	if funder == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	ts := tsOf(now)
	dist, err := d.state.Distribution()
	if err != nil {
		return err
	}
	if !dist.settled() {
		return ErrDistributionConflict
	}
	if err := d.assets.Transfer(funder, d.self, amount); err != nil {
		d.state.Discard()
		return err
	}
	next := &Distribution{
		Amount:   copyBigInt(amount),
		Claimed:  big.NewInt(0),
		OpenedAt: ts,
	}
	if err := d.state.PutDistribution(next); err != nil {
		d.state.Discard()
		return err
	}
	if err := d.state.Commit(); err != nil {
		return err
	}
	d.emitter.Emit(events.DistributionOpened{Funder: funder, Amount: copyBigInt(amount), OpenedAt: ts})
	return nil
}

// Claim pays the account its share of the live round, pro-rata by voting
// power at the distribution instant. Accounts without power at the snapshot
// legitimately claim zero; every account claims at most once per round.
func (d *Distributor) Claim(addr common.Address, now time.Time) (*big.Int, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	if addr == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	ts := tsOf(now)
	dist, err := d.state.Distribution()
	if err != nil {
		return nil, err
	}
	if dist.OpenedAt == 0 && dist.Amount.Sign() == 0 {
		return nil, ErrNoDistribution
	}
	if ts > dist.OpenedAt+d.claimWindow {
		return nil, ErrClaimWindowClosed
	}
	last, err := d.state.LastClaimed(addr)
	if err != nil {
		return nil, err
	}
	if last >= dist.OpenedAt {
		return nil, ErrAlreadyClaimed
	}
	reward, err := d.payoutFor(addr, dist)
	if err != nil {
		d.state.Discard()
		return nil, err
	}
	if reward.Sign() > 0 {
		dist.Claimed = new(big.Int).Add(dist.Claimed, reward)
		if err := d.assets.Transfer(d.self, addr, reward); err != nil {
			d.state.Discard()
			return nil, err
		}
		if err := d.state.PutDistribution(dist); err != nil {
			d.state.Discard()
			return nil, err
		}
	}
	if err := d.state.SetLastClaimed(addr, ts); err != nil {
		d.state.Discard()
		return nil, err
	}
	if err := d.state.Commit(); err != nil {
		return nil, err
	}
	metrics.Ledger().ObserveSidePoolClaim(dist.Claimed)
	d.emitter.Emit(events.DistributionClaimed{Account: addr, Amount: copyBigInt(reward), OpenedAt: dist.OpenedAt})
	return reward, nil
}

// Sweep returns whatever expired unclaimed to the authority and settles the
// slot so a new round can open.
func (d *Distributor) Sweep(caller common.Address, now time.Time) (*big.Int, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	if caller != d.authority {
		return nil, ErrUnauthorized
	}
	ts := tsOf(now)
	dist, err := d.state.Distribution()
	if err != nil {
		return nil, err
	}
	if dist.settled() {
		return nil, ErrNoDistribution
	}
	if ts <= dist.OpenedAt+d.claimWindow {
		return nil, ErrClaimWindowOpen
	}
	remainder := new(big.Int).Sub(dist.Amount, dist.Claimed)
	if err := d.assets.Transfer(d.self, caller, remainder); err != nil {
		d.state.Discard()
		return nil, err
	}
	dist.Claimed = copyBigInt(dist.Amount)
	if err := d.state.PutDistribution(dist); err != nil {
		d.state.Discard()
		return nil, err
	}
	if err := d.state.Commit(); err != nil {
		return nil, err
	}
	d.emitter.Emit(events.DistributionSwept{Authority: caller, Amount: remainder, OpenedAt: dist.OpenedAt})
	return remainder, nil
}

// payoutFor prices the account's slice of the round against the voting-power
// snapshot taken at the opening instant.
func (d *Distributor) payoutFor(addr common.Address, dist *Distribution) (*big.Int, error) {
	total, err := d.voting.TotalVotingPowerAt(dist.OpenedAt)
	if err != nil {
		return nil, err
	}
	if total == nil || total.Sign() == 0 {
		return big.NewInt(0), nil
	}
	power, err := d.voting.VotingPowerAt(addr, dist.OpenedAt)
	if err != nil {
		return nil, err
	}
	if power == nil || power.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	reward := new(big.Int).Mul(power, dist.Amount)
	reward.Quo(reward, total)
	// Floor division keeps the sum of claims under Amount, but clamp anyway
	// so Claimed can never overshoot.
	headroom := new(big.Int).Sub(dist.Amount, dist.Claimed)
	if reward.Cmp(headroom) > 0 {
		reward = headroom
	}
	return reward, nil
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func tsOf(now time.Time) uint64 {
	unix := now.UTC().Unix()
	if unix < 0 {
		return 0
	}
	return uint64(unix)
}
