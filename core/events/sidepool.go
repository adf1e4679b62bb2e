package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"qstake/core/types"
)

const (
	EventDistributionOpened  = "sidepool.distribution.opened"
	EventDistributionClaimed = "sidepool.distribution.claimed"
	EventDistributionSwept   = "sidepool.distribution.swept"
)

// DistributionOpened signals a new side-pool round funded and opened for claims.
type DistributionOpened struct {
	Funder   common.Address
	Amount   *big.Int
	OpenedAt uint64
}

// EventType implements the Event interface.
func (DistributionOpened) EventType() string { return EventDistributionOpened }

// Event converts the opening into a types.Event payload.
func (e DistributionOpened) Event() *types.Event {
	return &types.Event{Type: EventDistributionOpened, Attributes: map[string]string{
		"funder":    e.Funder.Hex(),
		"amount":    bigAttr(e.Amount),
		"opened_at": strconv.FormatUint(e.OpenedAt, 10),
	}}
}

// DistributionClaimed records a pro-rata claim against the live round. Zero
// amounts are legitimate for accounts without voting power at the snapshot.
type DistributionClaimed struct {
	Account  common.Address
	Amount   *big.Int
	OpenedAt uint64
}

// EventType implements the Event interface.
func (DistributionClaimed) EventType() string { return EventDistributionClaimed }

// Event converts the claim into a types.Event payload.
func (e DistributionClaimed) Event() *types.Event {
	return &types.Event{Type: EventDistributionClaimed, Attributes: map[string]string{
		"account":   e.Account.Hex(),
		"amount":    bigAttr(e.Amount),
		"opened_at": strconv.FormatUint(e.OpenedAt, 10),
	}}
}

// DistributionSwept records the unclaimed remainder returned to the authority
// after the claim window expired.
type DistributionSwept struct {
	Authority common.Address
	Amount    *big.Int
	OpenedAt  uint64
}

// EventType implements the Event interface.
func (DistributionSwept) EventType() string { return EventDistributionSwept }

// Event converts the sweep into a types.Event payload.
func (e DistributionSwept) Event() *types.Event {
	return &types.Event{Type: EventDistributionSwept, Attributes: map[string]string{
		"authority": e.Authority.Hex(),
		"amount":    bigAttr(e.Amount),
		"opened_at": strconv.FormatUint(e.OpenedAt, 10),
	}}
}
