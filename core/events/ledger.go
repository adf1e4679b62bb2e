package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"qstake/core/types"
)

const (
	EventEpochSettled      = "accrual.epoch.settled"
	EventEpochCompounded   = "accrual.epoch.compounded"
	EventAccountCompounded = "accrual.account.compounded"
	EventSharesDeposited   = "accrual.shares.deposited"
	EventSharesWithdrawn   = "accrual.shares.withdrawn"
	EventSharesTransferred = "accrual.shares.transferred"
	EventTreasuryPulled    = "accrual.treasury.pulled"
)

func bigAttr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// EpochSettled signals that an epoch reached its end boundary and its totals
// became final.
type EpochSettled struct {
	Epoch              uint64
	TotalRewardAccrued *big.Int
	AccRewardPerShare  *big.Int
	TotalShares        *big.Int
}

// EventType implements the Event interface.
func (EpochSettled) EventType() string { return EventEpochSettled }

// Event converts the settlement into a types.Event payload.
func (e EpochSettled) Event() *types.Event {
	return &types.Event{Type: EventEpochSettled, Attributes: map[string]string{
		"epoch":                strconv.FormatUint(e.Epoch, 10),
		"total_reward_accrued": bigAttr(e.TotalRewardAccrued),
		"acc_reward_per_share": bigAttr(e.AccRewardPerShare),
		"total_shares":         bigAttr(e.TotalShares),
	}}
}

// EpochCompounded records the shares minted against a settled epoch's reward.
type EpochCompounded struct {
	Epoch           uint64
	Reward          *big.Int
	SharesGenerated *big.Int
}

// EventType implements the Event interface.
func (EpochCompounded) EventType() string { return EventEpochCompounded }

// Event converts the compounding record into a types.Event payload.
func (e EpochCompounded) Event() *types.Event {
	return &types.Event{Type: EventEpochCompounded, Attributes: map[string]string{
		"epoch":            strconv.FormatUint(e.Epoch, 10),
		"reward":           bigAttr(e.Reward),
		"shares_generated": bigAttr(e.SharesGenerated),
	}}
}

// AccountCompounded captures a catch-up walk that materialized compounded
// shares for an account.
type AccountCompounded struct {
	Account   common.Address
	FromEpoch uint64
	ToEpoch   uint64
	Shares    *big.Int
}

// EventType implements the Event interface.
func (AccountCompounded) EventType() string { return EventAccountCompounded }

// Event converts the catch-up into a types.Event payload.
func (e AccountCompounded) Event() *types.Event {
	return &types.Event{Type: EventAccountCompounded, Attributes: map[string]string{
		"account":    e.Account.Hex(),
		"from_epoch": strconv.FormatUint(e.FromEpoch, 10),
		"to_epoch":   strconv.FormatUint(e.ToEpoch, 10),
		"shares":     bigAttr(e.Shares),
	}}
}

// SharesDeposited records a deposit or direct share mint.
type SharesDeposited struct {
	Account common.Address
	Epoch   uint64
	Shares  *big.Int
	Assets  *big.Int
}

// EventType implements the Event interface.
func (SharesDeposited) EventType() string { return EventSharesDeposited }

// Event converts the deposit into a types.Event payload.
func (e SharesDeposited) Event() *types.Event {
	return &types.Event{Type: EventSharesDeposited, Attributes: map[string]string{
		"account": e.Account.Hex(),
		"epoch":   strconv.FormatUint(e.Epoch, 10),
		"shares":  bigAttr(e.Shares),
		"assets":  bigAttr(e.Assets),
	}}
}

// SharesWithdrawn records a withdrawal or share redemption.
type SharesWithdrawn struct {
	Account common.Address
	Epoch   uint64
	Shares  *big.Int
	Assets  *big.Int
}

// EventType implements the Event interface.
func (SharesWithdrawn) EventType() string { return EventSharesWithdrawn }

// Event converts the withdrawal into a types.Event payload.
func (e SharesWithdrawn) Event() *types.Event {
	return &types.Event{Type: EventSharesWithdrawn, Attributes: map[string]string{
		"account": e.Account.Hex(),
		"epoch":   strconv.FormatUint(e.Epoch, 10),
		"shares":  bigAttr(e.Shares),
		"assets":  bigAttr(e.Assets),
	}}
}

// SharesTransferred records a transfer hook (in or out) applied to an account.
type SharesTransferred struct {
	Account  common.Address
	Epoch    uint64
	Shares   *big.Int
	Incoming bool
}

// EventType implements the Event interface.
func (SharesTransferred) EventType() string { return EventSharesTransferred }

// Event converts the transfer hook into a types.Event payload.
func (e SharesTransferred) Event() *types.Event {
	return &types.Event{Type: EventSharesTransferred, Attributes: map[string]string{
		"account":  e.Account.Hex(),
		"epoch":    strconv.FormatUint(e.Epoch, 10),
		"shares":   bigAttr(e.Shares),
		"incoming": strconv.FormatBool(e.Incoming),
	}}
}

// TreasuryPulled records reward assets moved from the treasury into ledger
// custody during compounding.
type TreasuryPulled struct {
	Epoch  uint64
	Amount *big.Int
}

// EventType implements the Event interface.
func (TreasuryPulled) EventType() string { return EventTreasuryPulled }

// Event converts the pull into a types.Event payload.
func (e TreasuryPulled) Event() *types.Event {
	return &types.Event{Type: EventTreasuryPulled, Attributes: map[string]string{
		"epoch":  strconv.FormatUint(e.Epoch, 10),
		"amount": bigAttr(e.Amount),
	}}
}
