package accrual

import "math/big"

// Scale is the fixed-point denominator used by AccRewardPerShare.
const Scale = int64(1_000_000_000_000_000_000)

var scaleBig = big.NewInt(Scale)

// ScaleUnit returns the fixed-point scaling factor applied to reward-per-share
// values.
func ScaleUnit() *big.Int {
	return new(big.Int).Set(scaleBig)
}

// EpochRecord is the aggregate state of one epoch. Records exist implicitly
// with zero values; settlement and share changes are the only mutators.
// AccRewardPerShare starts at zero for every epoch and only ever grows while
// the epoch is active. SharesGenerated is written exactly once, at rollover.
type EpochRecord struct {
	AccRewardPerShare  *big.Int
	LastUpdateTs       uint64
	TotalRewardAccrued *big.Int
	TotalShares        *big.Int
	TotalStaked        *big.Int
	SharesGenerated    *big.Int
}

// NewEpochRecord returns a zero-valued epoch record.
func NewEpochRecord() *EpochRecord {
	return &EpochRecord{
		AccRewardPerShare:  big.NewInt(0),
		TotalRewardAccrued: big.NewInt(0),
		TotalShares:        big.NewInt(0),
		TotalStaked:        big.NewInt(0),
		SharesGenerated:    big.NewInt(0),
	}
}

// Clone returns a deep copy of the record.
func (r *EpochRecord) Clone() *EpochRecord {
	if r == nil {
		return NewEpochRecord()
	}
	return &EpochRecord{
		AccRewardPerShare:  copyBigInt(r.AccRewardPerShare),
		LastUpdateTs:       r.LastUpdateTs,
		TotalRewardAccrued: copyBigInt(r.TotalRewardAccrued),
		TotalShares:        copyBigInt(r.TotalShares),
		TotalStaked:        copyBigInt(r.TotalStaked),
		SharesGenerated:    copyBigInt(r.SharesGenerated),
	}
}

// AccountEpochRecord is the per-account slice of one epoch. RewardDebt is the
// shares x AccRewardPerShare baseline already accounted for, subtracted so
// growth seen before the last touch is never credited twice. RewardAccrued is
// the realized reward for the epoch; at rollover it is folded into the next
// epoch's shares and the settled record keeps it for historical queries.
type AccountEpochRecord struct {
	Shares        *big.Int
	RewardAccrued *big.Int
	RewardDebt    *big.Int
	LastUpdateTs  uint64
}

// NewAccountEpochRecord returns a zero-valued account record.
func NewAccountEpochRecord() *AccountEpochRecord {
	return &AccountEpochRecord{
		Shares:        big.NewInt(0),
		RewardAccrued: big.NewInt(0),
		RewardDebt:    big.NewInt(0),
	}
}

// Clone returns a deep copy of the record.
func (r *AccountEpochRecord) Clone() *AccountEpochRecord {
	if r == nil {
		return NewAccountEpochRecord()
	}
	return &AccountEpochRecord{
		Shares:        copyBigInt(r.Shares),
		RewardAccrued: copyBigInt(r.RewardAccrued),
		RewardDebt:    copyBigInt(r.RewardDebt),
		LastUpdateTs:  r.LastUpdateTs,
	}
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func clampedSub(a, b *big.Int) *big.Int {
	out := new(big.Int).Sub(a, b)
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out
}
