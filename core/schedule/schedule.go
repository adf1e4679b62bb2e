package schedule

import (
	"errors"
	"math/big"
	"sort"
)

var (
	ErrTooFewBoundaries = errors.New("schedule: at least two boundaries required")
	ErrNotAscending     = errors.New("schedule: boundaries must be strictly ascending")
	ErrNoBudget         = errors.New("schedule: total reward budget must be positive")
)

// Schedule is the immutable emission calendar: N+1 ascending boundary
// timestamps delimiting N half-open epochs, and the flat reward rate derived
// from the total budget over the whole period. All timestamps are unix seconds.
type Schedule struct {
	boundaries  []uint64
	totalBudget *big.Int
	rewardRate  *big.Int
}

// New validates the boundary list and fixes the reward rate as
// totalBudget / (last - first). The rate never changes afterwards.
func New(boundaries []uint64, totalBudget *big.Int) (*Schedule, error) {
	if len(boundaries) < 2 {
		return nil, ErrTooFewBoundaries
	}
	for i := 1; i < len(boundaries); i++ {
		if boundaries[i] <= boundaries[i-1] {
			return nil, ErrNotAscending
		}
	}
	if totalBudget == nil || totalBudget.Sign() <= 0 {
		return nil, ErrNoBudget
	}
	bounds := make([]uint64, len(boundaries))
	copy(bounds, boundaries)
	duration := new(big.Int).SetUint64(bounds[len(bounds)-1] - bounds[0])
	rate := new(big.Int).Quo(totalBudget, duration)
	return &Schedule{
		boundaries:  bounds,
		totalBudget: new(big.Int).Set(totalBudget),
		rewardRate:  rate,
	}, nil
}

// Count returns the number of epochs in the schedule.
func (s *Schedule) Count() uint64 {
	return uint64(len(s.boundaries) - 1)
}

// TerminalIndex is the sentinel index reported once the period has ended.
// It equals Count: one past the last real epoch.
func (s *Schedule) TerminalIndex() uint64 {
	return s.Count()
}

// Start returns the first boundary of the schedule.
func (s *Schedule) Start() uint64 {
	return s.boundaries[0]
}

// End returns the final boundary of the schedule.
func (s *Schedule) End() uint64 {
	return s.boundaries[len(s.boundaries)-1]
}

// Boundary returns the i-th boundary timestamp.
func (s *Schedule) Boundary(i uint64) uint64 {
	return s.boundaries[i]
}

// RewardRate returns a copy of the flat per-second emission rate.
func (s *Schedule) RewardRate() *big.Int {
	return new(big.Int).Set(s.rewardRate)
}

// TotalBudget returns a copy of the configured total reward budget.
func (s *Schedule) TotalBudget() *big.Int {
	return new(big.Int).Set(s.totalBudget)
}

// Started reports whether ts is at or after the first boundary.
func (s *Schedule) Started(ts uint64) bool {
	return ts >= s.Start()
}

// Ended reports whether ts is at or after the final boundary.
func (s *Schedule) Ended(ts uint64) bool {
	return ts >= s.End()
}

// Locate answers which epoch contains ts. Epochs are half-open: the start
// instant belongs to the epoch, the end instant to the next. Outside the
// period it returns sentinels: (0, 0, 0) before the first boundary and
// (TerminalIndex, 0, 0) at or after the last, with start/end zeroed because no
// epoch is active.
func (s *Schedule) Locate(ts uint64) (index, start, end uint64) {
	if ts < s.boundaries[0] {
		return 0, 0, 0
	}
	if ts >= s.boundaries[len(s.boundaries)-1] {
		return s.TerminalIndex(), 0, 0
	}
	i := sort.Search(len(s.boundaries), func(j int) bool {
		return s.boundaries[j] > ts
	}) - 1
	return uint64(i), s.boundaries[i], s.boundaries[i+1]
}

// RewardsBetween returns the emission over [start, end] at the flat rate, or
// zero when start > end. Pure; no state is touched.
func (s *Schedule) RewardsBetween(start, end uint64) *big.Int {
	if start > end {
		return big.NewInt(0)
	}
	elapsed := new(big.Int).SetUint64(end - start)
	return elapsed.Mul(elapsed, s.rewardRate)
}
