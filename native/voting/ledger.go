package voting

import (
	"errors"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var ErrStaleRecord = errors.New("voting: checkpoint timestamps must not decrease")

// Checkpoint pins an account's voting power from Timestamp onward.
type Checkpoint struct {
	Timestamp uint64
	Power     *big.Int
}

// Ledger is the reference voting-power snapshot ledger: append-only per-account
// checkpoints plus a parallel total series, answering historical queries by
// binary search. Snapshots are only meaningful for accounts whose staking
// records were caught up at the snapshot time; that discipline belongs to the
// caller.
type Ledger struct {
	mu      sync.RWMutex
	history map[common.Address][]Checkpoint
	total   []Checkpoint
}

// NewLedger constructs an empty voting ledger.
func NewLedger() *Ledger {
	return &Ledger{history: make(map[common.Address][]Checkpoint)}
}

// Record appends a checkpoint setting the account's power as of ts and folds
// the change into the total series. Timestamps must not move backwards.
func (l *Ledger) Record(addr common.Address, power *big.Int, ts uint64) error {
	if power == nil {
		power = big.NewInt(0)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	points := l.history[addr]
	if len(points) > 0 && points[len(points)-1].Timestamp > ts {
		return ErrStaleRecord
	}
	if len(l.total) > 0 && l.total[len(l.total)-1].Timestamp > ts {
		return ErrStaleRecord
	}
	previous := big.NewInt(0)
	if len(points) > 0 {
		previous = points[len(points)-1].Power
	}
	l.history[addr] = append(points, Checkpoint{Timestamp: ts, Power: new(big.Int).Set(power)})

	runningTotal := big.NewInt(0)
	if len(l.total) > 0 {
		runningTotal = l.total[len(l.total)-1].Power
	}
	updated := new(big.Int).Sub(runningTotal, previous)
	updated.Add(updated, power)
	l.total = append(l.total, Checkpoint{Timestamp: ts, Power: updated})
	return nil
}

// VotingPowerAt returns the account's power as of ts, zero before its first
// checkpoint.
func (l *Ledger) VotingPowerAt(addr common.Address, ts uint64) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return lookup(l.history[addr], ts), nil
}

// TotalVotingPowerAt returns the aggregate power as of ts.
func (l *Ledger) TotalVotingPowerAt(ts uint64) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return lookup(l.total, ts), nil
}

func lookup(points []Checkpoint, ts uint64) *big.Int {
	i := sort.Search(len(points), func(j int) bool {
		return points[j].Timestamp > ts
	})
	if i == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Set(points[i-1].Power)
}
