package accrual

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// CurrentEpoch reports which epoch contains now, with the schedule's sentinel
// values outside the period. Read-only.
func (e *Engine) CurrentEpoch(now time.Time) (index, start, end uint64) {
	return e.schedule.Locate(tsOf(now))
}

// EpochAt reports which epoch contains the supplied timestamp. Read-only.
func (e *Engine) EpochAt(ts uint64) (index, start, end uint64) {
	return e.schedule.Locate(ts)
}

// EpochRecordAt returns a copy of the stored aggregate state for an epoch.
func (e *Engine) EpochRecordAt(index uint64) (*EpochRecord, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	rec, err := e.state.Epoch(index)
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// AccountRecordAt returns a copy of an account's record for an epoch.
func (e *Engine) AccountRecordAt(addr common.Address, index uint64) (*AccountEpochRecord, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	rec, err := e.state.AccountEpoch(addr, index)
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// LastProcessedEpoch returns the global settlement cursor.
func (e *Engine) LastProcessedEpoch() (uint64, error) {
	if e.state == nil {
		return 0, ErrNilState
	}
	return e.state.GlobalCursor()
}

// AccountCursor returns an account's private cursor and whether the account
// has ever touched the ledger.
func (e *Engine) AccountCursor(addr common.Address) (uint64, bool, error) {
	if e.state == nil {
		return 0, false, ErrNilState
	}
	return e.state.AccountCursor(addr)
}

// RewardRate returns the schedule's flat per-second emission rate.
func (e *Engine) RewardRate() *big.Int {
	return e.schedule.RewardRate()
}
