package accrual

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"qstake/core/events"
	"qstake/observability/metrics"
)

// catchUp advances one account's private cursor through every epoch settled
// since its last interaction, crediting realized reward and folding it into
// next-epoch shares at the same rate the aggregate pool compounded. The walk
// is bounded by the epochs the account itself sat out, so its cost is paid
// once, by the account, on its return. Returns the shares materialized.
func (e *Engine) catchUp(addr common.Address, current uint64, ts uint64) (*big.Int, error) {
	terminal := e.schedule.TerminalIndex()
	if current > terminal {
		current = terminal
	}
	cursor, known, err := e.state.AccountCursor(addr)
	if err != nil {
		return nil, err
	}
	if !known {
		// First touch: open a zero record at the current epoch.
		rec := NewAccountEpochRecord()
		rec.LastUpdateTs = ts
		if err := e.state.PutAccountEpoch(addr, current, rec); err != nil {
			return nil, err
		}
		if err := e.state.SetAccountCursor(addr, current); err != nil {
			return nil, err
		}
		return big.NewInt(0), nil
	}
	if cursor == terminal {
		return big.NewInt(0), nil
	}
	rec, err := e.state.AccountEpoch(addr, cursor)
	if err != nil {
		return nil, err
	}
	shares := copyBigInt(rec.Shares)
	materialized := big.NewInt(0)
	for i := cursor; i < current; i++ {
		ep, err := e.state.Epoch(i)
		if err != nil {
			return nil, err
		}
		e.realize(rec, ep, shares)
		minted := big.NewInt(0)
		if rec.RewardAccrued.Sign() > 0 && ep.TotalRewardAccrued.Sign() > 0 {
			// The account compounds at the epoch's own ratio of
			// shares generated per unit of reward.
			minted = new(big.Int).Mul(rec.RewardAccrued, ep.SharesGenerated)
			minted.Quo(minted, ep.TotalRewardAccrued)
		}
		boundary := e.schedule.Boundary(i + 1)
		rec.LastUpdateTs = boundary
		if err := e.state.PutAccountEpoch(addr, i, rec); err != nil {
			return nil, err
		}
		next, err := e.state.AccountEpoch(addr, i+1)
		if err != nil {
			return nil, err
		}
		next.Shares = new(big.Int).Add(shares, minted)
		next.RewardAccrued = big.NewInt(0)
		next.RewardDebt = big.NewInt(0)
		next.LastUpdateTs = boundary
		if err := e.state.PutAccountEpoch(addr, i+1, next); err != nil {
			return nil, err
		}
		materialized.Add(materialized, minted)
		shares = next.Shares
		rec = next
		metrics.Ledger().ObserveCatchUpEpoch()
	}
	if materialized.Sign() > 0 {
		// The compounding shares were minted to the ledger's own
		// holding at rollover; hand the account its slice exactly once.
		if err := e.vault.TransferShares(e.self, addr, materialized); err != nil {
			return nil, err
		}
	}
	if current < terminal {
		ep, err := e.state.Epoch(current)
		if err != nil {
			return nil, err
		}
		e.realize(rec, ep, shares)
	}
	rec.LastUpdateTs = ts
	if err := e.state.PutAccountEpoch(addr, current, rec); err != nil {
		return nil, err
	}
	if cursor != current {
		if err := e.state.SetAccountCursor(addr, current); err != nil {
			return nil, err
		}
		e.emitter.Emit(events.AccountCompounded{
			Account:   addr,
			FromEpoch: cursor,
			ToEpoch:   current,
			Shares:    copyBigInt(materialized),
		})
	}
	return materialized, nil
}

// realize credits the growth the account has not yet seen against the epoch's
// accumulator and moves the debt baseline up to match.
func (e *Engine) realize(rec *AccountEpochRecord, ep *EpochRecord, shares *big.Int) {
	if shares.Sign() <= 0 {
		return
	}
	accumulated := new(big.Int).Mul(shares, ep.AccRewardPerShare)
	accumulated.Quo(accumulated, scaleBig)
	pending := new(big.Int).Sub(accumulated, rec.RewardDebt)
	if pending.Sign() > 0 {
		rec.RewardAccrued = new(big.Int).Add(rec.RewardAccrued, pending)
	}
	rec.RewardDebt = accumulated
}
