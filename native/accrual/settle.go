package accrual

import (
	"fmt"
	"math/big"

	"qstake/core/events"
	"qstake/observability/metrics"
)

// settle walks every epoch that fully elapsed since the global cursor last
// moved, finalizes each one at its own end boundary, compounds its reward into
// shares and carries the grown totals into the next epoch's opening state.
// Once the cursor reaches the terminal index the ledger is frozen.
func (e *Engine) settle(current uint64, ts uint64) error {
	last, err := e.state.GlobalCursor()
	if err != nil {
		return err
	}
	terminal := e.schedule.TerminalIndex()
	if last == terminal {
		return nil
	}
	if current > terminal {
		current = terminal
	}
	for i := last; i < current; i++ {
		if err := e.rollover(i); err != nil {
			return err
		}
	}
	if current < terminal {
		if err := e.accrueActive(current, ts); err != nil {
			return err
		}
	}
	if current != last {
		if err := e.state.SetGlobalCursor(current); err != nil {
			return err
		}
	}
	return nil
}

// rollover finalizes epoch i as fully elapsed up to its end boundary.
func (e *Engine) rollover(i uint64) error {
	ep, err := e.state.Epoch(i)
	if err != nil {
		return err
	}
	next, err := e.state.Epoch(i + 1)
	if err != nil {
		return err
	}
	endBoundary := e.schedule.Boundary(i + 1)
	if ep.TotalShares.Sign() > 0 {
		// The per-share increment is applied before compounding grows
		// TotalShares, so existing holders are not diluted by the
		// epoch's own freshly generated shares.
		e.accrueInto(ep, i, endBoundary)
		minted, err := e.compound(i, ep.TotalRewardAccrued)
		if err != nil {
			return err
		}
		ep.SharesGenerated = minted
		next.TotalShares = new(big.Int).Add(ep.TotalShares, minted)
		next.TotalStaked = new(big.Int).Add(ep.TotalStaked, ep.TotalRewardAccrued)
	}
	// An epoch nobody staked in generates nothing; its emission slice is
	// forgone rather than rolled into the next epoch.
	ep.LastUpdateTs = endBoundary
	next.LastUpdateTs = endBoundary
	if err := e.state.PutEpoch(i, ep); err != nil {
		return err
	}
	if err := e.state.PutEpoch(i+1, next); err != nil {
		return err
	}
	metrics.Ledger().ObserveEpochSettled()
	e.emitter.Emit(events.EpochSettled{
		Epoch:              i,
		TotalRewardAccrued: copyBigInt(ep.TotalRewardAccrued),
		AccRewardPerShare:  copyBigInt(ep.AccRewardPerShare),
		TotalShares:        copyBigInt(ep.TotalShares),
	})
	return nil
}

// accrueActive advances the currently running epoch to ts without settling it.
func (e *Engine) accrueActive(current uint64, ts uint64) error {
	ep, err := e.state.Epoch(current)
	if err != nil {
		return err
	}
	if ep.LastUpdateTs == 0 {
		ep.LastUpdateTs = e.schedule.Boundary(current)
	}
	if ep.TotalShares.Sign() > 0 {
		e.accrueInto(ep, current, ts)
	}
	if ts > ep.LastUpdateTs {
		ep.LastUpdateTs = ts
	}
	return e.state.PutEpoch(current, ep)
}

// accrueInto credits the emission earned between the epoch's last update and
// upTo, growing both the epoch total and the per-share accumulator.
func (e *Engine) accrueInto(ep *EpochRecord, index uint64, upTo uint64) {
	rewards := e.schedule.RewardsBetween(ep.LastUpdateTs, upTo)
	if rewards.Sign() <= 0 {
		return
	}
	ep.TotalRewardAccrued = new(big.Int).Add(ep.TotalRewardAccrued, rewards)
	incr := new(big.Int).Mul(rewards, scaleBig)
	incr.Quo(incr, ep.TotalShares)
	ep.AccRewardPerShare = new(big.Int).Add(ep.AccRewardPerShare, incr)

	// Track the value lost to the floor division: rewards minus what the
	// increment redeems across all outstanding shares.
	redeemed := new(big.Int).Mul(incr, ep.TotalShares)
	redeemed.Quo(redeemed, scaleBig)
	observeDust(index, clampedSub(rewards, redeemed))
}

// compound converts a settled epoch's reward total into shares: the vault
// prices the reward at its current exchange rate, the shares are minted to the
// ledger's own holding and the backing assets are pulled from the treasury.
// An underfunded treasury aborts the whole enclosing operation.
func (e *Engine) compound(index uint64, reward *big.Int) (*big.Int, error) {
	if reward == nil || reward.Sign() == 0 {
		return big.NewInt(0), nil
	}
	shares, err := e.vault.AssetsToShares(reward)
	if err != nil {
		return nil, err
	}
	if shares.Sign() > 0 {
		if err := e.vault.MintShares(e.self, shares); err != nil {
			return nil, err
		}
	}
	if err := e.treasury.Pull(reward); err != nil {
		metrics.Ledger().ObserveTreasuryShortfall()
		return nil, fmt.Errorf("%w: %v", ErrFundingShortfall, err)
	}
	e.emitter.Emit(events.TreasuryPulled{Epoch: index, Amount: copyBigInt(reward)})
	e.emitter.Emit(events.EpochCompounded{Epoch: index, Reward: copyBigInt(reward), SharesGenerated: copyBigInt(shares)})
	return shares, nil
}
