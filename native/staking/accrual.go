package staking

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"deltastake/core/events"
	"deltastake/state/snapshots"
)

// EstimateRewards projects the claim the staker would receive now, covering at
// most maxPeriods elapsed periods (zero means all of them).
func (e *Engine) EstimateRewards(staker common.Address, maxPeriods uint64) (Claim, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pool, err := e.loadPool()
	if err != nil {
		return Claim{}, err
	}
	if !pool.Started {
		return Claim{}, ErrNotStarted
	}
	if pool.Disabled {
		return Claim{}, ErrDisabled
	}
	st, _, err := e.state.StakingStakerGet(staker)
	if err != nil {
		return Claim{}, err
	}
	current, err := e.currentPeriod(pool)
	if err != nil {
		return Claim{}, err
	}
	return e.computeClaim(staker, st, current, maxPeriods)
}

// ClaimRewards pays the staker for up to maxPeriods elapsed periods and
// advances the last claimed period. With nothing to claim the call is a no-op
// returning an empty claim.
func (e *Engine) ClaimRewards(staker common.Address, maxPeriods uint64) (Claim, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pool, err := e.loadPool()
	if err != nil {
		return Claim{}, err
	}
	if !pool.Started {
		return Claim{}, ErrNotStarted
	}
	if pool.Disabled {
		return Claim{}, ErrDisabled
	}
	prev, ok, err := e.state.StakingStakerGet(staker)
	if err != nil {
		return Claim{}, err
	}
	if !ok {
		return Claim{Amount: big.NewInt(0)}, nil
	}
	current, err := e.currentCycle(pool)
	if err != nil {
		return Claim{}, err
	}
	claim, err := e.computeClaim(staker, prev, e.params.Cycle.PeriodOf(current), maxPeriods)
	if err != nil {
		return Claim{}, err
	}
	if claim.Periods == 0 {
		return claim, nil
	}
	payout := claim.Amount.Sign() > 0
	if payout && e.vault == nil {
		return Claim{}, errVaultNotSet
	}

	next := prev.clone()
	next.LastClaimedPeriod = claim.EndPeriod()
	tx := newTxn()
	tx.putStaker(staker, prev, next)
	if err := e.commit(tx); err != nil {
		return Claim{}, err
	}
	if payout {
		if err := e.vault.Pay(staker, claim.Amount); err != nil {
			return Claim{}, e.rollback(tx, "claim", err)
		}
	}

	e.metrics.ObserveClaim(claim.Amount)
	e.emit(events.RewardsClaimed{
		Staker:      staker,
		Cycle:       current,
		StartPeriod: claim.StartPeriod,
		Periods:     claim.Periods,
		Amount:      newBigInt(claim.Amount),
	})
	e.logger.Info("staking rewards claimed",
		"staker", staker.Hex(),
		"start_period", claim.StartPeriod,
		"periods", claim.Periods,
		"amount", claim.Amount.String())
	return claim, nil
}

// computeClaim integrates the staker's share of the schedule over the
// claimable periods. The staker and global histories are merged into spans of
// constant weight; each span is cut at period boundaries and accrues
// rate * cycles * stakerWeight / globalWeight, floored per piece. Spans
// without global weight are lost cycles and accrue nothing.
func (e *Engine) computeClaim(staker common.Address, st *StakerState, currentPeriod, maxPeriods uint64) (Claim, error) {
	var lastClaimed uint64
	if st != nil {
		lastClaimed = st.LastClaimedPeriod
	}
	claim := Claim{StartPeriod: lastClaimed + 1, Amount: big.NewInt(0)}
	if st == nil || currentPeriod <= 1 || claim.StartPeriod > currentPeriod-1 {
		return claim, nil
	}
	end := currentPeriod - 1
	if maxPeriods > 0 && maxPeriods-1 < end-claim.StartPeriod {
		end = claim.StartPeriod + maxPeriods - 1
	}
	claim.Periods = end - claim.StartPeriod + 1

	stakerHistory, err := e.state.StakingStakerHistory(staker)
	if err != nil {
		return Claim{}, err
	}
	if stakerHistory.Len() == 0 {
		return claim, nil
	}
	globalHistory, err := e.state.StakingGlobalHistory()
	if err != nil {
		return Claim{}, err
	}

	cfg := e.params.Cycle
	rates := make(map[uint64]*big.Int)
	rateOf := func(period uint64) (*big.Int, error) {
		if rate, ok := rates[period]; ok {
			return rate, nil
		}
		rate, err := e.scheduleAt(period)
		if err != nil {
			return nil, err
		}
		rates[period] = rate
		return rate, nil
	}

	from, to := cfg.FirstCycle(claim.StartPeriod), cfg.LastCycle(end)+1
	for span := range snapshots.Merge(stakerHistory, globalHistory, from, to) {
		if span.Weight == 0 || span.Total == 0 {
			continue
		}
		if span.Weight > span.Total {
			return Claim{}, fmt.Errorf("%w: staker weight %d exceeds global weight %d at cycle %d",
				ErrArithmetic, span.Weight, span.Total, span.From)
		}
		weight := new(big.Int).SetUint64(span.Weight)
		total := new(big.Int).SetUint64(span.Total)
		for cursor := span.From; cursor < span.To; {
			period := cfg.PeriodOf(cursor)
			pieceEnd := min(cfg.LastCycle(period)+1, span.To)
			rate, err := rateOf(period)
			if err != nil {
				return Claim{}, err
			}
			if rate.Sign() > 0 {
				share := new(big.Int).Mul(rate, new(big.Int).SetUint64(pieceEnd-cursor))
				share.Mul(share, weight)
				share.Quo(share, total)
				claim.Amount.Add(claim.Amount, share)
			}
			cursor = pieceEnd
		}
	}
	return claim, nil
}
