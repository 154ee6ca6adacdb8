package staking

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"deltastake/core/events"
)

// LostCycles lists the funded, elapsed and not yet withdrawn cycles of
// [fromPeriod, toPeriod] during which the global weight was zero, with the
// global snapshot index to quote when withdrawing them.
func (e *Engine) LostCycles(fromPeriod, toPeriod uint64) ([]LostCycle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fromPeriod == 0 || fromPeriod > toPeriod {
		return nil, fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, fromPeriod, toPeriod)
	}
	if toPeriod-fromPeriod+1 > MaxFundingPeriods {
		return nil, fmt.Errorf("%w: %d periods exceeds %d", ErrInvalidRange, toPeriod-fromPeriod+1, MaxFundingPeriods)
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	current, err := e.currentCycle(pool)
	if err != nil {
		return nil, err
	}
	cfg := e.params.Cycle
	from, to := cfg.FirstCycle(fromPeriod), min(cfg.LastCycle(toPeriod)+1, current)
	if from >= to {
		return nil, nil
	}
	globalHistory, err := e.state.StakingGlobalHistory()
	if err != nil {
		return nil, err
	}

	var out []LostCycle
	for span := range globalHistory.Spans(from, to) {
		if span.Total != 0 {
			continue
		}
		for c := span.From; c < span.To; c++ {
			rate, err := e.scheduleAt(cfg.PeriodOf(c))
			if err != nil {
				return nil, err
			}
			if rate.Sign() == 0 {
				continue
			}
			withdrawn, err := e.state.StakingLostCycleWithdrawn(c)
			if err != nil {
				return nil, err
			}
			if withdrawn {
				continue
			}
			out = append(out, LostCycle{Cycle: c, GlobalSnapshotIndex: span.TotalIndex, Rewards: rate})
		}
	}
	return out, nil
}

// WithdrawLostCycleRewards pays the reward of an elapsed cycle that had no
// global weight to the given recipient. The caller names the global snapshot
// in force during the cycle (-1 when the cycle precedes every snapshot); each
// cycle can be withdrawn once.
func (e *Engine) WithdrawLostCycleRewards(caller, to common.Address, cycleNum uint64, globalSnapshotIndex int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	if to == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	current, err := e.currentCycle(pool)
	if err != nil {
		return nil, err
	}
	if cycleNum == 0 || cycleNum >= current {
		return nil, fmt.Errorf("%w: cycle %d, current %d", ErrCycleNotElapsed, cycleNum, current)
	}
	withdrawn, err := e.state.StakingLostCycleWithdrawn(cycleNum)
	if err != nil {
		return nil, err
	}
	if withdrawn {
		return nil, fmt.Errorf("%w: cycle %d", ErrAlreadyWithdrawn, cycleNum)
	}
	globalHistory, err := e.state.StakingGlobalHistory()
	if err != nil {
		return nil, err
	}
	if covering := globalHistory.Search(cycleNum); covering != globalSnapshotIndex {
		return nil, fmt.Errorf("%w: cycle %d is covered by snapshot %d, not %d",
			ErrInvalidSnapshot, cycleNum, covering, globalSnapshotIndex)
	}
	if globalSnapshotIndex >= 0 && globalHistory.At(globalSnapshotIndex).Weight != 0 {
		return nil, fmt.Errorf("%w: snapshot %d", ErrNonZeroWeight, globalSnapshotIndex)
	}
	rate, err := e.scheduleAt(e.params.Cycle.PeriodOf(cycleNum))
	if err != nil {
		return nil, err
	}
	payout := rate.Sign() > 0
	if payout && e.vault == nil {
		return nil, errVaultNotSet
	}

	tx := newTxn()
	tx.markLostCycle(cycleNum)
	if err := e.commit(tx); err != nil {
		return nil, err
	}
	if payout {
		if err := e.vault.Pay(to, rate); err != nil {
			return nil, e.rollback(tx, "lost_cycle", err)
		}
	}

	e.metrics.ObserveLostCycle(rate)
	e.emit(events.LostCycleWithdrawn{To: to, Cycle: cycleNum, GlobalSnapshotIndex: globalSnapshotIndex, Amount: newBigInt(rate)})
	e.logger.Info("staking lost cycle withdrawn",
		"cycle", cycleNum,
		"snapshot", globalSnapshotIndex,
		"to", to.Hex(),
		"amount", rate.String())
	return rate, nil
}

// WithdrawnLostCycle reports whether cycle has already been reclaimed.
func (e *Engine) WithdrawnLostCycle(cycleNum uint64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return false, ErrNilState
	}
	return e.state.StakingLostCycleWithdrawn(cycleNum)
}
