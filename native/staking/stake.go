package staking

import (
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"deltastake/core/events"
	"deltastake/state/snapshots"
)

// OnAssetReceived is the custody callback for a single deposit.
func (e *Engine) OnAssetReceived(from common.Address, ref TokenRef, quantity uint64, data []byte) error {
	return e.OnBatchAssetReceived(from, []TokenRef{ref}, []uint64{quantity}, data)
}

// OnBatchAssetReceived is the custody callback for a batch deposit. Every
// element is validated before anything is recorded; the summed weight yields
// a single global and a single staker history update.
func (e *Engine) OnBatchAssetReceived(from common.Address, refs []TokenRef, quantities []uint64, _ []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(refs) == 0 || len(refs) != len(quantities) {
		return fmt.Errorf("%w: %d tokens, %d quantities", ErrInvalidQuantity, len(refs), len(quantities))
	}
	if from == (common.Address{}) {
		return ErrZeroAddress
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	if !pool.Started {
		return ErrNotStarted
	}
	if pool.Disabled {
		return ErrDisabled
	}
	current, err := e.currentCycle(pool)
	if err != nil {
		return err
	}

	tx := newTxn()
	weights := make([]uint64, len(refs))
	seen := make(map[TokenRef]struct{}, len(refs))
	var total uint64
	for i, ref := range refs {
		if quantities[i] != 1 {
			return fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantities[i])
		}
		weight, err := e.params.WeightOf(ref)
		if err != nil {
			return err
		}
		if _, dup := seen[ref]; dup {
			return fmt.Errorf("%w: %s", ErrAlreadyStaked, ref)
		}
		seen[ref] = struct{}{}
		if _, exists, err := e.state.StakingTokenGet(ref); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("%w: %s", ErrAlreadyStaked, ref)
		}
		if weight > math.MaxInt64-total {
			return fmt.Errorf("%w: batch weight overflow", ErrArithmetic)
		}
		total += weight
		weights[i] = weight
		tx.putToken(ref, nil, &TokenInfo{Ref: ref, Owner: from, DepositCycle: current, Weight: weight})
	}

	prevStaker, exists, err := e.state.StakingStakerGet(from)
	if err != nil {
		return err
	}
	var nextStaker *StakerState
	if exists {
		nextStaker = prevStaker.clone()
	} else {
		prevStaker = nil
		nextStaker = &StakerState{LastClaimedPeriod: e.params.Cycle.PeriodOf(current) - 1}
	}
	wasEmpty := len(nextStaker.Tokens) == 0
	nextStaker.Tokens = append(nextStaker.Tokens, refs...)
	tx.putStaker(from, prevStaker, nextStaker)

	stakerWeight, globalWeight, err := e.planWeightChange(tx, from, current, int64(total))
	if err != nil {
		return err
	}
	if err := e.commit(tx); err != nil {
		return err
	}

	e.metrics.ObserveStaked(len(refs), len(refs) > 1)
	e.metrics.SetTotalWeight(globalWeight)
	if wasEmpty {
		e.metrics.AddStakers(1)
	}
	e.emit(events.NftStaked{
		Staker:   from,
		Cycle:    current,
		Contract: refs[0].Contract,
		TokenIDs: tokenIDs(refs),
		Weights:  weights,
	})
	e.emit(events.HistoriesUpdated{Staker: from, StartCycle: current, StakerWeight: stakerWeight, GlobalWeight: globalWeight})
	e.logger.Info("staking deposit recorded",
		"staker", from.Hex(),
		"tokens", len(refs),
		"weight", total,
		"cycle", current)
	return nil
}

// Unstake withdraws a single token back to its depositor.
func (e *Engine) Unstake(caller common.Address, ref TokenRef) error {
	return e.BatchUnstake(caller, []TokenRef{ref})
}

// BatchUnstake withdraws tokens back to their depositor. While the pool is
// enabled every token must have served the freeze window; once disabled the
// freeze and the history bookkeeping are skipped.
func (e *Engine) BatchUnstake(caller common.Address, refs []TokenRef) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(refs) == 0 {
		return fmt.Errorf("%w: no tokens", ErrInvalidQuantity)
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	if !pool.Started {
		return ErrNotStarted
	}
	current, err := e.currentCycle(pool)
	if err != nil {
		return err
	}
	if e.custody == nil {
		return errCustodyNotSet
	}

	tx := newTxn()
	weights := make([]uint64, len(refs))
	removed := make(map[TokenRef]struct{}, len(refs))
	var total uint64
	for i, ref := range refs {
		if _, dup := removed[ref]; dup {
			return fmt.Errorf("%w: %s listed twice", ErrNotStakedOrWrongOwner, ref)
		}
		info, ok, err := e.state.StakingTokenGet(ref)
		if err != nil {
			return err
		}
		if !ok || info.Owner != caller {
			return fmt.Errorf("%w: %s", ErrNotStakedOrWrongOwner, ref)
		}
		if !pool.Disabled && current < info.DepositCycle+e.params.FreezeCycles {
			return fmt.Errorf("%w: %s deposited at cycle %d", ErrTokenFrozen, ref, info.DepositCycle)
		}
		removed[ref] = struct{}{}
		weights[i] = info.Weight
		if info.Weight > math.MaxInt64-total {
			return fmt.Errorf("%w: batch weight overflow", ErrArithmetic)
		}
		total += info.Weight
		tx.putToken(ref, info, nil)
	}

	prevStaker, ok, err := e.state.StakingStakerGet(caller)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: unknown staker", ErrNotStakedOrWrongOwner)
	}
	nextStaker := prevStaker.clone()
	remaining := nextStaker.Tokens[:0]
	for _, ref := range nextStaker.Tokens {
		if _, drop := removed[ref]; !drop {
			remaining = append(remaining, ref)
		}
	}
	nextStaker.Tokens = remaining
	tx.putStaker(caller, prevStaker, nextStaker)

	bookkept := !pool.Disabled
	var stakerWeight, globalWeight uint64
	if bookkept {
		stakerWeight, globalWeight, err = e.planWeightChange(tx, caller, current, -int64(total))
		if err != nil {
			return err
		}
	}
	if err := e.commit(tx); err != nil {
		return err
	}
	if err := e.custody.Release(caller, refs); err != nil {
		return e.rollback(tx, "unstake", err)
	}

	e.metrics.ObserveUnstaked(len(refs), bookkept)
	if bookkept {
		e.metrics.SetTotalWeight(globalWeight)
	}
	if len(nextStaker.Tokens) == 0 {
		e.metrics.AddStakers(-1)
	}
	e.emit(events.NftUnstaked{
		Staker:   caller,
		Cycle:    current,
		Contract: refs[0].Contract,
		TokenIDs: tokenIDs(refs),
		Weights:  weights,
		Bookkept: bookkept,
	})
	if bookkept {
		e.emit(events.HistoriesUpdated{Staker: caller, StartCycle: current, StakerWeight: stakerWeight, GlobalWeight: globalWeight})
	}
	e.logger.Info("staking withdrawal recorded",
		"staker", caller.Hex(),
		"tokens", len(refs),
		"weight", total,
		"cycle", current,
		"bookkept", bookkept)
	return nil
}

// planWeightChange stages the staker and global history updates for delta at
// cycle and returns the resulting weights.
func (e *Engine) planWeightChange(tx *txn, staker common.Address, cycle uint64, delta int64) (uint64, uint64, error) {
	stakerHistory, err := e.state.StakingStakerHistory(staker)
	if err != nil {
		return 0, 0, err
	}
	globalHistory, err := e.state.StakingGlobalHistory()
	if err != nil {
		return 0, 0, err
	}
	stakerWeight, err := planInto(stakerHistory, cycle, delta, func(u snapshots.Update) { tx.recordStakerHistory(staker, u) })
	if err != nil {
		return 0, 0, fmt.Errorf("staker history: %w", err)
	}
	globalWeight, err := planInto(globalHistory, cycle, delta, tx.recordGlobal)
	if err != nil {
		return 0, 0, fmt.Errorf("global history: %w", err)
	}
	return stakerWeight, globalWeight, nil
}

func planInto(h *snapshots.History, cycle uint64, delta int64, record func(snapshots.Update)) (uint64, error) {
	u, changed, err := h.Plan(cycle, delta)
	if err != nil {
		return 0, err
	}
	if !changed {
		last, _ := h.Last()
		return last.Weight, nil
	}
	record(u)
	return u.Entry.Weight, nil
}

func tokenIDs(refs []TokenRef) []uint256.Int {
	out := make([]uint256.Int, len(refs))
	for i := range refs {
		out[i] = refs[i].ID
	}
	return out
}
