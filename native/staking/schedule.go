package staking

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"deltastake/core/events"
)

// maxAmountBits bounds persisted amounts to 256-bit unsigned values.
const maxAmountBits = 256

// AddRewardsForPeriods increments the per-cycle reward of every period in
// [startPeriod, endPeriod] and pulls the matching budget from the owner. Once
// the pool has started only future periods can be funded.
func (e *Engine) AddRewardsForPeriods(caller common.Address, startPeriod, endPeriod uint64, rewardsPerCycle *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	if pool.Disabled {
		return ErrDisabled
	}
	if startPeriod == 0 || startPeriod > endPeriod {
		return fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, startPeriod, endPeriod)
	}
	periods := endPeriod - startPeriod + 1
	if periods > MaxFundingPeriods {
		return fmt.Errorf("%w: %d periods exceeds %d", ErrInvalidRange, periods, MaxFundingPeriods)
	}
	if rewardsPerCycle == nil || rewardsPerCycle.Sign() <= 0 {
		return fmt.Errorf("%w: rewards per cycle", ErrInvalidAmount)
	}
	if pool.Started {
		current, err := e.currentPeriod(pool)
		if err != nil {
			return err
		}
		if startPeriod <= current {
			return fmt.Errorf("%w: period %d, current %d", ErrPeriodNotFundable, startPeriod, current)
		}
	}
	if e.vault == nil {
		return errVaultNotSet
	}

	tx := newTxn()
	for i := uint64(0); i < periods; i++ {
		period := startPeriod + i
		prev, err := e.scheduleAt(period)
		if err != nil {
			return err
		}
		next := new(big.Int).Add(prev, rewardsPerCycle)
		if next.BitLen() > maxAmountBits {
			return fmt.Errorf("%w: period %d rewards overflow", ErrArithmetic, period)
		}
		tx.putSchedule(period, prev, next)
	}
	total := new(big.Int).Mul(rewardsPerCycle, new(big.Int).SetUint64(e.params.Cycle.PeriodLengthCycles))
	total.Mul(total, new(big.Int).SetUint64(periods))
	nextPool := pool.clone()
	nextPool.TotalRewardsPool.Add(nextPool.TotalRewardsPool, total)
	if nextPool.TotalRewardsPool.BitLen() > maxAmountBits {
		return fmt.Errorf("%w: rewards pool overflow", ErrArithmetic)
	}
	tx.putPool(pool, nextPool)

	if err := e.vault.Pull(caller, total); err != nil {
		e.metrics.IncTransferFailure("fund")
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	if err := e.commit(tx); err != nil {
		if refundErr := e.vault.Pay(caller, total); refundErr != nil {
			e.logger.Error("staking funding refund failed", "amount", total.String(), "error", refundErr)
		}
		return err
	}
	e.metrics.ObserveFunding(total)
	e.emit(events.RewardsAdded{
		StartPeriod:     startPeriod,
		EndPeriod:       endPeriod,
		RewardsPerCycle: newBigInt(rewardsPerCycle),
		Total:           total,
	})
	e.logger.Info("staking rewards added",
		"start_period", startPeriod,
		"end_period", endPeriod,
		"rewards_per_cycle", rewardsPerCycle.String(),
		"total", total.String())
	return nil
}

// WithdrawRewardsPool sweeps amount of reward currency to the owner once the
// pool is disabled. Rewards earned but not yet claimed are not reserved.
func (e *Engine) WithdrawRewardsPool(caller common.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	if !pool.Disabled {
		return ErrNotDisabled
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if e.vault == nil {
		return errVaultNotSet
	}
	if err := e.vault.Pay(caller, amount); err != nil {
		e.metrics.IncTransferFailure("withdraw_pool")
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	e.emit(events.RewardsPoolWithdrawn{Owner: caller, Amount: newBigInt(amount)})
	e.logger.Warn("staking rewards pool withdrawn", "amount", amount.String())
	return nil
}

// RewardsSchedule returns the per-cycle reward of period, zero when unfunded.
func (e *Engine) RewardsSchedule(period uint64) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, ErrNilState
	}
	return e.scheduleAt(period)
}

// TotalRewardsPool returns the cumulative funded amount.
func (e *Engine) TotalRewardsPool() (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	return newBigInt(pool.TotalRewardsPool), nil
}

// RewardsBalance returns the reward currency currently held by the pool.
func (e *Engine) RewardsBalance() (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.vault == nil {
		return nil, errVaultNotSet
	}
	return e.vault.Balance()
}
