package staking

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"deltastake/core/cycle"
	"deltastake/core/events"
	"deltastake/observability/metrics"
	"deltastake/state/snapshots"
)

// RewardsVault moves reward currency in and out of pool custody.
type RewardsVault interface {
	// Pull transfers amount from the funder into the pool.
	Pull(from common.Address, amount *big.Int) error
	// Pay transfers amount from the pool to the recipient.
	Pay(to common.Address, amount *big.Int) error
	// Balance reports the reward currency held by the pool.
	Balance() (*big.Int, error)
}

// Custody returns deposited assets to their owner. Release must be
// all-or-nothing for the supplied batch.
type Custody interface {
	Release(to common.Address, refs []TokenRef) error
}

// Engine wires pool lifecycle, staking and reward accrual with persistence,
// custody and event emission. All calls are serialised by a single mutex.
type Engine struct {
	mu      sync.Mutex
	params  Params
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
	vault   RewardsVault
	custody Custody
	logger  *slog.Logger
	metrics *metrics.StakingMetrics
}

// NewEngine constructs an engine with default dependencies after validating
// the pool parameters.
func NewEngine(params Params) (*Engine, error) {
	if params.FreezeCycles == 0 {
		params.FreezeCycles = DefaultFreezeCycles
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		params:  params.clone(),
		emitter: events.NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
		logger:  slog.Default(),
		metrics: metrics.Staking(),
	}, nil
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetVault configures the reward currency custody.
func (e *Engine) SetVault(vault RewardsVault) { e.vault = vault }

// SetCustody configures the asset custody used on withdrawal.
func (e *Engine) SetCustody(custody Custody) { e.custody = custody }

// SetLogger overrides the structured logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// Params returns a copy of the pool parameters.
func (e *Engine) Params() Params { return e.params.clone() }

// Start fixes the pool start time. Cycle 1 begins now.
func (e *Engine) Start(caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	if pool.Started {
		return ErrAlreadyStarted
	}
	now := e.now()
	if now <= 0 {
		return fmt.Errorf("%w: clock returned %d", ErrConfig, now)
	}
	next := pool.clone()
	next.Started = true
	next.StartTime = now
	tx := newTxn()
	tx.putPool(pool, next)
	if err := e.commit(tx); err != nil {
		return err
	}
	e.emit(events.StakingStarted{Owner: caller, StartTime: now})
	e.logger.Info("staking started", "start_time", now)
	return nil
}

// Disable permanently halts staking and claiming. Repeated calls are no-ops.
func (e *Engine) Disable(caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	if !pool.Started {
		return ErrNotStarted
	}
	if pool.Disabled {
		return nil
	}
	current, err := e.currentCycle(pool)
	if err != nil {
		return err
	}
	next := pool.clone()
	next.Disabled = true
	tx := newTxn()
	tx.putPool(pool, next)
	if err := e.commit(tx); err != nil {
		return err
	}
	e.emit(events.StakingDisabled{Owner: caller, Cycle: current})
	e.logger.Warn("staking disabled", "cycle", current)
	return nil
}

// CurrentCycle returns the cycle at the engine clock.
func (e *Engine) CurrentCycle() (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pool, err := e.loadPool()
	if err != nil {
		return 0, err
	}
	return e.currentCycle(pool)
}

// CurrentPeriod returns the period at the engine clock, zero before start.
func (e *Engine) CurrentPeriod() (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pool, err := e.loadPool()
	if err != nil {
		return 0, err
	}
	if !pool.Started {
		return 0, nil
	}
	return e.currentPeriod(pool)
}

// Pool returns the lifecycle state.
func (e *Engine) Pool() (PoolState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pool, err := e.loadPool()
	if err != nil {
		return PoolState{}, err
	}
	return *pool, nil
}

// Staker returns the bookkeeping for addr.
func (e *Engine) Staker(addr common.Address) (StakerState, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return StakerState{}, false, ErrNilState
	}
	st, ok, err := e.state.StakingStakerGet(addr)
	if err != nil || !ok {
		return StakerState{}, false, err
	}
	return *st.clone(), true, nil
}

// Token returns the deposit record of ref.
func (e *Engine) Token(ref TokenRef) (TokenInfo, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return TokenInfo{}, false, ErrNilState
	}
	info, ok, err := e.state.StakingTokenGet(ref)
	if err != nil || !ok {
		return TokenInfo{}, false, err
	}
	return *info, true, nil
}

// GlobalHistory returns a copy of the global snapshots.
func (e *Engine) GlobalHistory() ([]snapshots.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, ErrNilState
	}
	h, err := e.state.StakingGlobalHistory()
	if err != nil {
		return nil, err
	}
	return h.Entries(), nil
}

// StakerHistory returns a copy of the snapshots of addr.
func (e *Engine) StakerHistory(addr common.Address) ([]snapshots.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, ErrNilState
	}
	h, err := e.state.StakingStakerHistory(addr)
	if err != nil {
		return nil, err
	}
	return h.Entries(), nil
}

func (e *Engine) requireOwner(caller common.Address) error {
	if caller != e.params.Owner {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) loadPool() (*PoolState, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	pool, ok, err := e.state.StakingPoolGet()
	if err != nil {
		return nil, err
	}
	if !ok || pool == nil {
		return (*PoolState)(nil).clone(), nil
	}
	return pool.clone(), nil
}

func (e *Engine) clock(pool *PoolState) cycle.Clock {
	return cycle.NewClock(e.params.Cycle, pool.StartTime)
}

func (e *Engine) currentCycle(pool *PoolState) (uint64, error) {
	if !pool.Started {
		return 0, ErrNotStarted
	}
	return e.clock(pool).CycleAt(e.now())
}

func (e *Engine) currentPeriod(pool *PoolState) (uint64, error) {
	current, err := e.currentCycle(pool)
	if err != nil {
		return 0, err
	}
	return e.params.Cycle.PeriodOf(current), nil
}

func (e *Engine) scheduleAt(period uint64) (*big.Int, error) {
	rate, err := e.state.StakingScheduleGet(period)
	if err != nil {
		return nil, err
	}
	return newBigInt(rate), nil
}

func (e *Engine) commit(tx *txn) error {
	if tx.forward.Empty() {
		return nil
	}
	return e.state.StakingCommit(tx.forward)
}

// rollback undoes a committed transaction after a failed external transfer.
func (e *Engine) rollback(tx *txn, operation string, cause error) error {
	e.metrics.IncTransferFailure(operation)
	if tx.inverse.Empty() {
		return fmt.Errorf("%w: %w", ErrTransferFailed, cause)
	}
	if err := e.state.StakingCommit(tx.inverse); err != nil {
		e.logger.Error("staking rollback failed", "operation", operation, "error", err, "cause", cause)
		return fmt.Errorf("%w: %w (rollback: %v)", ErrTransferFailed, cause, err)
	}
	e.logger.Warn("staking transfer failed, state reverted", "operation", operation, "error", cause)
	return fmt.Errorf("%w: %w", ErrTransferFailed, cause)
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}
