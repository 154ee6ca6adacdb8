package cycle

import coreerrors "deltastake/core/errors"

// Clock maps unix timestamps onto cycle and period numbers once the pool start
// time is known. The zero value is an unstarted clock.
type Clock struct {
	cfg       Config
	startTime int64
}

// NewClock returns a clock anchored at startTime. A zero start time yields a
// clock that reports ErrNotStarted.
func NewClock(cfg Config, startTime int64) Clock {
	return Clock{cfg: cfg, startTime: startTime}
}

// Config returns the cycle configuration backing the clock.
func (c Clock) Config() Config { return c.cfg }

// StartTime returns the anchor timestamp, zero when unstarted.
func (c Clock) StartTime() int64 { return c.startTime }

// Started reports whether the clock has a start time.
func (c Clock) Started() bool { return c.startTime != 0 }

// CycleAt returns the cycle containing ts. Cycle 1 begins at the start time.
func (c Clock) CycleAt(ts int64) (uint64, error) {
	if c.startTime == 0 || ts < c.startTime || c.cfg.CycleLengthSeconds == 0 {
		return 0, coreerrors.ErrNotStarted
	}
	elapsed := uint64(ts - c.startTime)
	return elapsed/c.cfg.CycleLengthSeconds + 1, nil
}

// PeriodAt returns the period containing ts.
func (c Clock) PeriodAt(ts int64) (uint64, error) {
	cycle, err := c.CycleAt(ts)
	if err != nil {
		return 0, err
	}
	return c.cfg.PeriodOf(cycle), nil
}

// CycleStart returns the unix timestamp at which the cycle begins.
func (c Clock) CycleStart(cycle uint64) int64 {
	if cycle == 0 {
		return c.startTime
	}
	return c.startTime + int64((cycle-1)*c.cfg.CycleLengthSeconds)
}
