package cycle

import (
	"fmt"

	coreerrors "deltastake/core/errors"
)

const (
	// MinCycleLengthSeconds is the shortest supported accrual cycle.
	MinCycleLengthSeconds uint64 = 60
	// MinPeriodLengthCycles is the smallest number of cycles per period.
	MinPeriodLengthCycles uint64 = 2
)

// Config describes how wall-clock time is sliced into cycles and how cycles
// are grouped into periods.
type Config struct {
	// CycleLengthSeconds is the duration of a single cycle. Must be at least
	// one minute.
	CycleLengthSeconds uint64 `toml:"CycleLengthSeconds"`

	// PeriodLengthCycles is the number of consecutive cycles forming a
	// period, the unit of reward funding and claiming.
	PeriodLengthCycles uint64 `toml:"PeriodLengthCycles"`
}

// DefaultConfig returns a one-day cycle and a one-week period.
func DefaultConfig() Config {
	return Config{
		CycleLengthSeconds: 24 * 60 * 60,
		PeriodLengthCycles: 7,
	}
}

// Validate ensures the configuration is self-consistent.
func (c Config) Validate() error {
	if c.CycleLengthSeconds < MinCycleLengthSeconds {
		return fmt.Errorf("%w: invalid cycle length %d", coreerrors.ErrConfig, c.CycleLengthSeconds)
	}
	if c.PeriodLengthCycles < MinPeriodLengthCycles {
		return fmt.Errorf("%w: invalid period length %d", coreerrors.ErrConfig, c.PeriodLengthCycles)
	}
	return nil
}

// PeriodOf returns the period containing the cycle. Cycle zero (before start)
// maps to period zero.
func (c Config) PeriodOf(cycle uint64) uint64 {
	if cycle == 0 || c.PeriodLengthCycles == 0 {
		return 0
	}
	return (cycle-1)/c.PeriodLengthCycles + 1
}

// FirstCycle returns the first cycle of the period.
func (c Config) FirstCycle(period uint64) uint64 {
	if period == 0 {
		return 0
	}
	return (period-1)*c.PeriodLengthCycles + 1
}

// LastCycle returns the last cycle of the period.
func (c Config) LastCycle(period uint64) uint64 {
	if period == 0 {
		return 0
	}
	return period * c.PeriodLengthCycles
}
