package cycle

import (
	"errors"
	"testing"

	coreerrors "deltastake/core/errors"
)

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{name: "default", cfg: DefaultConfig(), ok: true},
		{name: "minimum", cfg: Config{CycleLengthSeconds: 60, PeriodLengthCycles: 2}, ok: true},
		{name: "short cycle", cfg: Config{CycleLengthSeconds: 1, PeriodLengthCycles: 1}},
		{name: "short period", cfg: Config{CycleLengthSeconds: 60, PeriodLengthCycles: 1}},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, coreerrors.ErrConfig) {
			t.Fatalf("%s: expected config error, got %v", tc.name, err)
		}
	}
}

func TestClockBeforeStart(t *testing.T) {
	clock := NewClock(Config{CycleLengthSeconds: 60, PeriodLengthCycles: 10}, 0)
	if _, err := clock.CycleAt(1_000); !errors.Is(err, coreerrors.ErrNotStarted) {
		t.Fatalf("expected not started, got %v", err)
	}
	started := NewClock(Config{CycleLengthSeconds: 60, PeriodLengthCycles: 10}, 1_000)
	if _, err := started.CycleAt(999); !errors.Is(err, coreerrors.ErrNotStarted) {
		t.Fatalf("expected not started for timestamp before start, got %v", err)
	}
}

func TestClockCyclesAndPeriods(t *testing.T) {
	cfg := Config{CycleLengthSeconds: 60, PeriodLengthCycles: 10}
	clock := NewClock(cfg, 1_000)
	cases := []struct {
		ts     int64
		cycle  uint64
		period uint64
	}{
		{ts: 1_000, cycle: 1, period: 1},
		{ts: 1_059, cycle: 1, period: 1},
		{ts: 1_060, cycle: 2, period: 1},
		{ts: 1_000 + 9*60 + 59, cycle: 10, period: 1},
		{ts: 1_000 + 10*60, cycle: 11, period: 2},
		{ts: 1_000 + 25*60, cycle: 26, period: 3},
	}
	for _, tc := range cases {
		cycle, err := clock.CycleAt(tc.ts)
		if err != nil {
			t.Fatalf("cycle at %d: %v", tc.ts, err)
		}
		if cycle != tc.cycle {
			t.Fatalf("cycle at %d: expected %d, got %d", tc.ts, tc.cycle, cycle)
		}
		period, err := clock.PeriodAt(tc.ts)
		if err != nil {
			t.Fatalf("period at %d: %v", tc.ts, err)
		}
		if period != tc.period {
			t.Fatalf("period at %d: expected %d, got %d", tc.ts, tc.period, period)
		}
	}
	if cfg.FirstCycle(2) != 11 || cfg.LastCycle(2) != 20 {
		t.Fatalf("unexpected bounds for period 2: %d..%d", cfg.FirstCycle(2), cfg.LastCycle(2))
	}
	if cfg.PeriodOf(0) != 0 {
		t.Fatalf("cycle zero must map to period zero")
	}
	if clock.CycleStart(3) != 1_120 {
		t.Fatalf("unexpected start of cycle 3: %d", clock.CycleStart(3))
	}
}
