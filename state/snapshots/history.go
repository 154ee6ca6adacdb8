package snapshots

import (
	"errors"
	"fmt"
	"math"
	"sort"

	coreerrors "deltastake/core/errors"
)

// ErrOutOfOrder is returned when a delta is planned for a cycle that precedes
// the most recent snapshot.
var ErrOutOfOrder = errors.New("snapshots: cycle precedes latest snapshot")

// Snapshot marks a step change in a tracked weight. The weight applies from
// StartCycle until the next snapshot's StartCycle (exclusive).
type Snapshot struct {
	StartCycle uint64
	Weight     uint64
}

// Update describes a single mutation of a history. When Prev is nil the update
// appends Entry at Index; otherwise it overwrites the entry at Index whose
// previous value was *Prev.
type Update struct {
	Index int
	Entry Snapshot
	Prev  *Snapshot
}

// Appends reports whether the update grows the history.
func (u Update) Appends() bool { return u.Prev == nil }

// History is an append-only, cycle-ordered sequence of snapshots. It is not
// safe for concurrent use; the owning engine serialises access.
type History struct {
	entries []Snapshot
}

// NewHistory builds a history from already ordered entries.
func NewHistory(entries []Snapshot) (*History, error) {
	for i := 1; i < len(entries); i++ {
		if entries[i].StartCycle <= entries[i-1].StartCycle {
			return nil, fmt.Errorf("%w: entry %d starts at %d after %d", ErrOutOfOrder, i, entries[i].StartCycle, entries[i-1].StartCycle)
		}
	}
	return &History{entries: append([]Snapshot(nil), entries...)}, nil
}

// Len returns the number of snapshots.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.entries)
}

// At returns the snapshot at index i.
func (h *History) At(i int) Snapshot { return h.entries[i] }

// Last returns the most recent snapshot and false when the history is empty.
func (h *History) Last() (Snapshot, bool) {
	if h.Len() == 0 {
		return Snapshot{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Entries returns a copy of the snapshots.
func (h *History) Entries() []Snapshot {
	if h == nil {
		return nil
	}
	return append([]Snapshot(nil), h.entries...)
}

// Clone returns a deep copy of the history.
func (h *History) Clone() *History {
	if h == nil {
		return &History{}
	}
	return &History{entries: h.Entries()}
}

// Search returns the index of the latest snapshot with StartCycle <= cycle, or
// -1 when cycle precedes the first snapshot.
func (h *History) Search(cycle uint64) int {
	if h.Len() == 0 {
		return -1
	}
	idx := sort.Search(len(h.entries), func(i int) bool {
		return h.entries[i].StartCycle > cycle
	})
	return idx - 1
}

// WeightAt returns the weight in force during cycle.
func (h *History) WeightAt(cycle uint64) uint64 {
	idx := h.Search(cycle)
	if idx < 0 {
		return 0
	}
	return h.entries[idx].Weight
}

// Plan computes the update that applies delta at cycle without mutating the
// history. Activity within the cycle of the latest snapshot rewrites that
// snapshot in place so a history holds at most one entry per active cycle.
// The boolean is false when delta is zero and nothing needs to change.
func (h *History) Plan(cycle uint64, delta int64) (Update, bool, error) {
	if delta == 0 {
		return Update{}, false, nil
	}
	last, ok := h.Last()
	if ok && cycle < last.StartCycle {
		return Update{}, false, fmt.Errorf("%w: cycle %d, latest %d", ErrOutOfOrder, cycle, last.StartCycle)
	}
	weight, err := applyDelta(last.Weight, delta)
	if err != nil {
		return Update{}, false, err
	}
	if ok && last.StartCycle == cycle {
		prev := last
		return Update{
			Index: len(h.entries) - 1,
			Entry: Snapshot{StartCycle: cycle, Weight: weight},
			Prev:  &prev,
		}, true, nil
	}
	return Update{
		Index: h.Len(),
		Entry: Snapshot{StartCycle: cycle, Weight: weight},
	}, true, nil
}

// Apply performs a previously planned update.
func (h *History) Apply(u Update) {
	if u.Appends() {
		h.entries = append(h.entries[:u.Index], u.Entry)
		return
	}
	h.entries[u.Index] = u.Entry
}

// Revert undoes an applied update.
func (h *History) Revert(u Update) {
	if u.Appends() {
		if u.Index < len(h.entries) {
			h.entries = h.entries[:u.Index]
		}
		return
	}
	h.entries[u.Index] = *u.Prev
}

// RecordDelta plans and applies delta at cycle.
func (h *History) RecordDelta(cycle uint64, delta int64) (Update, bool, error) {
	u, changed, err := h.Plan(cycle, delta)
	if err != nil || !changed {
		return u, changed, err
	}
	h.Apply(u)
	return u, true, nil
}

func applyDelta(weight uint64, delta int64) (uint64, error) {
	if delta > 0 {
		add := uint64(delta)
		if weight > math.MaxUint64-add {
			return 0, fmt.Errorf("%w: weight overflow", coreerrors.ErrArithmetic)
		}
		return weight + add, nil
	}
	sub := uint64(-delta)
	if delta == math.MinInt64 {
		sub = uint64(math.MaxInt64) + 1
	}
	if sub > weight {
		return 0, fmt.Errorf("%w: weight underflow (%d - %d)", coreerrors.ErrArithmetic, weight, sub)
	}
	return weight - sub, nil
}
