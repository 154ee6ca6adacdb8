package snapshots

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	coreerrors "deltastake/core/errors"
)

func TestRecordDeltaAppendsAndMergesWithinCycle(t *testing.T) {
	h := &History{}

	u, changed, err := h.RecordDelta(1, 10)
	require.NoError(t, err)
	require.True(t, changed)
	require.True(t, u.Appends())

	_, _, err = h.RecordDelta(1, 5)
	require.NoError(t, err)
	require.Equal(t, 1, h.Len(), "same-cycle activity must not append")
	require.Equal(t, Snapshot{StartCycle: 1, Weight: 15}, h.At(0))

	_, _, err = h.RecordDelta(4, -15)
	require.NoError(t, err)
	require.Equal(t, []Snapshot{{1, 15}, {4, 0}}, h.Entries())

	_, changed, err = h.RecordDelta(5, 0)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, 2, h.Len())
}

func TestRecordDeltaRejectsUnderflowAndOutOfOrder(t *testing.T) {
	h := &History{}
	_, _, err := h.RecordDelta(3, 2)
	require.NoError(t, err)

	_, _, err = h.RecordDelta(3, -3)
	require.True(t, errors.Is(err, coreerrors.ErrArithmetic))

	_, _, err = h.RecordDelta(2, 1)
	require.ErrorIs(t, err, ErrOutOfOrder)
	require.Equal(t, []Snapshot{{3, 2}}, h.Entries())
}

func TestPlanDoesNotMutateAndRevertRestores(t *testing.T) {
	h := &History{}
	_, _, err := h.RecordDelta(1, 4)
	require.NoError(t, err)

	appendUpdate, _, err := h.Plan(2, 6)
	require.NoError(t, err)
	require.Equal(t, 1, h.Len())

	h.Apply(appendUpdate)
	require.Equal(t, uint64(10), h.WeightAt(2))
	h.Revert(appendUpdate)
	require.Equal(t, []Snapshot{{1, 4}}, h.Entries())

	inPlace, _, err := h.Plan(1, 6)
	require.NoError(t, err)
	require.False(t, inPlace.Appends())
	h.Apply(inPlace)
	require.Equal(t, uint64(10), h.WeightAt(1))
	h.Revert(inPlace)
	require.Equal(t, uint64(4), h.WeightAt(1))
}

func TestSearchAndWeightAt(t *testing.T) {
	h, err := NewHistory([]Snapshot{{2, 10}, {5, 30}, {9, 0}})
	require.NoError(t, err)

	require.Equal(t, -1, h.Search(1))
	require.Equal(t, 0, h.Search(2))
	require.Equal(t, 0, h.Search(4))
	require.Equal(t, 1, h.Search(5))
	require.Equal(t, 2, h.Search(100))

	require.Equal(t, uint64(0), h.WeightAt(1))
	require.Equal(t, uint64(10), h.WeightAt(3))
	require.Equal(t, uint64(30), h.WeightAt(8))
	require.Equal(t, uint64(0), h.WeightAt(9))

	_, err = NewHistory([]Snapshot{{3, 1}, {3, 2}})
	require.ErrorIs(t, err, ErrOutOfOrder)
}

func TestMergeYieldsConstantSpans(t *testing.T) {
	staker, err := NewHistory([]Snapshot{{3, 10}, {7, 0}})
	require.NoError(t, err)
	global, err := NewHistory([]Snapshot{{1, 5}, {3, 15}, {5, 45}, {7, 35}})
	require.NoError(t, err)

	var spans []Span
	for span := range Merge(staker, global, 1, 11) {
		spans = append(spans, span)
	}
	require.Equal(t, []Span{
		{From: 1, To: 3, Weight: 0, Total: 5, TotalIndex: 0},
		{From: 3, To: 5, Weight: 10, Total: 15, TotalIndex: 1},
		{From: 5, To: 7, Weight: 10, Total: 45, TotalIndex: 2},
		{From: 7, To: 11, Weight: 0, Total: 35, TotalIndex: 3},
	}, spans)
}

func TestMergeStartsMidHistoryAndStopsEarly(t *testing.T) {
	global, err := NewHistory([]Snapshot{{4, 1}, {6, 2}, {8, 3}})
	require.NoError(t, err)

	var spans []Span
	for span := range global.Spans(1, 20) {
		spans = append(spans, span)
		if len(spans) == 2 {
			break
		}
	}
	require.Equal(t, []Span{
		{From: 1, To: 4, Total: 0, TotalIndex: -1},
		{From: 4, To: 6, Total: 1, TotalIndex: 0},
	}, spans)

	spans = spans[:0]
	for span := range global.Spans(7, 9) {
		spans = append(spans, span)
	}
	require.Equal(t, []Span{
		{From: 7, To: 8, Total: 2, TotalIndex: 1},
		{From: 8, To: 9, Total: 3, TotalIndex: 2},
	}, spans)

	for range global.Spans(5, 5) {
		t.Fatalf("empty range must not yield")
	}
}
