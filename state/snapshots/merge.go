package snapshots

import "iter"

// Span is a maximal half-open cycle range [From, To) over which the weights of
// two merged histories stay constant. TotalIndex is the index of the snapshot
// of the second history in force, -1 before its first entry.
type Span struct {
	From       uint64
	To         uint64
	Weight     uint64
	Total      uint64
	TotalIndex int
}

// Cycles returns the number of cycles covered by the span.
func (s Span) Cycles() uint64 { return s.To - s.From }

// Merge walks two histories in lock-step over [from, to) and yields the
// constant-weight spans. A nil history behaves as an empty one.
func Merge(a, b *History, from, to uint64) iter.Seq[Span] {
	return func(yield func(Span) bool) {
		if from >= to {
			return
		}
		i := a.Search(from)
		j := b.Search(from)
		cur := from
		for cur < to {
			next := to
			if c, ok := nextStart(a, i); ok && c < next {
				next = c
			}
			if c, ok := nextStart(b, j); ok && c < next {
				next = c
			}
			span := Span{
				From:       cur,
				To:         next,
				Weight:     weightOf(a, i),
				Total:      weightOf(b, j),
				TotalIndex: j,
			}
			if !yield(span) {
				return
			}
			cur = next
			for {
				c, ok := nextStart(a, i)
				if !ok || c > cur {
					break
				}
				i++
			}
			for {
				c, ok := nextStart(b, j)
				if !ok || c > cur {
					break
				}
				j++
			}
		}
	}
}

// Spans yields the constant-weight ranges of a single history over [from, to).
// The weight is reported in Total together with its snapshot index.
func (h *History) Spans(from, to uint64) iter.Seq[Span] {
	return Merge(nil, h, from, to)
}

func nextStart(h *History, idx int) (uint64, bool) {
	if idx+1 >= h.Len() {
		return 0, false
	}
	return h.entries[idx+1].StartCycle, true
}

func weightOf(h *History, idx int) uint64 {
	if idx < 0 || idx >= h.Len() {
		return 0
	}
	return h.entries[idx].Weight
}
