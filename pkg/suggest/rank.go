package suggest

import (
	"container/heap"
	"slices"

	"github.com/bastiangx/suggestserve/pkg/index"
)

// ranksBefore is the total order used for suggestions: popularity descending,
// normalized length ascending, id ascending. Ids are unique, so no two
// distinct entries compare equal.
func ranksBefore(a, b *index.Entry) bool {
	if a.Popularity != b.Popularity {
		return a.Popularity > b.Popularity
	}
	if a.Length != b.Length {
		return a.Length < b.Length
	}
	return a.ID < b.ID
}

// topK keeps the k best entries seen so far. The root is the worst kept entry.
type topK struct {
	k       int
	entries []*index.Entry
}

func newTopK(k int) *topK {
	return &topK{k: k, entries: make([]*index.Entry, 0, k)}
}

func (t *topK) Len() int           { return len(t.entries) }
func (t *topK) Less(i, j int) bool { return ranksBefore(t.entries[j], t.entries[i]) }
func (t *topK) Swap(i, j int)      { t.entries[i], t.entries[j] = t.entries[j], t.entries[i] }
func (t *topK) Push(x any)         { t.entries = append(t.entries, x.(*index.Entry)) }
func (t *topK) Pop() any {
	last := t.entries[len(t.entries)-1]
	t.entries[len(t.entries)-1] = nil
	t.entries = t.entries[:len(t.entries)-1]
	return last
}

// Offer considers e for the result set.
func (t *topK) Offer(e *index.Entry) {
	if t.k <= 0 {
		return
	}
	if len(t.entries) < t.k {
		heap.Push(t, e)
		return
	}
	if ranksBefore(e, t.entries[0]) {
		t.entries[0] = e
		heap.Fix(t, 0)
	}
}

// Sorted returns the kept entries best first.
func (t *topK) Sorted() []*index.Entry {
	out := slices.Clone(t.entries)
	slices.SortFunc(out, func(a, b *index.Entry) int {
		if ranksBefore(a, b) {
			return -1
		}
		if ranksBefore(b, a) {
			return 1
		}
		return 0
	})
	return out
}
