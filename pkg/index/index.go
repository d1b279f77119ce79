package index

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bastiangx/suggestserve/pkg/item"
	"github.com/bastiangx/suggestserve/pkg/normalize"
)

// Index holds the current snapshot. Rebuilds and reweights are serialized by
// mu; readers only load the atomic pointer.
type Index struct {
	normalizer *normalize.Normalizer
	current    atomic.Pointer[Snapshot]

	mu         sync.Mutex
	generation uint64
	listeners  []func(*Snapshot)
}

// New creates an index holding an empty snapshot at generation 0.
func New(n *normalize.Normalizer) *Index {
	ix := &Index{normalizer: n}
	ix.current.Store(emptySnapshot(n.Rules()))
	return ix
}

// Normalizer returns the normalizer shared by build and query paths.
func (ix *Index) Normalizer() *normalize.Normalizer {
	return ix.normalizer
}

// Current returns the snapshot to use for one whole query.
func (ix *Index) Current() *Snapshot {
	return ix.current.Load()
}

// OnSwap registers fn to run after every snapshot swap.
func (ix *Index) OnSwap(fn func(*Snapshot)) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.listeners = append(ix.listeners, fn)
}

// Rebuild builds a new snapshot from items and swaps it in. On error the
// current snapshot stays in place.
func (ix *Index) Rebuild(ctx context.Context, items iter.Seq2[item.Item, error]) (*Snapshot, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	start := time.Now()
	snap, err := Build(ctx, items, ix.normalizer, ix.generation+1)
	if err != nil {
		return nil, err
	}
	ix.generation++
	ix.swap(snap)

	log.Debug("Index rebuilt",
		"generation", snap.Generation(),
		"items", snap.Len(),
		"keys", snap.Keys(),
		"took", time.Since(start))
	return snap, nil
}

// Reweight swaps in a snapshot where id has the given popularity.
// It reports false when id is not indexed.
func (ix *Index) Reweight(id uint32, popularity float64) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	next, ok := ix.Current().Reweight(id, popularity, ix.generation+1)
	if !ok {
		return false
	}
	ix.generation++
	ix.swap(next)
	return true
}

func (ix *Index) swap(snap *Snapshot) {
	ix.current.Store(snap)
	for _, fn := range ix.listeners {
		fn(snap)
	}
}
