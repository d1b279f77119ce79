// Package catalog coordinates the item store and the prefix index.
//
// Every mutation goes to the store first. Ingestion batches and removals are
// followed by a full index rebuild; popularity updates swap in a reweighted
// snapshot without re-tokenizing.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bastiangx/suggestserve/pkg/index"
	"github.com/bastiangx/suggestserve/pkg/item"
	"github.com/bastiangx/suggestserve/pkg/store"
)

// Catalog owns the store/index pair.
type Catalog struct {
	store        store.Store
	index        *index.Index
	languages    item.Languages
	storeTimeout time.Duration

	// store version the current snapshot was built from
	indexedVersion atomic.Uint64
}

// New creates a catalog. storeTimeout bounds how long a rebuild may spend
// reading the store; zero means no bound.
func New(s store.Store, ix *index.Index, langs item.Languages, storeTimeout time.Duration) *Catalog {
	return &Catalog{
		store:        s,
		index:        ix,
		languages:    langs,
		storeTimeout: storeTimeout,
	}
}

func (c *Catalog) Store() store.Store {
	return c.store
}

func (c *Catalog) Index() *index.Index {
	return c.index
}

// Upsert validates every item, then writes them in order. The whole batch is
// rejected when any item is invalid. With refresh set the index is rebuilt
// once after the batch.
func (c *Catalog) Upsert(ctx context.Context, items []item.Item, refresh bool) ([]item.Item, error) {
	for i, it := range items {
		if err := item.Validate(it, c.languages); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}

	stored := make([]item.Item, 0, len(items))
	for _, it := range items {
		saved, err := c.store.Put(ctx, it)
		if err != nil {
			return stored, fmt.Errorf("store item %q: %w", it.Text, err)
		}
		stored = append(stored, saved)
	}
	log.Debugf("Upserted %d items", len(stored))

	if refresh {
		if _, err := c.Refresh(ctx); err != nil {
			return stored, err
		}
	}
	return stored, nil
}

// Remove deletes id from the store and rebuilds the index.
func (c *Catalog) Remove(ctx context.Context, id uint32) error {
	if err := c.store.Remove(ctx, id); err != nil {
		return err
	}
	_, err := c.Refresh(ctx)
	return err
}

// SetPopularity updates the store and reweights the indexed entry in place.
// Items stored but not yet indexed pick the value up on the next rebuild.
func (c *Catalog) SetPopularity(ctx context.Context, id uint32, popularity float64) error {
	if !item.ValidPopularity(popularity) {
		return fmt.Errorf("%w: popularity must be finite and non-negative", item.ErrInvalidItem)
	}
	before := c.store.Version()
	if err := c.store.SetPopularity(ctx, id, popularity); err != nil {
		return err
	}
	if !c.index.Reweight(id, popularity) {
		log.Debugf("Item %d not indexed yet, popularity applies on next rebuild", id)
		return nil
	}
	c.indexedVersion.CompareAndSwap(before, c.store.Version())
	return nil
}

// Refresh rebuilds the index from the whole store. On failure, including a
// store read exceeding the store timeout, the current snapshot is kept.
func (c *Catalog) Refresh(ctx context.Context) (*index.Snapshot, error) {
	if c.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.storeTimeout)
		defer cancel()
	}

	version := c.store.Version()
	snap, err := c.index.Rebuild(ctx, c.store.All(ctx))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Errorf("Index rebuild timed out reading the store after %v", c.storeTimeout)
		}
		return nil, fmt.Errorf("rebuild index: %w", err)
	}
	c.indexedVersion.Store(version)

	log.Info("Index refreshed", "generation", snap.Generation(), "items", snap.Len())
	return snap, nil
}

// Status compares the store with the current snapshot.
type Status struct {
	StoreVersion   uint64 `json:"storeVersion"`
	IndexedVersion uint64 `json:"indexedVersion"`
	Stale          bool   `json:"stale"`
}

func (c *Catalog) Status() Status {
	sv := c.store.Version()
	iv := c.indexedVersion.Load()
	return Status{StoreVersion: sv, IndexedVersion: iv, Stale: sv != iv}
}
