// Package store holds suggestion-eligible items.
//
// Two implementations exist: an in-memory Memory store and a durable SQLite
// store in the sqlite subpackage. Both hand out ids that are never reused and
// both produce restartable, snapshot-consistent sequences from All.
package store

import (
	"context"
	"errors"
	"iter"

	"github.com/bastiangx/suggestserve/pkg/item"
)

// ErrNotFound is returned when an id does not exist in the store.
var ErrNotFound = errors.New("item not found")

// Listener is notified with the id of every mutated item.
type Listener func(id uint32)

// Store is the contract shared by all item stores.
type Store interface {
	// Put inserts or replaces an item by id and returns it with its id set.
	// A zero id replaces an existing item with identical text and language,
	// otherwise a fresh id is assigned.
	Put(ctx context.Context, it item.Item) (item.Item, error)
	Get(ctx context.Context, id uint32) (item.Item, error)
	Remove(ctx context.Context, id uint32) error
	SetPopularity(ctx context.Context, id uint32, popularity float64) error

	// All yields the current items in id order. Ranging over it again
	// starts a new pass; concurrent mutations never corrupt a pass.
	All(ctx context.Context) iter.Seq2[item.Item, error]

	Len(ctx context.Context) (int, error)

	// Version increases on every mutation.
	Version() uint64

	// OnChange registers a listener for item mutations.
	OnChange(fn Listener)

	Close() error
}

// Collect drains a store sequence into a slice.
func Collect(ctx context.Context, s Store) ([]item.Item, error) {
	var items []item.Item
	for it, err := range s.All(ctx) {
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}
