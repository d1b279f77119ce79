package store

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/bastiangx/suggestserve/pkg/item"
)

type naturalKey struct {
	text string
	lang string
}

// Memory is a map-backed Store. All copies the item table under a read lock,
// so a pass never observes a mutation that happens while it is ranged over.
type Memory struct {
	mu        sync.RWMutex
	items     map[uint32]item.Item
	byKey     map[naturalKey][]uint32
	nextID    uint32
	version   atomic.Uint64
	listeners []Listener
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		items:  make(map[uint32]item.Item),
		byKey:  make(map[naturalKey][]uint32),
		nextID: 1,
	}
}

func (m *Memory) Put(ctx context.Context, it item.Item) (item.Item, error) {
	if err := ctx.Err(); err != nil {
		return item.Item{}, err
	}

	m.mu.Lock()
	key := naturalKey{text: it.Text, lang: it.Language}
	if it.ID == 0 {
		if ids := m.byKey[key]; len(ids) > 0 {
			it.ID = ids[0]
		} else {
			if m.nextID == 0 {
				m.mu.Unlock()
				return item.Item{}, fmt.Errorf("id space exhausted")
			}
			it.ID = m.nextID
			m.nextID++
		}
	} else if it.ID >= m.nextID {
		m.nextID = it.ID + 1
	}

	if prev, ok := m.items[it.ID]; ok {
		m.unlinkKey(naturalKey{text: prev.Text, lang: prev.Language}, it.ID)
	}
	m.items[it.ID] = it
	m.linkKey(key, it.ID)
	listeners := m.listeners
	m.mu.Unlock()

	m.changed(listeners, it.ID)
	return it, nil
}

func (m *Memory) Get(ctx context.Context, id uint32) (item.Item, error) {
	if err := ctx.Err(); err != nil {
		return item.Item{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return item.Item{}, fmt.Errorf("get %d: %w", id, ErrNotFound)
	}
	return it, nil
}

func (m *Memory) Remove(ctx context.Context, id uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	prev, ok := m.items[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("remove %d: %w", id, ErrNotFound)
	}
	delete(m.items, id)
	m.unlinkKey(naturalKey{text: prev.Text, lang: prev.Language}, id)
	listeners := m.listeners
	m.mu.Unlock()

	m.changed(listeners, id)
	return nil
}

func (m *Memory) SetPopularity(ctx context.Context, id uint32, popularity float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !item.ValidPopularity(popularity) {
		return fmt.Errorf("%w: popularity must be a finite non-negative number", item.ErrInvalidItem)
	}
	m.mu.Lock()
	it, ok := m.items[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("set popularity %d: %w", id, ErrNotFound)
	}
	it.Popularity = popularity
	m.items[id] = it
	listeners := m.listeners
	m.mu.Unlock()

	m.changed(listeners, id)
	return nil
}

func (m *Memory) All(ctx context.Context) iter.Seq2[item.Item, error] {
	return func(yield func(item.Item, error) bool) {
		m.mu.RLock()
		snapshot := slices.Collect(maps.Values(m.items))
		m.mu.RUnlock()

		slices.SortFunc(snapshot, func(a, b item.Item) int {
			return cmp.Compare(a.ID, b.ID)
		})

		for _, it := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(item.Item{}, err)
				return
			}
			if !yield(it, nil) {
				return
			}
		}
	}
}

func (m *Memory) Len(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items), nil
}

func (m *Memory) Version() uint64 {
	return m.version.Load()
}

func (m *Memory) OnChange(fn Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Memory) Close() error {
	return nil
}

// linkKey and unlinkKey keep the ids sharing a natural key sorted, so an
// id-less Put resolves to the lowest one like the SQLite store does.
func (m *Memory) linkKey(key naturalKey, id uint32) {
	ids := m.byKey[key]
	if i, found := slices.BinarySearch(ids, id); !found {
		m.byKey[key] = slices.Insert(ids, i, id)
	}
}

func (m *Memory) unlinkKey(key naturalKey, id uint32) {
	ids := m.byKey[key]
	i, found := slices.BinarySearch(ids, id)
	if !found {
		return
	}
	if ids = slices.Delete(ids, i, i+1); len(ids) == 0 {
		delete(m.byKey, key)
	} else {
		m.byKey[key] = ids
	}
}

func (m *Memory) changed(listeners []Listener, id uint32) {
	m.version.Add(1)
	for _, fn := range listeners {
		fn(id)
	}
}
