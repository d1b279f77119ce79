package suggest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(gen uint64, q string) cacheKey {
	return cacheKey{generation: gen, query: q, limit: 8}
}

func TestHotCache_Disabled(t *testing.T) {
	hc := NewHotCache(0)
	assert.Nil(t, hc)

	hc.Put(key(1, "a"), []Suggestion{{ID: 1}})
	_, ok := hc.Get(key(1, "a"))
	assert.False(t, ok)
	hc.Purge(2)
	hc.Invalidate(1)
	assert.Equal(t, CacheStats{}, hc.Stats())
}

func TestHotCache_GetReturnsCopy(t *testing.T) {
	hc := NewHotCache(4)
	hc.Put(key(1, "ap"), []Suggestion{{ID: 1, Text: "apple"}})

	got, ok := hc.Get(key(1, "ap"))
	require.True(t, ok)
	got[0].Text = "changed"

	again, _ := hc.Get(key(1, "ap"))
	assert.Equal(t, "apple", again[0].Text)
}

func TestHotCache_EvictsLeastRecentlyUsed(t *testing.T) {
	hc := NewHotCache(2)
	hc.Put(key(1, "a"), nil)
	hc.Put(key(1, "b"), nil)

	_, ok := hc.Get(key(1, "a"))
	require.True(t, ok)

	hc.Put(key(1, "c"), nil)

	_, okA := hc.Get(key(1, "a"))
	_, okB := hc.Get(key(1, "b"))
	_, okC := hc.Get(key(1, "c"))
	assert.True(t, okA)
	assert.False(t, okB)
	assert.True(t, okC)
}

func TestHotCache_Generations(t *testing.T) {
	hc := NewHotCache(8)
	hc.Put(key(2, "a"), []Suggestion{{ID: 1}})

	// stale results are never stored
	hc.Put(key(1, "b"), []Suggestion{{ID: 2}})
	_, ok := hc.Get(key(1, "b"))
	assert.False(t, ok)

	// a newer generation drops everything older
	hc.Put(key(3, "c"), []Suggestion{{ID: 3}})
	_, ok = hc.Get(key(2, "a"))
	assert.False(t, ok)

	hc.Purge(4)
	assert.Zero(t, hc.Stats().Entries)
}

func TestHotCache_Invalidate(t *testing.T) {
	hc := NewHotCache(8)
	hc.Put(key(1, "a"), []Suggestion{{ID: 1}, {ID: 2}})
	hc.Put(key(1, "b"), []Suggestion{{ID: 3}})

	hc.Invalidate(2)

	_, okA := hc.Get(key(1, "a"))
	_, okB := hc.Get(key(1, "b"))
	assert.False(t, okA)
	assert.True(t, okB)
}
