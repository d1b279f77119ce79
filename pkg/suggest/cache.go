package suggest

import (
	"math"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
)

type cacheKey struct {
	generation uint64
	query      string
	language   string
	limit      int
}

// HotCache keeps recent results keyed by snapshot generation, so a swap
// never serves results computed against an older index.
type HotCache struct {
	entries     map[cacheKey][]Suggestion
	accessTime  map[cacheKey]int64
	accessCount int64
	generation  uint64
	maxEntries  int
	hits        int64
	misses      int64
	mu          sync.Mutex
}

// NewHotCache creates a cache holding at most maxEntries results.
// A non-positive size disables caching.
func NewHotCache(maxEntries int) *HotCache {
	if maxEntries <= 0 {
		return nil
	}
	return &HotCache{
		entries:    make(map[cacheKey][]Suggestion, maxEntries),
		accessTime: make(map[cacheKey]int64, maxEntries),
		maxEntries: maxEntries,
	}
}

// Get returns a copy of the cached suggestions for key.
func (hc *HotCache) Get(key cacheKey) ([]Suggestion, bool) {
	if hc == nil {
		return nil, false
	}
	hc.mu.Lock()
	defer hc.mu.Unlock()

	s, ok := hc.entries[key]
	if !ok {
		hc.misses++
		return nil, false
	}
	hc.hits++
	hc.markAccessed(key)
	return slices.Clone(s), true
}

// Put stores suggestions computed against key.generation. Results for a
// generation older than the newest seen are dropped.
func (hc *HotCache) Put(key cacheKey, s []Suggestion) {
	if hc == nil {
		return
	}
	hc.mu.Lock()
	defer hc.mu.Unlock()

	if key.generation < hc.generation {
		return
	}
	if key.generation > hc.generation {
		hc.reset(key.generation)
	}
	if _, exists := hc.entries[key]; !exists && len(hc.entries) >= hc.maxEntries {
		hc.evictLRU()
	}
	hc.entries[key] = slices.Clone(s)
	hc.markAccessed(key)
}

// Purge drops everything older than generation.
func (hc *HotCache) Purge(generation uint64) {
	if hc == nil {
		return
	}
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if generation > hc.generation {
		hc.reset(generation)
	}
}

// Invalidate drops every cached result that contains id.
func (hc *HotCache) Invalidate(id uint32) {
	if hc == nil {
		return
	}
	hc.mu.Lock()
	defer hc.mu.Unlock()

	dropped := 0
	for key, s := range hc.entries {
		if slices.ContainsFunc(s, func(sg Suggestion) bool { return sg.ID == id }) {
			delete(hc.entries, key)
			delete(hc.accessTime, key)
			dropped++
		}
	}
	if dropped > 0 {
		log.Debugf("Invalidated %d cached results for item %d", dropped, id)
	}
}

// CacheStats is a point-in-time view of cache counters.
type CacheStats struct {
	Entries    int   `json:"entries"`
	MaxEntries int   `json:"maxEntries"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
}

func (hc *HotCache) Stats() CacheStats {
	if hc == nil {
		return CacheStats{}
	}
	hc.mu.Lock()
	defer hc.mu.Unlock()
	return CacheStats{
		Entries:    len(hc.entries),
		MaxEntries: hc.maxEntries,
		Hits:       hc.hits,
		Misses:     hc.misses,
	}
}

func (hc *HotCache) reset(generation uint64) {
	hc.generation = generation
	clear(hc.entries)
	clear(hc.accessTime)
}

func (hc *HotCache) markAccessed(key cacheKey) {
	hc.accessCount++
	hc.accessTime[key] = hc.accessCount
}

func (hc *HotCache) evictLRU() {
	var oldestKey cacheKey
	var oldestTime int64 = math.MaxInt64
	found := false

	for key, t := range hc.accessTime {
		if t < oldestTime {
			oldestTime = t
			oldestKey = key
			found = true
		}
	}

	if found {
		delete(hc.entries, oldestKey)
		delete(hc.accessTime, oldestKey)
	}
}
