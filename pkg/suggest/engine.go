package suggest

import (
	"context"
	"errors"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/charmbracelet/log"

	"github.com/bastiangx/suggestserve/internal/utils"
	"github.com/bastiangx/suggestserve/pkg/index"
	"github.com/bastiangx/suggestserve/pkg/item"
	"github.com/bastiangx/suggestserve/pkg/normalize"
	"github.com/bastiangx/suggestserve/pkg/store"
)

// Config holds the engine limits. It is fixed for the lifetime of an Engine.
type Config struct {
	MinQueryLength int
	MaxQueryLength int
	DefaultLimit   int
	MaxLimit       int
	LookupTimeout  time.Duration
	CacheSize      int
	Languages      item.Languages
}

// DefaultConfig returns the built-in engine limits.
func DefaultConfig() Config {
	return Config{
		MinQueryLength: 2,
		MaxQueryLength: 64,
		DefaultLimit:   8,
		MaxLimit:       32,
		LookupTimeout:  250 * time.Millisecond,
		CacheSize:      4096,
		Languages:      item.Languages{"en", "es", "de", "fr"},
	}
}

// Query is one suggestion request. An empty Language means no filter; a
// Limit of zero or less means the default limit.
type Query struct {
	Text     string
	Language string
	Limit    int
}

// Suggestion is one ranked completion.
type Suggestion struct {
	ID   uint32 `json:"id" msgpack:"i"`
	Text string `json:"text" msgpack:"w"`
}

// Result is a complete, ordered answer to a Query.
type Result struct {
	Query       string
	Suggestions []Suggestion
	Took        time.Duration
	Generation  uint64
	Cached      bool
}

// Engine answers suggestion queries against the current index snapshot.
// It keeps no per-call state and is safe for concurrent use.
type Engine struct {
	cfg   Config
	index *index.Index
	cache *HotCache
}

// NewEngine creates an engine reading from ix.
func NewEngine(ix *index.Index, cfg Config) *Engine {
	e := &Engine{
		cfg:   cfg,
		index: ix,
		cache: NewHotCache(cfg.CacheSize),
	}
	ix.OnSwap(func(s *index.Snapshot) {
		e.cache.Purge(s.Generation())
	})
	return e
}

// WatchStore drops cached results derived from items mutated in s.
func (e *Engine) WatchStore(s store.Store) {
	s.OnChange(e.cache.Invalidate)
}

// Config returns the engine limits.
func (e *Engine) Config() Config {
	return e.cfg
}

// EffectiveLimit clamps a requested limit into [1, MaxLimit]; non-positive
// requests get the default.
func (e *Engine) EffectiveLimit(requested int) int {
	limit := requested
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	if e.cfg.MaxLimit > 0 && limit > e.cfg.MaxLimit {
		limit = e.cfg.MaxLimit
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// Suggest returns up to the effective limit of items matching q, best first.
func (e *Engine) Suggest(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()

	if reason := utils.CheckQuery(q.Text, 0); reason != "" {
		return nil, invalidQuery("%s", reason)
	}

	normalized := e.index.Normalizer().Normalize(q.Text)
	n := normalize.Len(normalized)
	if n < e.cfg.MinQueryLength {
		return nil, invalidQuery("query must be at least %d characters", e.cfg.MinQueryLength)
	}
	if e.cfg.MaxQueryLength > 0 && n > e.cfg.MaxQueryLength {
		return nil, invalidQuery("query must be at most %d characters", e.cfg.MaxQueryLength)
	}
	if q.Language != "" && len(e.cfg.Languages) > 0 && !e.cfg.Languages.Contains(q.Language) {
		return nil, invalidFilter("unknown language %q", q.Language)
	}

	limit := e.EffectiveLimit(q.Limit)
	snap := e.index.Current()
	key := cacheKey{generation: snap.Generation(), query: normalized, language: q.Language, limit: limit}

	if cached, ok := e.cache.Get(key); ok {
		return &Result{
			Query:       normalized,
			Suggestions: cached,
			Took:        time.Since(start),
			Generation:  snap.Generation(),
			Cached:      true,
		}, nil
	}

	if e.cfg.LookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.LookupTimeout)
		defer cancel()
	}

	suggestions, err := e.rank(ctx, snap, normalized, q.Language, limit)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, internal("lookup timed out", err)
		}
		return nil, internal("lookup aborted", err)
	}

	e.cache.Put(key, suggestions)

	took := time.Since(start)
	log.Debug("Suggest",
		"query", normalized,
		"lang", q.Language,
		"limit", limit,
		"results", len(suggestions),
		"generation", snap.Generation(),
		"took", took)

	return &Result{
		Query:       normalized,
		Suggestions: suggestions,
		Took:        took,
		Generation:  snap.Generation(),
	}, nil
}

// rank intersects the prefix candidates with the language filter before
// selecting the top entries, so the limit applies to the filtered set.
func (e *Engine) rank(ctx context.Context, snap *index.Snapshot, prefix, lang string, limit int) ([]Suggestion, error) {
	candidates, err := snap.Lookup(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if lang != "" {
		langSet := snap.Language(lang)
		if langSet == nil {
			return []Suggestion{}, nil
		}
		candidates = roaring.And(candidates, langSet)
	}

	top := newTopK(limit)
	var iterErr error
	visited := 0
	candidates.Iterate(func(id uint32) bool {
		visited++
		if visited%1024 == 0 {
			if iterErr = ctx.Err(); iterErr != nil {
				return false
			}
		}
		if entry, ok := snap.Entry(id); ok {
			top.Offer(entry)
		}
		return true
	})
	if iterErr != nil {
		return nil, iterErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ranked := top.Sorted()
	out := make([]Suggestion, len(ranked))
	for i, entry := range ranked {
		out[i] = Suggestion{ID: entry.ID, Text: entry.Text}
	}
	return out, nil
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	Items      int        `json:"items"`
	Keys       int        `json:"keys"`
	Generation uint64     `json:"generation"`
	BuiltAt    time.Time  `json:"builtAt"`
	Cache      CacheStats `json:"cache"`
}

func (e *Engine) Stats() Stats {
	snap := e.index.Current()
	return Stats{
		Items:      snap.Len(),
		Keys:       snap.Keys(),
		Generation: snap.Generation(),
		BuiltAt:    snap.BuiltAt(),
		Cache:      e.cache.Stats(),
	}
}
