// Package index builds the prefix index consulted by the suggest engine.
//
// A Snapshot is immutable once built: a patricia trie maps every index key
// (the normalized item text and the remainder at each following word) to a
// roaring bitmap of item ids, next to per-language bitmaps and an entry table
// carrying what ranking needs. Index holds the current Snapshot behind an
// atomic pointer, so lookups never take a lock and always see one complete
// build.
package index

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"

	"github.com/bastiangx/suggestserve/pkg/item"
	"github.com/bastiangx/suggestserve/pkg/normalize"
)

// ctxCheckEvery is how many trie nodes or items are visited between context checks.
const ctxCheckEvery = 256

// Entry is the ranking view of one indexed item.
type Entry struct {
	ID         uint32
	Text       string
	Normalized string
	Length     int
	Language   string
	Popularity float64
}

// Snapshot is one immutable build of the prefix index.
type Snapshot struct {
	trie       *patricia.Trie
	keys       int
	entries    map[uint32]*Entry
	langs      map[string]*roaring.Bitmap
	generation uint64
	builtAt    time.Time
	rules      normalize.Rules
}

func emptySnapshot(rules normalize.Rules) *Snapshot {
	return &Snapshot{
		trie:    patricia.NewTrie(),
		entries: make(map[uint32]*Entry),
		langs:   make(map[string]*roaring.Bitmap),
		builtAt: time.Now(),
		rules:   rules,
	}
}

// Build constructs a snapshot from items. The result depends only on the set
// of items, never on the order they arrive in.
func Build(ctx context.Context, items iter.Seq2[item.Item, error], n *normalize.Normalizer, generation uint64) (*Snapshot, error) {
	snap := emptySnapshot(n.Rules())
	snap.generation = generation
	postings := make(map[string]*roaring.Bitmap)

	count := 0
	for it, err := range items {
		if err != nil {
			return nil, fmt.Errorf("reading items: %w", err)
		}
		count++
		if count%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if _, dup := snap.entries[it.ID]; dup {
			return nil, fmt.Errorf("duplicate item id %d", it.ID)
		}

		normalized := n.Normalize(it.Text)
		keys := normalize.Keys(normalized)
		if len(keys) == 0 {
			log.Debugf("Skipping item %d: empty after normalization", it.ID)
			continue
		}

		snap.entries[it.ID] = &Entry{
			ID:         it.ID,
			Text:       it.Text,
			Normalized: normalized,
			Length:     normalize.Len(normalized),
			Language:   it.Language,
			Popularity: it.Popularity,
		}

		lang, ok := snap.langs[it.Language]
		if !ok {
			lang = roaring.New()
			snap.langs[it.Language] = lang
		}
		lang.Add(it.ID)

		for _, key := range keys {
			bm, ok := postings[key]
			if !ok {
				bm = roaring.New()
				postings[key] = bm
			}
			bm.Add(it.ID)
		}
	}

	for _, key := range slices.Sorted(maps.Keys(postings)) {
		bm := postings[key]
		bm.RunOptimize()
		snap.trie.Insert(patricia.Prefix(key), bm)
	}
	for _, bm := range snap.langs {
		bm.RunOptimize()
	}
	snap.keys = len(postings)
	snap.builtAt = time.Now()
	return snap, nil
}

// Lookup returns the ids of items whose text, or one of whose words, starts
// with the normalized prefix. No match yields an empty bitmap. The returned
// bitmap is owned by the caller.
func (s *Snapshot) Lookup(ctx context.Context, prefix string) (*roaring.Bitmap, error) {
	if prefix == "" {
		return roaring.New(), nil
	}

	var parts []*roaring.Bitmap
	visited := 0
	err := s.trie.VisitSubtree(patricia.Prefix(prefix), func(_ patricia.Prefix, it patricia.Item) error {
		visited++
		if visited%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		parts = append(parts, it.(*roaring.Bitmap))
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch len(parts) {
	case 0:
		return roaring.New(), nil
	case 1:
		return parts[0].Clone(), nil
	default:
		return roaring.FastOr(parts...), nil
	}
}

// Language returns the ids of items tagged lang. The bitmap is shared and
// must not be modified; nil means no item carries the tag.
func (s *Snapshot) Language(lang string) *roaring.Bitmap {
	return s.langs[lang]
}

// Entry returns the ranking data of an indexed item.
func (s *Snapshot) Entry(id uint32) (*Entry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

// Len is the number of indexed items.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Keys is the number of distinct index keys.
func (s *Snapshot) Keys() int {
	return s.keys
}

// Generation identifies the build; it increases with every swap.
func (s *Snapshot) Generation() uint64 {
	return s.generation
}

// BuiltAt is when the snapshot was created.
func (s *Snapshot) BuiltAt() time.Time {
	return s.builtAt
}

// Rules are the normalization rules the snapshot was built with.
func (s *Snapshot) Rules() normalize.Rules {
	return s.rules
}

// Reweight returns a copy with one item's popularity changed. Trie and
// bitmaps are shared with the receiver; only the entry table is copied.
func (s *Snapshot) Reweight(id uint32, popularity float64, generation uint64) (*Snapshot, bool) {
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}

	updated := *e
	updated.Popularity = popularity

	next := *s
	next.entries = maps.Clone(s.entries)
	next.entries[id] = &updated
	next.generation = generation
	next.builtAt = time.Now()
	return &next, true
}
