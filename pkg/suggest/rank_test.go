package suggest

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bastiangx/suggestserve/pkg/index"
)

func TestRanksBefore(t *testing.T) {
	tests := []struct {
		name string
		a, b index.Entry
		want bool
	}{
		{"higher popularity first", index.Entry{ID: 2, Popularity: 9, Length: 9}, index.Entry{ID: 1, Popularity: 5, Length: 3}, true},
		{"shorter first on tie", index.Entry{ID: 2, Popularity: 1, Length: 3}, index.Entry{ID: 1, Popularity: 1, Length: 5}, true},
		{"lower id last resort", index.Entry{ID: 1, Popularity: 1, Length: 3}, index.Entry{ID: 2, Popularity: 1, Length: 3}, true},
		{"irreflexive", index.Entry{ID: 1}, index.Entry{ID: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ranksBefore(&tt.a, &tt.b))
		})
	}
}

func TestTopK_KeepsBest(t *testing.T) {
	var entries []*index.Entry
	for i := range 100 {
		entries = append(entries, &index.Entry{ID: uint32(i + 1), Popularity: float64(i % 10), Length: i % 7})
	}
	r := rand.New(rand.NewSource(7))
	r.Shuffle(len(entries), func(i, j int) { entries[i], entries[j] = entries[j], entries[i] })

	top := newTopK(5)
	for _, e := range entries {
		top.Offer(e)
	}
	got := top.Sorted()

	all := newTopK(len(entries))
	for _, e := range entries {
		all.Offer(e)
	}
	want := all.Sorted()[:5]

	assert.Equal(t, want, got)
	for i := 1; i < len(got); i++ {
		assert.True(t, ranksBefore(got[i-1], got[i]))
	}
}

func TestTopK_ZeroCapacity(t *testing.T) {
	top := newTopK(0)
	top.Offer(&index.Entry{ID: 1})
	assert.Empty(t, top.Sorted())
}
