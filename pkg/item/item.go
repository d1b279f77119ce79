// Package item defines the suggestion candidate record shared by the store, the index and the engine.
package item

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxTextLength is the longest item text accepted at ingestion, in runes.
const MaxTextLength = 256

// ErrInvalidItem is returned when an item fails ingestion checks.
var ErrInvalidItem = errors.New("invalid item")

// Item is a suggestion candidate. ID 0 means the store has not assigned one yet.
type Item struct {
	ID         uint32  `json:"id" msgpack:"id"`
	Text       string  `json:"text" msgpack:"text"`
	Language   string  `json:"language" msgpack:"lang"`
	Popularity float64 `json:"popularity" msgpack:"pop"`
}

// Languages is the fixed set of language tags an engine accepts.
type Languages []string

// Contains reports whether tag is one of the configured languages.
func (l Languages) Contains(tag string) bool {
	return slices.Contains(l, tag)
}

// Validate checks an item before it is stored.
// An empty language set accepts any non-empty tag.
func Validate(it Item, langs Languages) error {
	n := utf8.RuneCountInString(it.Text)
	if strings.TrimSpace(it.Text) == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidItem)
	}
	if n > MaxTextLength {
		return fmt.Errorf("%w: text longer than %d runes", ErrInvalidItem, MaxTextLength)
	}
	for _, r := range it.Text {
		if !unicode.IsPrint(r) {
			return fmt.Errorf("%w: text contains non-printable rune %U", ErrInvalidItem, r)
		}
	}
	if it.Language == "" {
		return fmt.Errorf("%w: missing language", ErrInvalidItem)
	}
	if len(langs) > 0 && !langs.Contains(it.Language) {
		return fmt.Errorf("%w: unknown language %q", ErrInvalidItem, it.Language)
	}
	if !ValidPopularity(it.Popularity) {
		return fmt.Errorf("%w: popularity must be a finite non-negative number", ErrInvalidItem)
	}
	return nil
}

// ValidPopularity reports whether p can be used as a ranking weight.
func ValidPopularity(p float64) bool {
	return p >= 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

// Seq adapts a slice to the sequence shape produced by stores.
func Seq(items []Item) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		for _, it := range items {
			if !yield(it, nil) {
				return
			}
		}
	}
}
