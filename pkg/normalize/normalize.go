// Package normalize implements the text normalization applied identically when
// the prefix index is built and when a query is looked up.
//
// The pipeline is: Unicode NFC composition, optional diacritic removal,
// Unicode case folding, whitespace trimming and optional collapsing of inner
// whitespace runs to a single space. The rules are fixed when a Normalizer is
// created; an index built with one set of rules must be queried with the same.
package normalize

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Rules selects the optional normalization steps.
type Rules struct {
	FoldDiacritics bool `toml:"fold_diacritics"`
	CollapseSpace  bool `toml:"collapse_space"`
}

// DefaultRules case-folds, trims and collapses whitespace but keeps diacritics.
func DefaultRules() Rules {
	return Rules{CollapseSpace: true}
}

// Normalizer applies a fixed Rules value. It is safe for concurrent use.
type Normalizer struct {
	rules   Rules
	folders sync.Pool
	strip   sync.Pool
}

// New creates a Normalizer for rules.
func New(rules Rules) *Normalizer {
	return &Normalizer{
		rules: rules,
		folders: sync.Pool{New: func() any {
			c := cases.Fold()
			return &c
		}},
		strip: sync.Pool{New: func() any {
			t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
			return &t
		}},
	}
}

// Rules returns the rules this normalizer was built with.
func (n *Normalizer) Rules() Rules {
	return n.rules
}

// Normalize returns the canonical form of s.
func (n *Normalizer) Normalize(s string) string {
	s = norm.NFC.String(s)

	if n.rules.FoldDiacritics {
		t := n.strip.Get().(*transform.Transformer)
		if out, _, err := transform.String(*t, s); err == nil {
			s = out
		}
		n.strip.Put(t)
	}

	c := n.folders.Get().(*cases.Caser)
	s = c.String(s)
	n.folders.Put(c)

	if n.rules.CollapseSpace {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.TrimSpace(s)
}

// Len returns the length of an already normalized string in runes.
func Len(normalized string) int {
	return utf8.RuneCountInString(normalized)
}

// IsSeparator reports whether r splits words.
func IsSeparator(r rune) bool {
	return unicode.IsSpace(r) || r == '_' || r == '-' || r == '.' || r == '/'
}

// Keys returns the index keys of a normalized text: the text itself and the
// remainder starting at every following word. "red running shoes" yields
// "red running shoes", "running shoes" and "shoes".
func Keys(normalized string) []string {
	if normalized == "" {
		return nil
	}
	keys := []string{normalized}
	prevSep := false
	for i, r := range normalized {
		sep := IsSeparator(r)
		if prevSep && !sep && i > 0 {
			keys = append(keys, normalized[i:])
		}
		prevSep = sep
	}
	return keys
}
