// Package suggest is the core, turning a partial query into a ranked, bounded,
// language-filtered list of completions read from the prefix index.
//
// Ranking is a total order (popularity descending, normalized length
// ascending, id ascending), so identical store contents and identical queries
// always produce identical output. Each call reads exactly one index snapshot.
package suggest

import "context"

// ISuggester is implemented by Engine and consumed by the transports.
type ISuggester interface {
	// Suggest returns ranked suggestions for a query.
	Suggest(ctx context.Context, q Query) (*Result, error)

	// EffectiveLimit reports the limit a request will actually be served with.
	EffectiveLimit(requested int) int

	// Stats returns statistics about the served snapshot.
	Stats() Stats
}

var _ ISuggester = (*Engine)(nil)
