// Package enrich holds the prompt builder's enrichment collaborators:
// web-search preload triggering, link extraction and link understanding.
// The web-search backend itself is a boundary collaborator injected as a
// Searcher.
package enrich

import (
	"context"
	"regexp"
)

// Searcher is the injected web-search boundary. Implementations wrap an
// external search backend; failures are contained by the caller.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// SearcherFunc adapts a function to the Searcher interface.
type SearcherFunc func(ctx context.Context, query string) (string, error)

func (f SearcherFunc) Search(ctx context.Context, query string) (string, error) {
	return f(ctx, query)
}

// recencyLexicon matches questions that want live answers: news, prices,
// weather, scores, anything time-anchored. Only these trigger the
// web-search preload; everything else would waste the latency budget.
var recencyLexicon = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow|yesterday|right now|currently|latest|breaking|news|headline|price|stock|crypto|bitcoin|weather|forecast|temperature|score|game last|this week|this morning|just (happened|announced)|recent)\b`)

// NeedsWebSearch reports whether the utterance matches the recency lexicon.
func NeedsWebSearch(text string) bool {
	return recencyLexicon.MatchString(text)
}
