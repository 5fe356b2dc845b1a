package prompt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/enrich"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/logging"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/types"
)

// enrichmentResult carries whatever the three lookups contributed. Empty
// fields mean "no contribution" - a failed or timed-out lookup degrades to
// nothing rather than failing the turn.
type enrichmentResult struct {
	webSearch string
	linkText  string
	memory    string
}

// runEnrichment launches the three enrichment lookups in parallel, each
// independently timeout-bounded, and waits for all of them to settle.
// Failures and timeouts are logged and swallowed; the group never aborts.
func (b *Builder) runEnrichment(ctx context.Context, turn types.Turn) enrichmentResult {
	var res enrichmentResult
	g, gctx := errgroup.WithContext(ctx)

	// Web-search preload, only when the text matches the recency lexicon.
	if b.searcher != nil && enrich.NeedsWebSearch(turn.Text) {
		g.Go(func() error {
			tctx, cancel := context.WithTimeout(gctx, b.enrichCfg.WebSearchTimeout)
			defer cancel()
			out, err := b.searcher.Search(tctx, turn.Text)
			if err != nil {
				logging.PromptDebug("web-search preload skipped: %v", err)
				return nil
			}
			res.webSearch = strings.TrimSpace(out)
			return nil
		})
	}

	// Link/URL-fetch understanding, up to the configured link cap.
	if b.fetcher != nil {
		if links := enrich.ExtractLinks(turn.Text, b.enrichCfg.MaxLinks); len(links) > 0 {
			g.Go(func() error {
				tctx, cancel := context.WithTimeout(gctx, b.enrichCfg.LinkFetchTimeout)
				defer cancel()
				var parts []string
				for _, u := range links {
					preview, err := b.fetcher.Preview(tctx, u)
					if err != nil {
						logging.PromptDebug("link preview skipped for %s: %v", u, err)
						continue
					}
					parts = append(parts, fmt.Sprintf("%s: %s", u, preview))
				}
				res.linkText = strings.Join(parts, "\n")
				return nil
			})
		}
	}

	// Indexed memory recall, top matches only.
	if b.notes != nil {
		g.Go(func() error {
			tctx, cancel := context.WithTimeout(gctx, b.enrichCfg.MemoryRecallTimeout)
			defer cancel()
			done := make(chan []string, 1)
			go func() {
				hits := b.notes.Recall(turn.Text, b.enrichCfg.RecallTopK)
				lines := make([]string, 0, len(hits))
				for _, h := range hits {
					lines = append(lines, "- "+h.Note.Text)
				}
				done <- lines
			}()
			select {
			case <-tctx.Done():
				logging.PromptDebug("memory recall timed out after %v", b.enrichCfg.MemoryRecallTimeout)
			case lines := <-done:
				res.memory = strings.Join(lines, "\n")
			}
			return nil
		})
	}

	start := time.Now()
	_ = g.Wait() // tasks never return errors; they degrade to no contribution
	logging.PromptDebug("enrichment settled in %v", time.Since(start))
	return res
}
