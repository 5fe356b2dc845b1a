package memory

import (
	"sort"
	"strings"
	"unicode"
)

// ScoredNote is a recall hit with its keyword-overlap score.
type ScoredNote struct {
	Note  Note
	Score float64
}

// Recall returns the top-k notes ranked by keyword overlap with the query.
// Rare terms weigh more than common ones; notes with no overlap are
// excluded entirely, so a miss contributes nothing to the prompt.
func (s *Store) Recall(query string, k int) []ScoredNote {
	queryTokens := contentTokens(query)
	if len(queryTokens) == 0 || k <= 0 {
		return nil
	}

	notes := s.All()

	// Document frequency over the note corpus for inverse weighting.
	df := make(map[string]int)
	tokenized := make([][]string, len(notes))
	for i, n := range notes {
		toks := contentTokens(n.Key + " " + n.Text)
		tokenized[i] = toks
		seen := make(map[string]bool, len(toks))
		for _, t := range toks {
			if !seen[t] {
				df[t]++
				seen[t] = true
			}
		}
	}

	total := float64(len(notes))
	scored := make([]ScoredNote, 0, len(notes))
	for i, n := range notes {
		noteSet := make(map[string]bool, len(tokenized[i]))
		for _, t := range tokenized[i] {
			noteSet[t] = true
		}
		score := 0.0
		for _, q := range queryTokens {
			if noteSet[q] {
				// 1/df weighting: a term unique to one note is worth the
				// whole corpus, a term in every note is worth ~1.
				score += total / float64(df[q])
			}
		}
		if score > 0 {
			scored = append(scored, ScoredNote{Note: n, Score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// contentTokens tokenizes and drops stopwords.
func contentTokens(text string) []string {
	out := make([]string, 0, 8)
	for _, t := range tokenize(text) {
		if !isStopword(t) {
			out = append(out, t)
		}
	}
	return out
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"my": true, "me": true, "i": true, "you": true, "your": true, "it": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "for": true,
	"and": true, "or": true, "that": true, "this": true, "with": true,
	"be": true, "have": true, "has": true, "do": true, "does": true,
	"what": true, "whats": true, "when": true, "where": true, "who": true,
	"how": true, "s": true, "t": true,
}

func isStopword(w string) bool {
	return stopwords[w] || len(w) <= 1
}
