// Package prompt assembles the token-bounded system prompt and message list
// for one turn. Optional sections are admitted through a remaining-token
// ledger; enrichment lookups run concurrently under independent timeouts and
// contribute sections only when they settle in time.
package prompt

import (
	"unicode/utf8"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/logging"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/types"
)

// charsPerToken is the estimation ratio, calibrated for current-generation
// tokenizers (~4 characters per token).
const charsPerToken = 4.0

// CountTokens estimates tokens in a string.
func CountTokens(s string) int {
	if s == "" {
		return 0
	}
	// Rune count for proper unicode handling.
	return int(float64(utf8.RuneCountInString(s)) / charsPerToken)
}

// CountMessages estimates tokens across a message list, with a small
// per-message envelope overhead.
func CountMessages(messages []types.Message) int {
	total := 0
	for _, m := range messages {
		total += 4 + CountTokens(m.Content)
	}
	return total
}

// Ledger is the remaining-token counter that gates optional prompt
// sections. Spending is monotonic: the ledger starts at the profile ceiling
// and only decreases. A section that does not fit is dropped, not truncated.
type Ledger struct {
	ceiling   int
	remaining int
}

// NewLedger creates a ledger with the given ceiling.
func NewLedger(ceiling int) *Ledger {
	return &Ledger{ceiling: ceiling, remaining: ceiling}
}

// Admit spends tokens if they fit, returning whether the section was
// admitted.
func (l *Ledger) Admit(tokens int) bool {
	if tokens > l.remaining {
		logging.PromptDebug("ledger rejected section: %d > %d remaining", tokens, l.remaining)
		return false
	}
	l.remaining -= tokens
	return true
}

// ForceSpend spends tokens unconditionally, clamping at zero. Reserved for
// the outer fallback on user-relevant sections and for strict-output
// constraints, which are never dropped.
func (l *Ledger) ForceSpend(tokens int) {
	l.remaining -= tokens
	if l.remaining < 0 {
		logging.PromptWarn("ledger overdrawn by %d tokens (forced section)", -l.remaining)
		l.remaining = 0
	}
}

// Remaining returns the tokens still available.
func (l *Ledger) Remaining() int {
	return l.remaining
}

// Spent returns the tokens consumed so far.
func (l *Ledger) Spent() int {
	return l.ceiling - l.remaining
}
