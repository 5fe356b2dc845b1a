package handlers

import (
	"context"
	"regexp"
	"strings"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/logging"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/memory"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/router"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/types"
)

// MemoryUpdate short-circuits explicit "remember ..." turns into a note
// upsert, never touching a provider.
type MemoryUpdate struct {
	notes *memory.Store
}

func NewMemoryUpdate(notes *memory.Store) *MemoryUpdate {
	return &MemoryUpdate{notes: notes}
}

var rememberPattern = regexp.MustCompile(
	`(?i)^(?:please\s+)?(?:nova[,!]?\s+)?(?:remember\s+(?:that\s+|this:?\s*)?|don't forget\s+(?:that\s+)?|note that\s+|add to your memory:?\s*|update your memory:?\s*)(.+)$`)

// ExtractFact pulls the fact body out of remember-phrasing. Returns "" when
// the text carries no extractable fact.
func ExtractFact(text string) string {
	m := rememberPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return ""
	}
	fact := strings.TrimSpace(m[1])
	return strings.TrimRight(fact, ".!?")
}

func (h *MemoryUpdate) Handle(ctx context.Context, turn types.Turn) (*types.RunSummary, error) {
	summary := &types.RunSummary{Lane: string(router.LaneMemoryUpdate)}

	fact := ExtractFact(turn.Text)
	if fact == "" {
		summary.OK = true
		summary.Reply = "What would you like me to remember?"
		return summary, nil
	}

	if err := h.notes.Upsert("", fact); err != nil {
		summary.Error = err.Error()
		summary.Reply = "I couldn't save that just now, sorry."
		logging.MemoryError("fact upsert failed: %v", err)
		return summary, nil
	}

	summary.OK = true
	summary.Reply = "Got it - I'll remember that."
	logging.Memory("remembered fact (%d chars)", len(fact))
	return summary, nil
}
