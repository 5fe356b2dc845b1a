package prompt

import (
	"strings"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/config"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/enrich"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/types"
)

// Profile is the budget profile computed for one turn before assembly.
type Profile struct {
	MaxPromptTokens int
	ResponseReserve int
	HistoryTarget   int
	SectionCap      int
	FastLane        bool
	StrictOutput    bool
}

// ProfileFor computes the budget profile. The fast lane (simple chat)
// skips enrichment and runs a smaller ceiling; strict output-format
// constraints tighten the history allowance further so the constraints
// themselves always fit.
func ProfileFor(turn types.Turn, cfg config.BudgetConfig) Profile {
	p := Profile{
		MaxPromptTokens: cfg.MaxPromptTokens,
		ResponseReserve: cfg.ResponseReserve,
		HistoryTarget:   cfg.HistoryTarget,
		SectionCap:      cfg.SectionCap,
		StrictOutput:    turn.Hints.StrictOutput != "",
	}

	if IsFastLane(turn) {
		p.FastLane = true
		p.MaxPromptTokens = cfg.FastMaxPrompt
		p.HistoryTarget = cfg.FastHistoryTarget
	}

	if p.StrictOutput {
		// Constraints ride on top; claw their room back from history.
		constraintTokens := CountTokens(turn.Hints.StrictOutput)
		p.HistoryTarget -= constraintTokens
		if p.HistoryTarget < 0 {
			p.HistoryTarget = 0
		}
	}

	return p
}

// IsFastLane reports whether a turn qualifies for the reduced-enrichment
// fast lane: short, plain chat with nothing to look up.
func IsFastLane(turn types.Turn) bool {
	text := turn.Text
	if len(text) > 280 {
		return false
	}
	if turn.Hints.StrictOutput != "" {
		return false
	}
	if enrich.NeedsWebSearch(text) {
		return false
	}
	if strings.Contains(text, "http://") || strings.Contains(text, "https://") {
		return false
	}
	return true
}
