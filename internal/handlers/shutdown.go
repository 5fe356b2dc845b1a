// Package handlers holds the special-intent short-circuit flows. Each handler
// produces the same RunSummary shape as the generic chat pipeline so the
// runtime dispatch is indifferent to which lane ran.
package handlers

import (
	"context"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/logging"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/router"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/types"
)

const farewell = "Powering down. Talk soon."

// Shutdown speaks a farewell and terminates the process. The exit function
// is injected so tests can observe the call instead of dying.
type Shutdown struct {
	voice types.Voice
	exit  func(code int)
}

func NewShutdown(voice types.Voice, exit func(code int)) *Shutdown {
	return &Shutdown{voice: voice, exit: exit}
}

func (h *Shutdown) Handle(ctx context.Context, turn types.Turn) (*types.RunSummary, error) {
	logging.Turn("shutdown requested by %s via %s", turn.Sender, turn.Source)
	if h.voice != nil {
		h.voice.Stop()
		if err := h.voice.Speak(farewell, turn.Hints.VoiceID); err != nil {
			logging.TurnError("farewell speech failed: %v", err)
		}
	}
	h.exit(0)
	// Only reached when the injected exit returns (tests).
	return &types.RunSummary{OK: true, Reply: farewell, Lane: string(router.LaneShutdown)}, nil
}
