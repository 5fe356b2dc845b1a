package session

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/config"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/logging"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/memory"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/types"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/usage"
)

// Recorder finalizes a turn: transcript appends, usage persistence and
// opportunistic fact capture. Every failure here is logged, never returned -
// the reply already reached the user.
type Recorder struct {
	transcripts types.Transcripts
	tracker     *usage.Tracker
	notes       *memory.Store
	cfg         config.SessionConfig
}

func NewRecorder(transcripts types.Transcripts, tracker *usage.Tracker, notes *memory.Store, cfg config.SessionConfig) *Recorder {
	return &Recorder{transcripts: transcripts, tracker: tracker, notes: notes, cfg: cfg}
}

// Record writes the turn outcome. The user turn is always appended; the
// assistant turn only when the reply is non-empty.
func (r *Recorder) Record(turn types.Turn, summary *types.RunSummary) {
	if err := r.transcripts.AppendTurn(turn.SessionKey, types.TranscriptEntry{
		Role:      "user",
		Text:      turn.Text,
		Timestamp: turn.ReceivedAt,
	}); err != nil {
		logging.SessionError("user transcript append failed: %v", err)
	}

	if summary.Reply != "" {
		meta := map[string]string{
			"lane":         summary.Lane,
			"total_tokens": fmt.Sprintf("%d", summary.TotalTokens),
		}
		if summary.Provider != "" {
			meta["provider"] = summary.Provider
			meta["model"] = summary.Model
		}
		if err := r.transcripts.AppendTurn(turn.SessionKey, types.TranscriptEntry{
			Role:     "assistant",
			Text:     summary.Reply,
			Metadata: meta,
		}); err != nil {
			logging.SessionError("assistant transcript append failed: %v", err)
		}
	}

	if r.cfg.MaxTurns > 0 {
		if err := r.transcripts.LimitTurns(turn.SessionKey, r.cfg.MaxTurns); err != nil {
			logging.SessionError("transcript trim failed: %v", err)
		}
	}

	if r.tracker != nil && summary.TotalTokens > 0 {
		summary.EstimatedCostUSD = r.tracker.Track(summary.Provider, summary.Model, summary.Lane, turn.SessionKey, types.UsageMetadata{
			PromptTokens:     summary.PromptTokens,
			CompletionTokens: summary.CompletionTokens,
			TotalTokens:      summary.TotalTokens,
		})
	}

	r.captureFacts(turn.Text)
}

// durableFactPatterns spot self-descriptive statements worth keeping beyond
// the transcript window.
var durableFactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy (name|birthday|anniversary|address|email|phone number|wifi password) is [^.!?]+`),
	regexp.MustCompile(`(?i)\bi (prefer|like|love|hate|dislike) [^.!?]+`),
	regexp.MustCompile(`(?i)\bi(?:'m| am) allergic to [^.!?]+`),
	regexp.MustCompile(`(?i)\bi live (in|at) [^.!?]+`),
	regexp.MustCompile(`(?i)\bcall me [^.!?]+`),
}

// captureFacts upserts durable self-statements from the raw user text.
// Best-effort: a write failure is logged and the turn still succeeds.
func (r *Recorder) captureFacts(text string) {
	if r.notes == nil {
		return
	}
	for _, p := range durableFactPatterns {
		match := strings.TrimSpace(p.FindString(text))
		if match == "" {
			continue
		}
		if err := r.notes.Upsert("", match); err != nil {
			logging.MemoryError("opportunistic fact capture failed: %v", err)
			return
		}
		logging.Memory("captured durable fact (%d chars)", len(match))
	}
}
