// Package assistant is the turn-processing runtime: one HandleInput call
// takes an utterance from dedupe through routing, prompt assembly, the tool
// loop and streaming to a recorded RunSummary.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/config"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/dedupe"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/handlers"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/logging"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/loop"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/prompt"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/provider"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/router"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/session"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/stream"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/types"
)

// ErrBusy is returned when the in-flight turn bound is reached. Callers
// should retry rather than queue.
var ErrBusy = errors.New("too many in-flight turns")

// Options carries the caller-side metadata for one utterance.
type Options struct {
	Source         string
	Sender         string
	SessionKey     string
	UserContextID  string
	ConversationID string
	MessageID      string
	Hints          types.Hints
}

// Deps are the runtime's collaborators. Config, Dedupe, Builder, Executor,
// Factory and Recorder are required; the rest degrade gracefully when nil.
type Deps struct {
	Config      *config.Config
	Dedupe      *dedupe.Store
	Builder     *prompt.Builder
	Executor    *loop.Executor
	Factory     types.ClientFactory
	Transcripts types.Transcripts
	Recorder    *session.Recorder
	Sink        types.EventSink
	Voice       types.Voice

	Shutdown     *handlers.Shutdown
	Media        *handlers.Media
	Workflow     *handlers.Workflow
	MemoryUpdate *handlers.MemoryUpdate
}

// Runtime processes turns. Concurrency: a bounded in-flight semaphore across
// the process plus a per-session-key lock so transcript appends for one
// session never interleave.
type Runtime struct {
	deps Deps
	sem  chan struct{}

	mu           sync.Mutex
	sessionLocks map[string]*sync.Mutex
}

// NewRuntime validates the dependency set and builds a runtime.
func NewRuntime(deps Deps) (*Runtime, error) {
	switch {
	case deps.Config == nil:
		return nil, fmt.Errorf("assistant: config is required")
	case deps.Dedupe == nil:
		return nil, fmt.Errorf("assistant: dedupe store is required")
	case deps.Builder == nil:
		return nil, fmt.Errorf("assistant: prompt builder is required")
	case deps.Executor == nil:
		return nil, fmt.Errorf("assistant: loop executor is required")
	case deps.Factory == nil:
		return nil, fmt.Errorf("assistant: client factory is required")
	case deps.Recorder == nil:
		return nil, fmt.Errorf("assistant: recorder is required")
	}
	if deps.Sink == nil {
		deps.Sink = types.NopSink{}
	}

	maxInFlight := deps.Config.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 8
	}
	return &Runtime{
		deps:         deps,
		sem:          make(chan struct{}, maxInFlight),
		sessionLocks: make(map[string]*sync.Mutex),
	}, nil
}

// HandleInput processes one utterance to completion and returns its
// RunSummary. A suppressed duplicate returns (nil, nil): no summary, no
// transcript append. The only errors that cross this boundary are ErrBusy
// and fatal-before-start resolution failures; everything later surfaces
// inside the summary.
func (r *Runtime) HandleInput(ctx context.Context, text string, opts Options) (*types.RunSummary, error) {
	select {
	case r.sem <- struct{}{}:
	default:
		return nil, ErrBusy
	}
	defer func() { <-r.sem }()

	turn := types.Turn{
		ID:             uuid.NewString(),
		Text:           text,
		Source:         opts.Source,
		Sender:         opts.Sender,
		SessionKey:     opts.SessionKey,
		UserContextID:  opts.UserContextID,
		ConversationID: opts.ConversationID,
		MessageID:      opts.MessageID,
		Hints:          opts.Hints,
		ReceivedAt:     time.Now(),
	}

	lock := r.sessionLock(turn.SessionKey)
	lock.Lock()
	defer lock.Unlock()

	if r.deps.Dedupe.ShouldSkip(turn) {
		logging.Turn("duplicate turn suppressed, session=%s", turn.SessionKey)
		return nil, nil
	}

	r.deps.Sink.State("thinking")
	defer r.deps.Sink.State("idle")

	start := time.Now()
	lane := router.Classify(turn.Text)

	var summary *types.RunSummary
	var err error
	switch lane {
	case router.LaneShutdown:
		if r.deps.Shutdown != nil {
			// Fatal and irreversible; nothing to record.
			return r.deps.Shutdown.Handle(ctx, turn)
		}
		summary, err = r.chat(ctx, turn)
	case router.LaneMediaControl:
		if r.deps.Media != nil {
			summary, err = r.runHandler(ctx, turn, r.deps.Media.Handle)
		} else {
			summary, err = r.chat(ctx, turn)
		}
	case router.LaneWorkflow:
		if r.deps.Workflow != nil {
			summary, err = r.runHandler(ctx, turn, r.deps.Workflow.Handle)
		} else {
			summary, err = r.chat(ctx, turn)
		}
	case router.LaneMemoryUpdate:
		if r.deps.MemoryUpdate != nil {
			summary, err = r.runHandler(ctx, turn, r.deps.MemoryUpdate.Handle)
		} else {
			summary, err = r.chat(ctx, turn)
		}
	default:
		summary, err = r.chat(ctx, turn)
	}
	if err != nil {
		return nil, err
	}

	summary.LatencyMs = time.Since(start).Milliseconds()
	r.deps.Recorder.Record(turn, summary)
	logging.Turn("turn done lane=%s ok=%v latency=%dms tokens=%d",
		summary.Lane, summary.OK, summary.LatencyMs, summary.TotalTokens)
	return summary, nil
}

// runHandler routes a special-lane turn through its handler and relays the
// reply to the sink, so subscribers see the same start/delta/done stream
// shape as a chat turn.
func (r *Runtime) runHandler(ctx context.Context, turn types.Turn, handle func(context.Context, types.Turn) (*types.RunSummary, error)) (*types.RunSummary, error) {
	summary, err := handle(ctx, turn)
	if err != nil || summary == nil {
		return summary, err
	}
	stream.New(r.deps.Sink, turn.ID).Finish(summary.Reply)
	return summary, nil
}

// chat is the generic pipeline: resolve, build, loop, stream.
func (r *Runtime) chat(ctx context.Context, turn types.Turn) (*types.RunSummary, error) {
	summary := &types.RunSummary{Lane: string(router.LaneChat)}

	resolution, err := provider.Resolve(r.deps.Config, provider.Requirements{ToolCalling: r.deps.Executor.HasTools()})
	if err != nil {
		// Fatal-before-start: nothing was shown to the user yet.
		return nil, fmt.Errorf("cannot start turn: %w", err)
	}
	rt := resolution.Runtime
	summary.Provider = rt.ProviderID
	summary.Model = rt.Model

	var history []types.TranscriptEntry
	if r.deps.Transcripts != nil {
		historyTurns := r.deps.Config.Session.HistoryTurns
		if historyTurns <= 0 {
			historyTurns = 20
		}
		if history, err = r.deps.Transcripts.Recent(turn.SessionKey, historyTurns); err != nil {
			logging.SessionError("history read failed, continuing without: %v", err)
			history = nil
		}
	}

	streamer := stream.New(r.deps.Sink, turn.ID)

	built, err := r.deps.Builder.Build(ctx, turn, history)
	if err != nil {
		return r.failTurn(summary, streamer, fmt.Errorf("prompt assembly failed: %w", err)), nil
	}
	summary.MemoryRecallUsed = built.UsedMemoryRecall
	summary.WebSearchPreloadUsed = built.UsedWebSearchPreload
	summary.LinkUnderstandingUsed = built.UsedLinkUnderstanding

	client, err := r.deps.Factory(rt.ProviderID, rt.Model)
	if err != nil {
		return r.failTurn(summary, streamer, fmt.Errorf("provider client unavailable: %w", err)), nil
	}

	result, err := r.deps.Executor.Run(ctx, client, rt.ProviderID, rt.Model, built.Messages, streamer.Delta)
	if result != nil {
		summary.AddUsage(result.Usage)
		summary.ToolCalls = result.ToolCalls
		summary.Retries = result.Retries
	}
	if err != nil {
		return r.failTurn(summary, streamer, err), nil
	}

	summary.OK = true
	summary.Reply = result.Reply
	streamer.Finish(result.Reply)

	if turn.Hints.VoiceReply && r.deps.Voice != nil {
		r.deps.Voice.Stop()
		if verr := r.deps.Voice.Speak(result.Reply, turn.Hints.VoiceID); verr != nil {
			logging.TurnError("voice reply failed: %v", verr)
		}
	}
	return summary, nil
}

// failTurn surfaces a mid-turn failure as a terminal error delta and a
// failed summary. Never an error past the boundary: the stream already told
// the user.
func (r *Runtime) failTurn(summary *types.RunSummary, streamer *stream.Streamer, err error) *types.RunSummary {
	logging.TurnError("turn failed: %v", err)
	summary.OK = false
	summary.Error = err.Error()
	streamer.Fail(fmt.Sprintf("Something went wrong: %v", err))
	return summary
}

func (r *Runtime) sessionLock(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.sessionLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.sessionLocks[key] = lock
	}
	return lock
}
