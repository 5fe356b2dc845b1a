package types

import "context"

// LLMClient is the minimal provider contract the core orchestrates. The HTTP
// clients themselves live outside this module; the loop executor only needs
// a way to send a message list with tool definitions and get a reply.
type LLMClient interface {
	// Complete sends the message list and returns the provider's reply.
	// tools may be nil for plain completions.
	Complete(ctx context.Context, messages []Message, tools []ToolDefinition) (*ProviderReply, error)
}

// DeltaFunc receives one incremental chunk of assistant output.
type DeltaFunc func(text string)

// StreamingLLMClient is implemented by clients that can emit incremental
// deltas while a completion is in flight. Callers fall back to LLMClient
// semantics (single delta at the end) when this is not implemented.
type StreamingLLMClient interface {
	LLMClient
	CompleteStream(ctx context.Context, messages []Message, tools []ToolDefinition, onDelta DeltaFunc) (*ProviderReply, error)
}

// ClientFactory builds an LLMClient for a resolved provider/model pair.
// Injected at runtime construction so the core never owns HTTP details.
type ClientFactory func(providerID, model string) (LLMClient, error)

// ToolRuntime executes provider-requested tool calls. Execution may fail;
// the loop executor contains failures per call.
type ToolRuntime interface {
	// AvailableTools lists the tool definitions offered to the provider.
	AvailableTools() []ToolDefinition
	// ExecuteToolUse runs one call and returns its textual result.
	ExecuteToolUse(ctx context.Context, call ToolCall) (string, error)
}

// Transcripts is the session/transcript store boundary.
type Transcripts interface {
	AppendTurn(sessionKey string, entry TranscriptEntry) error
	Recent(sessionKey string, limit int) ([]TranscriptEntry, error)
	LimitTurns(sessionKey string, max int) error
}

// EventSink receives process-state and stream events. The core only writes
// to it, never reads. Implementations must tolerate concurrent calls.
type EventSink interface {
	State(state string) // "thinking" / "idle"
	StreamStart(turnID string)
	StreamDelta(turnID, text string)
	StreamDone(turnID string)
	Message(kind, text string)
}

// Voice speaks replies aloud. Starting new speech stops any currently
// playing utterance (at-most-one active utterance, enforced by callers).
type Voice interface {
	Speak(text, voiceID string) error
	Stop()
}

// NopSink is an EventSink that discards everything. Useful for tests and
// headless runs.
type NopSink struct{}

func (NopSink) State(string) {}

func (NopSink) StreamStart(string) {}

func (NopSink) StreamDelta(string, string) {}

func (NopSink) StreamDone(string) {}

func (NopSink) Message(string, string) {}
