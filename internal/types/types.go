// Package types holds the shared data model for the Nova turn-processing
// core. It has no dependencies on other internal packages so that every
// subsystem (router, prompt builder, loop executor, recorders) can exchange
// values without import cycles.
package types

import "time"

// Turn is one inbound user utterance plus its routing and session metadata.
// A Turn is immutable once created.
type Turn struct {
	ID             string       `json:"id"`
	Text           string       `json:"text"`
	Source         string       `json:"source"` // e.g. "web", "voice", "api"
	Sender         string       `json:"sender"`
	SessionKey     string       `json:"session_key"`
	UserContextID  string       `json:"user_context_id"`
	ConversationID string       `json:"conversation_id"`
	MessageID      string       `json:"message_id,omitempty"` // caller-supplied inbound id, if any
	Hints          Hints        `json:"hints"`
	ReceivedAt     time.Time    `json:"received_at"`
}

// Hints carries tone/style/personalization hints and voice flags supplied by
// the caller. All fields are optional.
type Hints struct {
	Tone            string `json:"tone,omitempty"`
	Style           string `json:"style,omitempty"`
	Personalization string `json:"personalization,omitempty"`
	StrictOutput    string `json:"strict_output,omitempty"` // exact output-format constraints, if any
	VoiceReply      bool   `json:"voice_reply,omitempty"`
	VoiceID         string `json:"voice_id,omitempty"`
}

// ScopeKey returns the dedupe scope for this turn. Two turns share a scope
// only when source, user context, session and sender all match.
func (t Turn) ScopeKey() string {
	return t.Source + "|" + t.UserContextID + "|" + t.SessionKey + "|" + t.Sender
}

// TranscriptEntry is one row of a session transcript.
type TranscriptEntry struct {
	Role      string            `json:"role"` // "user" or "assistant"
	Text      string            `json:"text"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Message is one entry of the final prompt sent to a provider.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant", "tool"
	Content string `json:"content"`

	// Tool plumbing for multi-step conversations.
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`  // assistant messages requesting tools
	ToolCallID string     `json:"tool_call_id,omitempty"` // tool messages answering a call
	IsError    bool       `json:"is_error,omitempty"`
}

// ToolDefinition describes a tool the provider may invoke.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolCall is a provider-requested invocation of an external capability.
// Scoped to one loop iteration.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolResult is the outcome of executing one ToolCall.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	Errored    bool   `json:"errored"`
}

// UsageMetadata captures token usage from one provider call.
type UsageMetadata struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ProviderReply is one provider response inside the tool-calling loop.
// Text may be empty when the provider only requested tools.
type ProviderReply struct {
	Text       string        `json:"text"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	StopReason string        `json:"stop_reason,omitempty"`
	Usage      UsageMetadata `json:"usage"`
}

// RetryRecord notes one automatic retry taken during a turn.
type RetryRecord struct {
	Stage  string `json:"stage"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// ToolCallRecord is the observability record of one executed tool call.
type ToolCallRecord struct {
	Name      string `json:"name"`
	Errored   bool   `json:"errored"`
	LatencyMs int64  `json:"latency_ms"`
}

// RunSummary is the terminal record of one processed turn. Exactly one
// RunSummary exists per accepted Turn; a suppressed duplicate produces none.
type RunSummary struct {
	OK                    bool             `json:"ok"`
	Reply                 string           `json:"reply"`
	Lane                  string           `json:"lane"`
	Provider              string           `json:"provider,omitempty"`
	Model                 string           `json:"model,omitempty"`
	PromptTokens          int              `json:"prompt_tokens"`
	CompletionTokens      int              `json:"completion_tokens"`
	TotalTokens           int              `json:"total_tokens"`
	EstimatedCostUSD      float64          `json:"estimated_cost_usd"`
	ToolCalls             []ToolCallRecord `json:"tool_calls,omitempty"`
	Retries               []RetryRecord    `json:"retries,omitempty"`
	MemoryRecallUsed      bool             `json:"memory_recall_used"`
	WebSearchPreloadUsed  bool             `json:"web_search_preload_used"`
	LinkUnderstandingUsed bool             `json:"link_understanding_used"`
	LatencyMs             int64            `json:"latency_ms"`
	Error                 string           `json:"error,omitempty"`
}

// AddUsage folds one provider call's usage into the summary.
func (s *RunSummary) AddUsage(u UsageMetadata) {
	s.PromptTokens += u.PromptTokens
	s.CompletionTokens += u.CompletionTokens
	s.TotalTokens += u.TotalTokens
}
