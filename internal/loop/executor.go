// Package loop drives the bounded multi-step tool-calling conversation with
// a generation provider. Tool calls execute sequentially with per-call error
// containment; the loop itself is bounded by a maximum step count.
package loop

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/config"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/enrich"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/logging"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/types"
)

// ErrLoopExhausted is returned when the step bound is reached without a
// tool-call-free reply.
var ErrLoopExhausted = errors.New("tool loop exhausted without a final reply")

// Executor runs the Requesting -> Executing cycle. The tool runtime and the
// searcher are optional; a nil runtime means plain completions.
type Executor struct {
	cfg      config.LoopConfig
	runtime  types.ToolRuntime
	factory  types.ClientFactory
	searcher enrich.Searcher
}

// NewExecutor creates a loop executor. factory is used only for the one-shot
// fallback-model retry and may be nil to disable it.
func NewExecutor(cfg config.LoopConfig, runtime types.ToolRuntime, factory types.ClientFactory) *Executor {
	return &Executor{cfg: cfg, runtime: runtime, factory: factory}
}

// WithSearcher attaches the web-search boundary used by the capability-denial
// self-heal pass.
func (e *Executor) WithSearcher(s enrich.Searcher) *Executor {
	e.searcher = s
	return e
}

// HasTools reports whether a tool runtime is attached. Callers use it to
// decide whether provider resolution must demand tool-calling support.
func (e *Executor) HasTools() bool {
	return e.runtime != nil && len(e.runtime.AvailableTools()) > 0
}

// Result is the outcome of one completed loop.
type Result struct {
	Reply        string
	Usage        types.UsageMetadata
	ToolCalls    []types.ToolCallRecord
	Retries      []types.RetryRecord
	DeltaEmitted bool
}

// Run drives the conversation to a final text reply. onDelta may be nil;
// when the client streams, deltas are forwarded as they arrive.
//
// A transport failure on the very first request, before any delta reached
// the caller, triggers exactly one retry against the configured fallback
// model. Failures after partial output surface as-is - re-requesting would
// duplicate text the user already saw.
func (e *Executor) Run(ctx context.Context, client types.LLMClient, providerID, model string, messages []types.Message, onDelta types.DeltaFunc) (*Result, error) {
	res := &Result{}

	var tools []types.ToolDefinition
	if e.runtime != nil {
		tools = e.runtime.AvailableTools()
	}

	maxSteps := e.cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 6
	}

	for step := 0; step < maxSteps; step++ {
		reply, err := e.request(ctx, client, messages, tools, res, onDelta)
		if err != nil {
			if step > 0 || res.DeltaEmitted {
				return res, fmt.Errorf("%s request failed at step %d: %w", model, step, err)
			}
			fallback, retried, rerr := e.retryOnFallback(ctx, providerID, model, messages, tools, res, onDelta, err)
			if rerr != nil {
				return res, rerr
			}
			// The primary's transport just failed; the fallback serves the
			// rest of the loop.
			client = fallback
			model = e.cfg.FallbackModel
			reply = retried
		}
		res.Usage.PromptTokens += reply.Usage.PromptTokens
		res.Usage.CompletionTokens += reply.Usage.CompletionTokens
		res.Usage.TotalTokens += reply.Usage.TotalTokens

		if len(reply.ToolCalls) == 0 {
			res.Reply = reply.Text
			e.selfHeal(ctx, res, tools, lastUserText(messages), onDelta)
			logging.Tools("loop done after %d step(s), %d tool call(s)", step+1, len(res.ToolCalls))
			return res, nil
		}

		messages = append(messages, types.Message{
			Role:      "assistant",
			Content:   reply.Text,
			ToolCalls: reply.ToolCalls,
		})
		for _, call := range reply.ToolCalls {
			messages = append(messages, e.executeOne(ctx, call, res))
		}
	}

	return res, fmt.Errorf("%w after %d steps", ErrLoopExhausted, maxSteps)
}

// request prefers the streaming path when the client offers one.
func (e *Executor) request(ctx context.Context, client types.LLMClient, messages []types.Message, tools []types.ToolDefinition, res *Result, onDelta types.DeltaFunc) (*types.ProviderReply, error) {
	if sc, ok := client.(types.StreamingLLMClient); ok && onDelta != nil {
		return sc.CompleteStream(ctx, messages, tools, func(text string) {
			res.DeltaEmitted = true
			onDelta(text)
		})
	}
	return client.Complete(ctx, messages, tools)
}

// retryOnFallback performs the single permitted pre-delta retry against the
// configured fallback model. On success it returns the fallback client so
// the caller can keep using it for any remaining steps.
func (e *Executor) retryOnFallback(ctx context.Context, providerID, model string, messages []types.Message, tools []types.ToolDefinition, res *Result, onDelta types.DeltaFunc, cause error) (types.LLMClient, *types.ProviderReply, error) {
	if e.factory == nil || e.cfg.FallbackModel == "" || e.cfg.FallbackModel == model {
		return nil, nil, fmt.Errorf("first provider request failed: %w", cause)
	}
	logging.ToolsWarn("first request to %s/%s failed (%v), retrying once on %s", providerID, model, cause, e.cfg.FallbackModel)

	fallback, err := e.factory(providerID, e.cfg.FallbackModel)
	if err != nil {
		return nil, nil, fmt.Errorf("fallback client for %s unavailable: %w", e.cfg.FallbackModel, err)
	}
	res.Retries = append(res.Retries, types.RetryRecord{
		Stage:  "first_request",
		From:   model,
		To:     e.cfg.FallbackModel,
		Reason: cause.Error(),
	})
	reply, err := e.request(ctx, fallback, messages, tools, res, onDelta)
	if err != nil {
		return nil, nil, fmt.Errorf("fallback request also failed: %w", err)
	}
	return fallback, reply, nil
}

// executeOne runs a single tool call. Failures become an error-marked tool
// result; they never abort the sibling calls or the loop.
func (e *Executor) executeOne(ctx context.Context, call types.ToolCall, res *Result) types.Message {
	start := time.Now()
	content, err := e.runtime.ExecuteToolUse(ctx, call)
	latency := time.Since(start).Milliseconds()

	record := types.ToolCallRecord{Name: call.Name, LatencyMs: latency}
	msg := types.Message{Role: "tool", ToolCallID: call.ID}
	if err != nil {
		record.Errored = true
		msg.IsError = true
		msg.Content = fmt.Sprintf("tool %s failed: %v", call.Name, err)
		logging.ToolsError("tool %s failed after %dms: %v", call.Name, latency, err)
	} else {
		msg.Content = content
		logging.Tools("tool %s ok in %dms", call.Name, latency)
	}
	res.ToolCalls = append(res.ToolCalls, record)
	return msg
}

var webDenialPattern = regexp.MustCompile(`(?i)\b(cannot|can't|don't have|do not have|unable to|no ability to)\b[^.]{0,60}\b(internet|web|browse|browsing|real[- ]?time|live (data|information)|current (events|information))`)

// selfHeal counters a reply that denies live web access while a search tool
// was on the table: run one corrective search and fold the findings in. When
// the denial already went out as deltas, the correction is streamed too so
// subscribers see the same text that lands in the summary.
func (e *Executor) selfHeal(ctx context.Context, res *Result, tools []types.ToolDefinition, query string, onDelta types.DeltaFunc) {
	if e.searcher == nil || !hasSearchTool(tools) || query == "" {
		return
	}
	if !webDenialPattern.MatchString(res.Reply) {
		return
	}
	found, err := e.searcher.Search(ctx, query)
	if err != nil || strings.TrimSpace(found) == "" {
		logging.ToolsWarn("capability self-heal search failed: %v", err)
		return
	}
	logging.Tools("capability self-heal applied, %d chars of search results", len(found))
	correction := "\n\nCorrection: I checked the live web after all. Here's what I found:\n" + strings.TrimSpace(found)
	res.Reply = res.Reply + correction
	if res.DeltaEmitted && onDelta != nil {
		onDelta(correction)
	}
}

func lastUserText(messages []types.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

func hasSearchTool(tools []types.ToolDefinition) bool {
	for _, t := range tools {
		if strings.Contains(strings.ToLower(t.Name), "search") {
			return true
		}
	}
	return false
}
