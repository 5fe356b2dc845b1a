package loop

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/config"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/enrich"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/types"
)

// scriptedClient replies from a fixed script, one entry per request.
type scriptedClient struct {
	replies []*types.ProviderReply
	errs    []error
	calls   int
	seen    [][]types.Message
}

func (c *scriptedClient) Complete(ctx context.Context, messages []types.Message, tools []types.ToolDefinition) (*types.ProviderReply, error) {
	i := c.calls
	c.calls++
	c.seen = append(c.seen, messages)
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	if i < len(c.replies) {
		return c.replies[i], nil
	}
	return &types.ProviderReply{Text: "done"}, nil
}

// streamingClient emits deltas before failing or finishing.
type streamingClient struct {
	deltas []string
	err    error
	calls  int
}

func (c *streamingClient) Complete(ctx context.Context, messages []types.Message, tools []types.ToolDefinition) (*types.ProviderReply, error) {
	return c.CompleteStream(ctx, messages, tools, nil)
}

func (c *streamingClient) CompleteStream(ctx context.Context, messages []types.Message, tools []types.ToolDefinition, onDelta types.DeltaFunc) (*types.ProviderReply, error) {
	c.calls++
	for _, d := range c.deltas {
		if onDelta != nil {
			onDelta(d)
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return &types.ProviderReply{Text: joinDeltas(c.deltas)}, nil
}

func joinDeltas(deltas []string) string {
	out := ""
	for _, d := range deltas {
		out += d
	}
	return out
}

// fakeRuntime records executed calls and fails the names listed in failing.
type fakeRuntime struct {
	tools    []types.ToolDefinition
	failing  map[string]bool
	executed []string
}

func (r *fakeRuntime) AvailableTools() []types.ToolDefinition { return r.tools }

func (r *fakeRuntime) ExecuteToolUse(ctx context.Context, call types.ToolCall) (string, error) {
	r.executed = append(r.executed, call.Name)
	if r.failing[call.Name] {
		return "", errors.New("backend unreachable")
	}
	return "result of " + call.Name, nil
}

func loopCfg() config.LoopConfig {
	return config.LoopConfig{MaxSteps: 6, FallbackModel: "gpt-4o-mini"}
}

func userMessages(text string) []types.Message {
	return []types.Message{
		{Role: "system", Content: "You are Nova."},
		{Role: "user", Content: text},
	}
}

func toolReply(names ...string) *types.ProviderReply {
	reply := &types.ProviderReply{}
	for i, n := range names {
		reply.ToolCalls = append(reply.ToolCalls, types.ToolCall{ID: fmt.Sprintf("call-%d", i), Name: n})
	}
	return reply
}

func TestPlainCompletion(t *testing.T) {
	client := &scriptedClient{replies: []*types.ProviderReply{
		{Text: "hello!", Usage: types.UsageMetadata{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
	}}
	e := NewExecutor(loopCfg(), nil, nil)

	res, err := e.Run(context.Background(), client, "openai", "gpt-4o", userMessages("hi"), nil)
	require.NoError(t, err)
	assert.Equal(t, "hello!", res.Reply)
	assert.Equal(t, 15, res.Usage.TotalTokens)
	assert.Equal(t, 1, client.calls)
	assert.Empty(t, res.Retries)
}

func TestToolCycleThreadsResults(t *testing.T) {
	rt := &fakeRuntime{tools: []types.ToolDefinition{{Name: "get_time"}}}
	client := &scriptedClient{replies: []*types.ProviderReply{
		toolReply("get_time"),
		{Text: "it is noon"},
	}}
	e := NewExecutor(loopCfg(), rt, nil)

	res, err := e.Run(context.Background(), client, "openai", "gpt-4o", userMessages("what time is it"), nil)
	require.NoError(t, err)
	assert.Equal(t, "it is noon", res.Reply)
	assert.Equal(t, []string{"get_time"}, rt.executed)

	// Second request must carry the assistant tool-call message and the
	// tool result.
	second := client.seen[1]
	require.Len(t, second, 4)
	assert.Equal(t, "assistant", second[2].Role)
	require.Len(t, second[2].ToolCalls, 1)
	assert.Equal(t, "tool", second[3].Role)
	assert.Equal(t, "call-0", second[3].ToolCallID)
	assert.Equal(t, "result of get_time", second[3].Content)
}

func TestToolFailureIsContained(t *testing.T) {
	rt := &fakeRuntime{
		tools:   []types.ToolDefinition{{Name: "calendar"}, {Name: "get_time"}},
		failing: map[string]bool{"calendar": true},
	}
	client := &scriptedClient{replies: []*types.ProviderReply{
		toolReply("calendar", "get_time"),
		{Text: "calendar is down but it is noon"},
	}}
	e := NewExecutor(loopCfg(), rt, nil)

	res, err := e.Run(context.Background(), client, "openai", "gpt-4o", userMessages("agenda?"), nil)
	require.NoError(t, err, "one tool failing must not abort the loop")
	assert.Equal(t, []string{"calendar", "get_time"}, rt.executed, "siblings still run after a failure")

	require.Len(t, res.ToolCalls, 2)
	assert.True(t, res.ToolCalls[0].Errored)
	assert.False(t, res.ToolCalls[1].Errored)

	second := client.seen[1]
	assert.True(t, second[3].IsError)
	assert.Contains(t, second[3].Content, "calendar failed")
	assert.False(t, second[4].IsError)
}

func TestStepBoundExhausts(t *testing.T) {
	rt := &fakeRuntime{tools: []types.ToolDefinition{{Name: "get_time"}}}
	var replies []*types.ProviderReply
	for i := 0; i < 10; i++ {
		replies = append(replies, toolReply("get_time"))
	}
	cfg := loopCfg()
	cfg.MaxSteps = 3
	e := NewExecutor(cfg, rt, nil)

	client := &scriptedClient{replies: replies}
	_, err := e.Run(context.Background(), client, "openai", "gpt-4o", userMessages("loop"), nil)
	require.ErrorIs(t, err, ErrLoopExhausted)
	assert.Equal(t, 3, client.calls, "never requests past the bound")
}

func TestPreDeltaTransportFailureRetriesOnce(t *testing.T) {
	primary := &scriptedClient{errs: []error{errors.New("connection reset")}}
	fallback := &scriptedClient{replies: []*types.ProviderReply{{Text: "saved by fallback"}}}

	var factoryCalls int
	factory := func(providerID, model string) (types.LLMClient, error) {
		factoryCalls++
		assert.Equal(t, "gpt-4o-mini", model)
		return fallback, nil
	}

	e := NewExecutor(loopCfg(), nil, factory)
	res, err := e.Run(context.Background(), primary, "openai", "gpt-4o", userMessages("hi"), nil)
	require.NoError(t, err)
	assert.Equal(t, "saved by fallback", res.Reply)
	assert.Equal(t, 1, factoryCalls)
	require.Len(t, res.Retries, 1)
	assert.Equal(t, "gpt-4o", res.Retries[0].From)
	assert.Equal(t, "gpt-4o-mini", res.Retries[0].To)
}

func TestFallbackServesRemainingSteps(t *testing.T) {
	rt := &fakeRuntime{tools: []types.ToolDefinition{{Name: "get_time"}}}
	primary := &scriptedClient{errs: []error{errors.New("connection reset")}}
	fallback := &scriptedClient{replies: []*types.ProviderReply{
		toolReply("get_time"),
		{Text: "it is noon"},
	}}
	factory := func(providerID, model string) (types.LLMClient, error) {
		return fallback, nil
	}

	e := NewExecutor(loopCfg(), rt, factory)
	res, err := e.Run(context.Background(), primary, "openai", "gpt-4o", userMessages("what time is it"), nil)
	require.NoError(t, err)
	assert.Equal(t, "it is noon", res.Reply)
	assert.Equal(t, 1, primary.calls, "the failed primary is out of the loop")
	assert.Equal(t, 2, fallback.calls, "tool-result follow-ups go to the fallback")
	assert.Equal(t, []string{"get_time"}, rt.executed)
}

func TestPostDeltaFailureNeverRetries(t *testing.T) {
	client := &streamingClient{deltas: []string{"partial "}, err: errors.New("stream cut")}
	factoryCalls := 0
	factory := func(providerID, model string) (types.LLMClient, error) {
		factoryCalls++
		return client, nil
	}

	e := NewExecutor(loopCfg(), nil, factory)
	var got string
	_, err := e.Run(context.Background(), client, "openai", "gpt-4o", userMessages("hi"), func(text string) {
		got += text
	})
	require.Error(t, err)
	assert.Equal(t, 0, factoryCalls, "a failure after visible output must not re-request")
	assert.Equal(t, "partial ", got)
	assert.Equal(t, 1, client.calls)
}

func TestFailureAfterFirstStepNeverRetries(t *testing.T) {
	rt := &fakeRuntime{tools: []types.ToolDefinition{{Name: "get_time"}}}
	client := &scriptedClient{
		replies: []*types.ProviderReply{toolReply("get_time")},
		errs:    []error{nil, errors.New("connection reset")},
	}
	factoryCalls := 0
	factory := func(providerID, model string) (types.LLMClient, error) {
		factoryCalls++
		return client, nil
	}

	e := NewExecutor(loopCfg(), rt, factory)
	_, err := e.Run(context.Background(), client, "openai", "gpt-4o", userMessages("hi"), nil)
	require.Error(t, err)
	assert.Equal(t, 0, factoryCalls)
}

func TestCapabilityDenialSelfHeal(t *testing.T) {
	rt := &fakeRuntime{tools: []types.ToolDefinition{{Name: "web_search"}}}
	client := &scriptedClient{replies: []*types.ProviderReply{
		{Text: "I'm sorry, but I don't have access to the internet for live scores."},
	}}
	searched := ""
	searcher := enrich.SearcherFunc(func(ctx context.Context, q string) (string, error) {
		searched = q
		return "Arsenal 2-1 Chelsea, full time", nil
	})

	e := NewExecutor(loopCfg(), rt, nil).WithSearcher(searcher)
	res, err := e.Run(context.Background(), client, "openai", "gpt-4o", userMessages("latest arsenal score"), nil)
	require.NoError(t, err)
	assert.Equal(t, "latest arsenal score", searched)
	assert.Contains(t, res.Reply, "Arsenal 2-1 Chelsea")
	assert.Contains(t, res.Reply, "don't have access", "original reply text is preserved")
}

func TestSelfHealCorrectionIsStreamed(t *testing.T) {
	rt := &fakeRuntime{tools: []types.ToolDefinition{{Name: "web_search"}}}
	client := &streamingClient{deltas: []string{"I don't have access ", "to the internet for live scores."}}
	searcher := enrich.SearcherFunc(func(ctx context.Context, q string) (string, error) {
		return "Arsenal 2-1 Chelsea, full time", nil
	})

	e := NewExecutor(loopCfg(), rt, nil).WithSearcher(searcher)
	var got string
	res, err := e.Run(context.Background(), client, "openai", "gpt-4o", userMessages("latest arsenal score"), func(text string) {
		got += text
	})
	require.NoError(t, err)
	assert.Contains(t, res.Reply, "Arsenal 2-1 Chelsea")
	assert.Contains(t, got, "Arsenal 2-1 Chelsea", "streamed text carries the correction too")
	assert.Equal(t, res.Reply, got, "subscribers and summary see the same text")
}

func TestNoSelfHealWithoutSearchTool(t *testing.T) {
	rt := &fakeRuntime{tools: []types.ToolDefinition{{Name: "get_time"}}}
	client := &scriptedClient{replies: []*types.ProviderReply{
		{Text: "I cannot browse the web."},
	}}
	called := false
	searcher := enrich.SearcherFunc(func(ctx context.Context, q string) (string, error) {
		called = true
		return "x", nil
	})

	e := NewExecutor(loopCfg(), rt, nil).WithSearcher(searcher)
	res, err := e.Run(context.Background(), client, "openai", "gpt-4o", userMessages("hi"), nil)
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, "I cannot browse the web.", res.Reply)
}
