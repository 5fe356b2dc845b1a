package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/config"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/dedupe"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/handlers"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/loop"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/prompt"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/provider"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/session"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memTranscripts is an in-memory types.Transcripts.
type memTranscripts struct {
	mu      sync.Mutex
	entries map[string][]types.TranscriptEntry
}

func newMemTranscripts() *memTranscripts {
	return &memTranscripts{entries: make(map[string][]types.TranscriptEntry)}
}

func (m *memTranscripts) AppendTurn(sessionKey string, entry types.TranscriptEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[sessionKey] = append(m.entries[sessionKey], entry)
	return nil
}

func (m *memTranscripts) Recent(sessionKey string, limit int) ([]types.TranscriptEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.entries[sessionKey]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]types.TranscriptEntry, len(all))
	copy(out, all)
	return out, nil
}

func (m *memTranscripts) LimitTurns(sessionKey string, max int) error { return nil }

func (m *memTranscripts) count(sessionKey string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries[sessionKey])
}

// stateSink records process states and stream events.
type stateSink struct {
	mu     sync.Mutex
	states []string
	events []string
}

func (s *stateSink) State(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
}

func (s *stateSink) StreamStart(turnID string) { s.record("start") }

func (s *stateSink) StreamDelta(turnID, text string) { s.record("delta") }

func (s *stateSink) StreamDone(turnID string) { s.record("done") }

func (s *stateSink) Message(kind, text string) {}

func (s *stateSink) record(e string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

type staticClient struct {
	reply   string
	err     error
	block   chan struct{} // when set, Complete waits until closed
	entered chan struct{} // when set, closed once the first call arrives
	once    sync.Once
}

func (c *staticClient) Complete(ctx context.Context, messages []types.Message, tools []types.ToolDefinition) (*types.ProviderReply, error) {
	if c.entered != nil {
		c.once.Do(func() { close(c.entered) })
	}
	if c.block != nil {
		<-c.block
	}
	if c.err != nil {
		return nil, c.err
	}
	return &types.ProviderReply{
		Text:  c.reply,
		Usage: types.UsageMetadata{PromptTokens: 50, CompletionTokens: 10, TotalTokens: 60},
	}, nil
}

type fixture struct {
	runtime     *Runtime
	sink        *stateSink
	transcripts *memTranscripts
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.ActiveProvider = "openai"
	cfg.Providers["openai"] = config.ProviderSettings{
		APIKey: "k", Connected: true, ToolCalling: true, Model: "gpt-4o",
	}
	return cfg
}

func newFixture(t *testing.T, cfg *config.Config, client types.LLMClient, mutate func(*Deps)) *fixture {
	t.Helper()

	sink := &stateSink{}
	transcripts := newMemTranscripts()
	factory := func(providerID, model string) (types.LLMClient, error) { return client, nil }

	deps := Deps{
		Config:      cfg,
		Dedupe:      dedupe.NewStore(cfg.Dedupe),
		Builder:     prompt.NewBuilder(prompt.DefaultPersona(), cfg.Budget, cfg.Enrich),
		Executor:    loop.NewExecutor(cfg.Loop, nil, factory),
		Factory:     factory,
		Transcripts: transcripts,
		Recorder:    session.NewRecorder(transcripts, nil, nil, cfg.Session),
		Sink:        sink,
	}
	if mutate != nil {
		mutate(&deps)
	}

	rt, err := NewRuntime(deps)
	require.NoError(t, err)
	return &fixture{runtime: rt, sink: sink, transcripts: transcripts}
}

func TestChatTurnEndToEnd(t *testing.T) {
	f := newFixture(t, testConfig(), &staticClient{reply: "hello there"}, nil)

	summary, err := f.runtime.HandleInput(context.Background(), "hi nova", Options{
		Source: "web", Sender: "alice", SessionKey: "s1",
	})
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.True(t, summary.OK)
	assert.Equal(t, "hello there", summary.Reply)
	assert.Equal(t, "openai", summary.Provider)
	assert.Equal(t, "gpt-4o", summary.Model)
	assert.Equal(t, 60, summary.TotalTokens)

	assert.Equal(t, 2, f.transcripts.count("s1"), "user and assistant turns recorded")
	assert.Equal(t, []string{"thinking", "idle"}, f.sink.states)
	assert.Equal(t, []string{"start", "delta", "done"}, f.sink.events)
}

func TestDuplicateTurnYieldsNoSummary(t *testing.T) {
	f := newFixture(t, testConfig(), &staticClient{reply: "once"}, nil)
	opts := Options{Source: "web", Sender: "alice", SessionKey: "s1", MessageID: "m-1"}

	first, err := f.runtime.HandleInput(context.Background(), "hi nova", opts)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := f.runtime.HandleInput(context.Background(), "hi nova", opts)
	require.NoError(t, err)
	assert.Nil(t, second, "duplicate produces no RunSummary")
	assert.Equal(t, 2, f.transcripts.count("s1"), "duplicate adds no transcript rows")
}

func TestThinkingClearedOnFailure(t *testing.T) {
	f := newFixture(t, testConfig(), &staticClient{err: errors.New("boom")}, nil)

	summary, err := f.runtime.HandleInput(context.Background(), "hi nova", Options{SessionKey: "s1"})
	require.NoError(t, err, "mid-turn failures stay inside the summary")
	require.NotNil(t, summary)
	assert.False(t, summary.OK)
	assert.Contains(t, summary.Error, "boom")
	assert.Equal(t, []string{"thinking", "idle"}, f.sink.states)
	assert.Equal(t, []string{"start", "delta", "done"}, f.sink.events, "error surfaced as a terminal delta")
}

func TestNoProviderIsFatalBeforeStart(t *testing.T) {
	cfg := testConfig()
	cfg.Providers = map[string]config.ProviderSettings{}
	cfg.ActiveProvider = ""
	f := newFixture(t, cfg, &staticClient{reply: "x"}, nil)

	summary, err := f.runtime.HandleInput(context.Background(), "hi nova", Options{SessionKey: "s1"})
	require.ErrorIs(t, err, provider.ErrNoProvider)
	assert.Nil(t, summary)
	assert.Equal(t, []string{"thinking", "idle"}, f.sink.states, "thinking cleared even on the fatal path")
}

func TestInFlightBound(t *testing.T) {
	cfg := testConfig()
	cfg.MaxInFlight = 1
	block := make(chan struct{})
	entered := make(chan struct{})
	f := newFixture(t, cfg, &staticClient{reply: "slow", block: block, entered: entered}, nil)

	finished := make(chan error, 1)
	go func() {
		_, err := f.runtime.HandleInput(context.Background(), "hi nova", Options{SessionKey: "s1"})
		finished <- err
	}()
	// Wait for the first turn to reach the provider call.
	<-entered

	_, err := f.runtime.HandleInput(context.Background(), "second", Options{SessionKey: "s2"})
	assert.ErrorIs(t, err, ErrBusy)

	close(block)
	require.NoError(t, <-finished)
}

func TestMediaLaneShortCircuits(t *testing.T) {
	exec := &recordingExecutor{}
	f := newFixture(t, testConfig(), &staticClient{err: errors.New("must not be called")}, func(d *Deps) {
		d.Media = handlers.NewMedia(exec, nil)
	})

	summary, err := f.runtime.HandleInput(context.Background(), "pause", Options{SessionKey: "s1"})
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.True(t, summary.OK)
	assert.Equal(t, "media_control", summary.Lane)
	require.Len(t, exec.actions, 1)
	assert.Equal(t, "pause", exec.actions[0].Action)
	assert.Equal(t, 2, f.transcripts.count("s1"), "handler outcomes are recorded like chat turns")
	assert.Equal(t, []string{"start", "delta", "done"}, f.sink.events, "handler replies reach the sink like chat replies")
}

func TestChatWithoutToolsAcceptsNonToolProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Providers["openai"] = config.ProviderSettings{
		APIKey: "k", Connected: true, ToolCalling: false, Model: "gpt-4o",
	}
	// The fixture wires no tool runtime, so resolution must not demand
	// tool-calling support.
	f := newFixture(t, cfg, &staticClient{reply: "plain completion"}, nil)

	summary, err := f.runtime.HandleInput(context.Background(), "hi nova", Options{SessionKey: "s1"})
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.True(t, summary.OK)
	assert.Equal(t, "plain completion", summary.Reply)
}

type recordingExecutor struct {
	mu      sync.Mutex
	actions []handlers.MediaAction
}

func (e *recordingExecutor) Execute(ctx context.Context, action handlers.MediaAction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.actions = append(e.actions, action)
	return nil
}

