package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/logging"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/router"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/types"
)

// MediaAction is the sanitized command handed to the executor. Query and the
// numeric fields are only meaningful for the actions that use them.
type MediaAction struct {
	Action      string `json:"action"`
	Query       string `json:"query,omitempty"`        // "play" search text
	Volume      int    `json:"volume,omitempty"`       // 0-100, "volume" only
	SeekSeconds int    `json:"seek_seconds,omitempty"` // relative, "seek" only
}

// MediaExecutor carries out one media action against the player backend.
type MediaExecutor interface {
	Execute(ctx context.Context, action MediaAction) error
}

const (
	maxQueryLen    = 200
	maxSeekSeconds = 300
)

var allowedActions = map[string]bool{
	"play": true, "pause": true, "resume": true, "next": true,
	"previous": true, "volume": true, "seek": true, "mute": true,
	"unmute": true, "open": true,
}

// Media routes playback commands. Unambiguous commands resolve through a
// deterministic classifier with no provider round-trip; only free-text play
// requests and amount-carrying commands consult the provider, and everything
// the provider returns is sanitized before it drives a side effect.
type Media struct {
	exec    MediaExecutor
	desktop MediaExecutor // OS-level media keys, used when exec fails
	client  types.LLMClient
}

func NewMedia(exec, desktop MediaExecutor) *Media {
	return &Media{exec: exec, desktop: desktop}
}

// WithClient attaches the provider used for ambiguous commands.
func (m *Media) WithClient(c types.LLMClient) *Media {
	m.client = c
	return m
}

func (m *Media) Handle(ctx context.Context, turn types.Turn) (*types.RunSummary, error) {
	summary := &types.RunSummary{Lane: string(router.LaneMediaControl)}

	action, ok := ClassifyFast(turn.Text)
	if !ok {
		var err error
		action, err = m.classifyWithProvider(ctx, turn.Text)
		if err != nil {
			logging.MediaWarn("provider classification failed, using heuristic: %v", err)
			action = heuristicAction(turn.Text)
		}
	}
	action = Sanitize(action)

	if err := m.execute(ctx, action); err != nil {
		summary.Error = err.Error()
		summary.Reply = fmt.Sprintf("I couldn't control playback: %v", err)
		return summary, nil
	}

	summary.OK = true
	summary.Reply = describe(action)
	logging.Media("executed media action=%s", action.Action)
	return summary, nil
}

func (m *Media) execute(ctx context.Context, action MediaAction) error {
	err := m.exec.Execute(ctx, action)
	if err == nil {
		return nil
	}
	if m.desktop == nil {
		return err
	}
	logging.MediaWarn("primary media executor failed (%v), trying desktop fallback", err)
	if derr := m.desktop.Execute(ctx, action); derr != nil {
		return fmt.Errorf("primary: %v; desktop fallback: %w", err, derr)
	}
	return nil
}

var fastCommands = []struct {
	pattern *regexp.Regexp
	action  string
}{
	{regexp.MustCompile(`^(pause|stop)( (the )?(music|song|track|playback))?$`), "pause"},
	{regexp.MustCompile(`^(resume|unpause|continue)( (the )?(music|song|track|playback))?$`), "resume"},
	{regexp.MustCompile(`^(next|skip)( (this |the )?(track|song))?$`), "next"},
	{regexp.MustCompile(`^(previous|prev|go back)( (track|song))?$`), "previous"},
	{regexp.MustCompile(`^mute$`), "mute"},
	{regexp.MustCompile(`^unmute$`), "unmute"},
	{regexp.MustCompile(`^open (spotify|the player)$`), "open"},
}

// ClassifyFast resolves unambiguous commands deterministically. Free-text
// play requests and anything carrying an amount fall through to the
// provider.
func ClassifyFast(text string) (MediaAction, bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.TrimSuffix(normalized, ".")
	for _, c := range fastCommands {
		if c.pattern.MatchString(normalized) {
			return MediaAction{Action: c.action}, true
		}
	}
	return MediaAction{}, false
}

const mediaClassifyPrompt = `Classify the user's playback command. Reply with only a JSON object:
{"action":"play|pause|resume|next|previous|volume|seek|mute|unmute|open","query":"search text for play","volume":0,"seek_seconds":0}`

func (m *Media) classifyWithProvider(ctx context.Context, text string) (MediaAction, error) {
	if m.client == nil {
		return MediaAction{}, fmt.Errorf("no provider attached")
	}
	reply, err := m.client.Complete(ctx, []types.Message{
		{Role: "system", Content: mediaClassifyPrompt},
		{Role: "user", Content: text},
	}, nil)
	if err != nil {
		return MediaAction{}, err
	}
	return parseAction(reply.Text)
}

// parseAction pulls the first JSON object out of the provider reply. Models
// wrap JSON in prose often enough that a strict unmarshal would flake.
func parseAction(text string) (MediaAction, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return MediaAction{}, fmt.Errorf("no JSON object in reply")
	}
	var action MediaAction
	if err := json.Unmarshal([]byte(text[start:end+1]), &action); err != nil {
		return MediaAction{}, fmt.Errorf("failed to parse media action: %w", err)
	}
	return action, nil
}

// heuristicAction is the last resort when the provider is unavailable.
func heuristicAction(text string) MediaAction {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if rest, ok := strings.CutPrefix(normalized, "play "); ok {
		return MediaAction{Action: "play", Query: rest}
	}
	return MediaAction{Action: "pause"}
}

// Sanitize clamps and whitelists every field. Provider output drives
// external side effects, so nothing passes through unchecked.
func Sanitize(action MediaAction) MediaAction {
	if !allowedActions[action.Action] {
		logging.MediaWarn("rejecting unknown media action %q", action.Action)
		action = MediaAction{Action: "pause"}
	}
	action.Query = strings.TrimSpace(action.Query)
	if len(action.Query) > maxQueryLen {
		action.Query = action.Query[:maxQueryLen]
	}
	if action.Volume < 0 {
		action.Volume = 0
	}
	if action.Volume > 100 {
		action.Volume = 100
	}
	if action.SeekSeconds > maxSeekSeconds {
		action.SeekSeconds = maxSeekSeconds
	}
	if action.SeekSeconds < -maxSeekSeconds {
		action.SeekSeconds = -maxSeekSeconds
	}
	return action
}

func describe(action MediaAction) string {
	switch action.Action {
	case "play":
		if action.Query != "" {
			return "Playing " + action.Query + "."
		}
		return "Playing."
	case "volume":
		return fmt.Sprintf("Volume set to %d%%.", action.Volume)
	case "seek":
		return fmt.Sprintf("Seeking %+d seconds.", action.SeekSeconds)
	default:
		return "Done - " + action.Action + "."
	}
}
