package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/config"
)

func resolverConfig() *config.Config {
	cfg := config.Default()
	cfg.ActiveProvider = "openai"
	cfg.FallbackOrder = []string{"openai", "anthropic", "gemini"}
	cfg.Providers = map[string]config.ProviderSettings{
		"openai": {
			APIKey: "sk-test", Connected: true, ToolCalling: true,
			Kind: config.KindChatCompletion, Model: "gpt-4o",
		},
		"anthropic": {
			APIKey: "sk-ant", Connected: true, ToolCalling: true,
			Kind: config.KindMessageBlock,
		},
		"gemini": {
			APIKey: "g-key", Connected: true, ToolCalling: false,
			Kind: config.KindChatCompletion,
		},
	}
	return cfg
}

func TestResolveActiveProvider(t *testing.T) {
	res, err := Resolve(resolverConfig(), Requirements{ToolCalling: true})
	require.NoError(t, err)
	assert.Equal(t, "openai", res.Runtime.ProviderID)
	assert.Equal(t, "gpt-4o", res.Runtime.Model)
	assert.Equal(t, "active provider", res.RouteReason)
	assert.Len(t, res.RankedCandidates, 1)
}

func TestResolveFallsBackWhenActiveDisconnected(t *testing.T) {
	cfg := resolverConfig()
	ps := cfg.Providers["openai"]
	ps.Connected = false
	cfg.Providers["openai"] = ps

	res, err := Resolve(cfg, Requirements{ToolCalling: true})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", res.Runtime.ProviderID)
	assert.Equal(t, config.KindMessageBlock, res.Runtime.Kind)
	assert.Contains(t, res.RouteReason, "fallback")

	// Ranking retains the skipped active provider with its reason.
	require.GreaterOrEqual(t, len(res.RankedCandidates), 2)
	assert.Equal(t, "openai", res.RankedCandidates[0].ProviderID)
	assert.False(t, res.RankedCandidates[0].Eligible)
	assert.Equal(t, "disconnected", res.RankedCandidates[0].Reason)
}

func TestResolveSkipsToolIncapableWhenRequired(t *testing.T) {
	cfg := resolverConfig()
	cfg.Providers = map[string]config.ProviderSettings{
		"gemini": cfg.Providers["gemini"], // tool_calling=false
	}
	cfg.ActiveProvider = "gemini"
	cfg.FallbackOrder = []string{"gemini"}

	_, err := Resolve(cfg, Requirements{ToolCalling: true})
	assert.ErrorIs(t, err, ErrNoProvider)

	// Without the tool-calling requirement the same config resolves.
	res, err := Resolve(cfg, Requirements{})
	require.NoError(t, err)
	assert.Equal(t, "gemini", res.Runtime.ProviderID)
}

func TestResolveNoFallbackWhenDisabled(t *testing.T) {
	cfg := resolverConfig()
	cfg.FallbackEnabled = false
	ps := cfg.Providers["openai"]
	ps.APIKey = ""
	cfg.Providers["openai"] = ps

	_, err := Resolve(cfg, Requirements{})
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestDefaultModelFilledIn(t *testing.T) {
	cfg := resolverConfig()
	cfg.ActiveProvider = "anthropic"
	res, err := Resolve(cfg, Requirements{})
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-sonnet-latest", res.Runtime.Model)
}
