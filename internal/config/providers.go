package config

import "os"

// Provider calling conventions. Downstream callers branch on Kind when
// shaping requests; the resolver itself is convention-agnostic.
const (
	KindChatCompletion = "chat_completion" // OpenAI-compatible streaming chat completions
	KindMessageBlock   = "message_block"   // Anthropic-style system/messages with content blocks
)

// envKeys maps provider id to its conventional API key environment variable.
// Priority when no config key is present: openai > anthropic > gemini > xai.
var envKeys = []struct {
	Provider string
	EnvVar   string
	Kind     string
}{
	{"openai", "OPENAI_API_KEY", KindChatCompletion},
	{"anthropic", "ANTHROPIC_API_KEY", KindMessageBlock},
	{"gemini", "GEMINI_API_KEY", KindChatCompletion},
	{"xai", "XAI_API_KEY", KindChatCompletion},
}

// applyEnvOverrides merges environment variables into the config.
// Config file values win over env vars for keys already present; env vars
// fill gaps and can force the active provider via NOVA_ACTIVE_PROVIDER.
func applyEnvOverrides(cfg *Config) {
	for _, e := range envKeys {
		key := os.Getenv(e.EnvVar)
		if key == "" {
			continue
		}
		ps, ok := cfg.Providers[e.Provider]
		if !ok {
			ps = ProviderSettings{Kind: e.Kind, ToolCalling: true, Connected: true}
		}
		if ps.APIKey == "" {
			ps.APIKey = key
			ps.Connected = true
		}
		if ps.Kind == "" {
			ps.Kind = e.Kind
		}
		cfg.Providers[e.Provider] = ps
	}

	if p := os.Getenv("NOVA_ACTIVE_PROVIDER"); p != "" {
		cfg.ActiveProvider = p
	}
	if m := os.Getenv("NOVA_MODEL"); m != "" {
		if ps, ok := cfg.Providers[cfg.ActiveProvider]; ok {
			ps.Model = m
			cfg.Providers[cfg.ActiveProvider] = ps
		}
	}

	// Pick an active provider if none configured: first env-keyed provider
	// in priority order.
	if cfg.ActiveProvider == "" {
		for _, e := range envKeys {
			if ps, ok := cfg.Providers[e.Provider]; ok && ps.APIKey != "" {
				cfg.ActiveProvider = e.Provider
				break
			}
		}
	}
}

// Provider returns the settings for a provider id and whether it exists.
func (c *Config) Provider(id string) (ProviderSettings, bool) {
	ps, ok := c.Providers[id]
	return ps, ok
}
