// Package config holds all Nova configuration from .nova/config.json.
// This is the single source of truth for provider credentials, token
// budgets, dedupe windows and enrichment timeouts.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all Nova configuration.
type Config struct {
	// =========================================================================
	// PROVIDER CONFIGURATION
	// =========================================================================

	// ActiveProvider is the user's selected provider id (e.g. "openai",
	// "anthropic"). Must be a key of Providers.
	ActiveProvider string `json:"active_provider,omitempty"`

	// Providers maps provider id to its runtime settings.
	Providers map[string]ProviderSettings `json:"providers,omitempty"`

	// FallbackEnabled allows falling through FallbackOrder when the active
	// provider cannot serve a turn.
	FallbackEnabled bool `json:"fallback_enabled"`

	// FallbackOrder is the preference-ordered candidate list for fallback.
	FallbackOrder []string `json:"fallback_order,omitempty"`

	// =========================================================================
	// BUDGETS & LIMITS
	// =========================================================================

	Budget  BudgetConfig  `json:"budget"`
	Dedupe  DedupeConfig  `json:"dedupe"`
	Enrich  EnrichConfig  `json:"enrichment"`
	Loop    LoopConfig    `json:"loop"`
	Session SessionConfig `json:"session"`

	// MaxInFlight bounds concurrent turns per process. Turns beyond the
	// bound fail fast instead of queueing.
	MaxInFlight int `json:"max_in_flight,omitempty"`

	// =========================================================================
	// LOGGING
	// =========================================================================

	Logging LoggingConfig `json:"logging"`
}

// ProviderSettings is the per-provider runtime configuration.
type ProviderSettings struct {
	APIKey      string `json:"api_key,omitempty"`
	BaseURL     string `json:"base_url,omitempty"`
	Model       string `json:"model,omitempty"`
	Connected   bool   `json:"connected"`
	ToolCalling bool   `json:"tool_calling"`
	// Kind selects the calling convention: "chat_completion" (OpenAI-style
	// streaming deltas) or "message_block" (Anthropic-style content blocks).
	Kind string `json:"kind,omitempty"`
}

// BudgetConfig controls the prompt token ledger.
type BudgetConfig struct {
	MaxPromptTokens   int `json:"max_prompt_tokens,omitempty"`   // ceiling for the whole system prompt + history
	ResponseReserve   int `json:"response_reserve,omitempty"`    // tokens held back for the reply
	HistoryTarget     int `json:"history_target,omitempty"`      // preferred history allowance
	SectionCap        int `json:"section_cap,omitempty"`         // per-optional-section cap
	FastMaxPrompt     int `json:"fast_max_prompt,omitempty"`     // fast-lane ceiling
	FastHistoryTarget int `json:"fast_history_target,omitempty"` // fast-lane history allowance
}

// DedupeConfig controls duplicate-turn suppression.
type DedupeConfig struct {
	ShortWindow time.Duration `json:"short_window,omitempty"` // content-fingerprint window
	LongWindow  time.Duration `json:"long_window,omitempty"`  // inbound message-id window
	MaxEntries  int           `json:"max_entries,omitempty"`  // hard cap before oldest-first eviction
}

// EnrichConfig bounds the parallel enrichment lookups.
// The shortest timeout in the chain wins, so each lookup carries its own.
type EnrichConfig struct {
	MemoryRecallTimeout time.Duration `json:"memory_recall_timeout,omitempty"`
	WebSearchTimeout    time.Duration `json:"web_search_timeout,omitempty"`
	LinkFetchTimeout    time.Duration `json:"link_fetch_timeout,omitempty"`
	MaxLinks            int           `json:"max_links,omitempty"`
	RecallTopK          int           `json:"recall_top_k,omitempty"`
}

// LoopConfig bounds the tool-calling conversation.
type LoopConfig struct {
	MaxSteps      int    `json:"max_steps,omitempty"`
	FallbackModel string `json:"fallback_model,omitempty"` // secondary model for the one-shot retry
}

// SessionConfig bounds transcripts.
type SessionConfig struct {
	MaxTurns     int `json:"max_turns,omitempty"`
	HistoryTurns int `json:"history_turns,omitempty"` // turns offered to the prompt builder
}

// LoggingConfig controls the categorized debug logger.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories,omitempty"`
	Level      string          `json:"level,omitempty"`
}

// Default returns a Config with all defaults filled in.
func Default() *Config {
	return &Config{
		FallbackEnabled: true,
		FallbackOrder:   []string{"openai", "anthropic"},
		Providers:       map[string]ProviderSettings{},
		Budget: BudgetConfig{
			MaxPromptTokens:   6000,
			ResponseReserve:   1200,
			HistoryTarget:     2000,
			SectionCap:        600,
			FastMaxPrompt:     2500,
			FastHistoryTarget: 800,
		},
		Dedupe: DedupeConfig{
			ShortWindow: 6 * time.Second,
			LongWindow:  15 * time.Minute,
			MaxEntries:  4096,
		},
		Enrich: EnrichConfig{
			MemoryRecallTimeout: 450 * time.Millisecond,
			WebSearchTimeout:    900 * time.Millisecond,
			LinkFetchTimeout:    900 * time.Millisecond,
			MaxLinks:            2,
			RecallTopK:          3,
		},
		Loop: LoopConfig{
			MaxSteps: 6,
		},
		Session: SessionConfig{
			MaxTurns:     200,
			HistoryTurns: 24,
		},
		MaxInFlight: 8,
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the default path to .nova/config.json under the
// given workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, ".nova", "config.json")
}

// Load reads the config from path, fills defaults for any zero-valued
// fields and applies environment overrides. A missing file yields the
// defaults, not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	fillDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Save writes the config to path, creating the parent directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// fillDefaults replaces zero values with defaults after unmarshal.
func fillDefaults(cfg *Config) {
	def := Default()
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderSettings{}
	}
	if len(cfg.FallbackOrder) == 0 {
		cfg.FallbackOrder = def.FallbackOrder
	}
	if cfg.Budget.MaxPromptTokens == 0 {
		cfg.Budget.MaxPromptTokens = def.Budget.MaxPromptTokens
	}
	if cfg.Budget.ResponseReserve == 0 {
		cfg.Budget.ResponseReserve = def.Budget.ResponseReserve
	}
	if cfg.Budget.HistoryTarget == 0 {
		cfg.Budget.HistoryTarget = def.Budget.HistoryTarget
	}
	if cfg.Budget.SectionCap == 0 {
		cfg.Budget.SectionCap = def.Budget.SectionCap
	}
	if cfg.Budget.FastMaxPrompt == 0 {
		cfg.Budget.FastMaxPrompt = def.Budget.FastMaxPrompt
	}
	if cfg.Budget.FastHistoryTarget == 0 {
		cfg.Budget.FastHistoryTarget = def.Budget.FastHistoryTarget
	}
	if cfg.Dedupe.ShortWindow == 0 {
		cfg.Dedupe.ShortWindow = def.Dedupe.ShortWindow
	}
	if cfg.Dedupe.LongWindow == 0 {
		cfg.Dedupe.LongWindow = def.Dedupe.LongWindow
	}
	if cfg.Dedupe.MaxEntries == 0 {
		cfg.Dedupe.MaxEntries = def.Dedupe.MaxEntries
	}
	if cfg.Enrich.MemoryRecallTimeout == 0 {
		cfg.Enrich.MemoryRecallTimeout = def.Enrich.MemoryRecallTimeout
	}
	if cfg.Enrich.WebSearchTimeout == 0 {
		cfg.Enrich.WebSearchTimeout = def.Enrich.WebSearchTimeout
	}
	if cfg.Enrich.LinkFetchTimeout == 0 {
		cfg.Enrich.LinkFetchTimeout = def.Enrich.LinkFetchTimeout
	}
	if cfg.Enrich.MaxLinks == 0 {
		cfg.Enrich.MaxLinks = def.Enrich.MaxLinks
	}
	if cfg.Enrich.RecallTopK == 0 {
		cfg.Enrich.RecallTopK = def.Enrich.RecallTopK
	}
	if cfg.Loop.MaxSteps == 0 {
		cfg.Loop.MaxSteps = def.Loop.MaxSteps
	}
	if cfg.Session.MaxTurns == 0 {
		cfg.Session.MaxTurns = def.Session.MaxTurns
	}
	if cfg.Session.HistoryTurns == 0 {
		cfg.Session.HistoryTurns = def.Session.HistoryTurns
	}
	if cfg.MaxInFlight == 0 {
		cfg.MaxInFlight = def.MaxInFlight
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
}
