// Package usage aggregates token consumption and estimated spend across
// providers, models, lanes and sessions, persisting to a JSON file under the
// workspace.
package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/logging"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/types"
)

// TokenCounts holds input/output sums plus estimated cost.
type TokenCounts struct {
	Input  int64   `json:"input"`
	Output int64   `json:"output"`
	Total  int64   `json:"total"`
	Cost   float64 `json:"cost_est_usd,omitempty"`
}

func (tc *TokenCounts) add(input, output int, cost float64) {
	tc.Input += int64(input)
	tc.Output += int64(output)
	tc.Total += int64(input + output)
	tc.Cost += cost
}

// AggregatedStats breaks the totals down by dimension.
type AggregatedStats struct {
	Total      TokenCounts            `json:"total"`
	ByProvider map[string]TokenCounts `json:"by_provider"`
	ByModel    map[string]TokenCounts `json:"by_model"`
	ByLane     map[string]TokenCounts `json:"by_lane"`
	BySession  map[string]TokenCounts `json:"by_session"`
}

type usageData struct {
	Version   string          `json:"version"`
	Aggregate AggregatedStats `json:"aggregate"`
}

// Tracker records usage events and persists them with a debounced save.
type Tracker struct {
	mu       sync.Mutex
	data     usageData
	filePath string
	dirty    bool
}

// NewTracker opens (or creates) the usage file under the workspace.
func NewTracker(workspace string) (*Tracker, error) {
	dir := filepath.Join(workspace, ".nova")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace dir: %w", err)
	}

	t := &Tracker{
		filePath: filepath.Join(dir, "usage.json"),
		data: usageData{
			Version: "1.0",
			Aggregate: AggregatedStats{
				ByProvider: make(map[string]TokenCounts),
				ByModel:    make(map[string]TokenCounts),
				ByLane:     make(map[string]TokenCounts),
				BySession:  make(map[string]TokenCounts),
			},
		},
	}
	if err := t.load(); err != nil {
		logging.Usage("usage file unreadable, starting fresh: %v", err)
	}
	return t, nil
}

func (t *Tracker) load() error {
	data, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &t.data); err != nil {
		return err
	}
	agg := &t.data.Aggregate
	if agg.ByProvider == nil {
		agg.ByProvider = make(map[string]TokenCounts)
	}
	if agg.ByModel == nil {
		agg.ByModel = make(map[string]TokenCounts)
	}
	if agg.ByLane == nil {
		agg.ByLane = make(map[string]TokenCounts)
	}
	if agg.BySession == nil {
		agg.BySession = make(map[string]TokenCounts)
	}
	return nil
}

// Save writes the usage data to disk.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked()
}

func (t *Tracker) saveLocked() error {
	data, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	t.dirty = false
	return os.WriteFile(t.filePath, data, 0644)
}

// Track records one turn's usage and returns the estimated cost in USD.
func (t *Tracker) Track(provider, model, lane, sessionKey string, u types.UsageMetadata) float64 {
	cost := EstimateCost(model, u)

	t.mu.Lock()
	defer t.mu.Unlock()

	agg := &t.data.Aggregate
	agg.Total.add(u.PromptTokens, u.CompletionTokens, cost)
	addTo(agg.ByProvider, provider, u, cost)
	addTo(agg.ByModel, model, u, cost)
	addTo(agg.ByLane, lane, u, cost)
	addTo(agg.BySession, sessionKey, u, cost)

	if !t.dirty {
		t.dirty = true
		time.AfterFunc(5*time.Second, func() {
			if err := t.Save(); err != nil {
				logging.Usage("debounced usage save failed: %v", err)
			}
		})
	}
	return cost
}

func addTo(m map[string]TokenCounts, key string, u types.UsageMetadata, cost float64) {
	if key == "" {
		return
	}
	entry := m[key]
	entry.add(u.PromptTokens, u.CompletionTokens, cost)
	m[key] = entry
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() AggregatedStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.data.Aggregate
	stats.ByProvider = copyMap(stats.ByProvider)
	stats.ByModel = copyMap(stats.ByModel)
	stats.ByLane = copyMap(stats.ByLane)
	stats.BySession = copyMap(stats.BySession)
	return stats
}

func copyMap(src map[string]TokenCounts) map[string]TokenCounts {
	dst := make(map[string]TokenCounts, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// modelPricing is USD per million tokens. Matched by model-name prefix;
// unknown models estimate at the default rate.
type modelPricing struct {
	prefix    string
	inputUSD  float64
	outputUSD float64
}

var pricingTable = []modelPricing{
	{"gpt-4o-mini", 0.15, 0.60},
	{"gpt-4o", 2.50, 10.00},
	{"claude-3-5-haiku", 0.80, 4.00},
	{"claude-3-5-sonnet", 3.00, 15.00},
	{"gemini-2.0-flash", 0.10, 0.40},
	{"grok-2", 2.00, 10.00},
}

var defaultPricing = modelPricing{inputUSD: 1.00, outputUSD: 3.00}

// EstimateCost prices one usage record against the model table.
func EstimateCost(model string, u types.UsageMetadata) float64 {
	p := defaultPricing
	for _, candidate := range pricingTable {
		if strings.HasPrefix(model, candidate.prefix) {
			p = candidate
			break
		}
	}
	return float64(u.PromptTokens)/1e6*p.inputUSD + float64(u.CompletionTokens)/1e6*p.outputUSD
}
