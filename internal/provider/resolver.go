// Package provider selects which generation provider and model serve a
// turn. The resolver ranks configured provider runtimes against the turn's
// requirements and retains the full ranking for observability; it is
// convention-agnostic - callers branch on Runtime.Kind to pick the wire
// shape.
package provider

import (
	"errors"
	"fmt"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/config"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/logging"
)

// ErrNoProvider is the fatal-before-start error: no configured provider can
// satisfy the turn's requirements.
var ErrNoProvider = errors.New("no connected provider satisfies the requirements")

// Runtime is one resolved provider variant. Selected, not owned, by the
// resolver.
type Runtime struct {
	ProviderID  string `json:"provider_id"`
	APIKey      string `json:"-"`
	BaseURL     string `json:"base_url,omitempty"`
	Model       string `json:"model"`
	Connected   bool   `json:"connected"`
	ToolCalling bool   `json:"tool_calling"`
	Kind        string `json:"kind"` // config.KindChatCompletion or config.KindMessageBlock
}

// Requirements describes what the turn needs from a provider.
type Requirements struct {
	ToolCalling bool
}

// Candidate is one ranked entry considered during resolution.
type Candidate struct {
	ProviderID string `json:"provider_id"`
	Eligible   bool   `json:"eligible"`
	Reason     string `json:"reason"` // why it was picked or skipped
}

// Resolution is the outcome of resolving a provider for one turn.
type Resolution struct {
	Runtime          Runtime
	RouteReason      string
	RankedCandidates []Candidate
}

// Resolve picks a provider for the turn. Order: the configured active
// provider if eligible, then (when fallback is enabled) the preference-
// ordered candidate list. Fails with ErrNoProvider only when nothing
// qualifies.
func Resolve(cfg *config.Config, req Requirements) (*Resolution, error) {
	res := &Resolution{}

	consider := func(id string) (Runtime, string, bool) {
		ps, ok := cfg.Provider(id)
		if !ok {
			return Runtime{}, "not configured", false
		}
		if !ps.Connected {
			return Runtime{}, "disconnected", false
		}
		if ps.APIKey == "" {
			return Runtime{}, "missing api key", false
		}
		if req.ToolCalling && !ps.ToolCalling {
			return Runtime{}, "no tool calling", false
		}
		return runtimeFor(id, ps), "eligible", true
	}

	if cfg.ActiveProvider != "" {
		rt, reason, ok := consider(cfg.ActiveProvider)
		res.RankedCandidates = append(res.RankedCandidates, Candidate{
			ProviderID: cfg.ActiveProvider, Eligible: ok, Reason: reason,
		})
		if ok {
			res.Runtime = rt
			res.RouteReason = "active provider"
			logging.Provider("resolved provider=%s model=%s reason=%s", rt.ProviderID, rt.Model, res.RouteReason)
			return res, nil
		}
		logging.ProviderWarn("active provider %s skipped: %s", cfg.ActiveProvider, reason)
	}

	if cfg.FallbackEnabled {
		for _, id := range cfg.FallbackOrder {
			if id == cfg.ActiveProvider {
				continue // already ranked above
			}
			rt, reason, ok := consider(id)
			res.RankedCandidates = append(res.RankedCandidates, Candidate{
				ProviderID: id, Eligible: ok, Reason: reason,
			})
			if ok {
				res.Runtime = rt
				res.RouteReason = fmt.Sprintf("fallback from %s", cfg.ActiveProvider)
				logging.Provider("resolved provider=%s model=%s reason=%s", rt.ProviderID, rt.Model, res.RouteReason)
				return res, nil
			}
		}
	}

	return res, fmt.Errorf("%w (ranked %d candidates)", ErrNoProvider, len(res.RankedCandidates))
}

func runtimeFor(id string, ps config.ProviderSettings) Runtime {
	kind := ps.Kind
	if kind == "" {
		kind = config.KindChatCompletion
	}
	model := ps.Model
	if model == "" {
		model = defaultModel(id)
	}
	return Runtime{
		ProviderID:  id,
		APIKey:      ps.APIKey,
		BaseURL:     ps.BaseURL,
		Model:       model,
		Connected:   ps.Connected,
		ToolCalling: ps.ToolCalling,
		Kind:        kind,
	}
}

// defaultModel returns the model used when the user configured none.
func defaultModel(providerID string) string {
	switch providerID {
	case "openai":
		return "gpt-4o"
	case "anthropic":
		return "claude-3-5-sonnet-latest"
	case "gemini":
		return "gemini-2.0-flash"
	case "xai":
		return "grok-2-latest"
	default:
		return ""
	}
}
