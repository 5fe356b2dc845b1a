package prompt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/config"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/enrich"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/logging"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/memory"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/types"
)

// Builder assembles the message list for one turn. All collaborators are
// optional: a nil searcher, fetcher or note store simply means that
// enrichment contributes nothing.
type Builder struct {
	persona   Persona
	budgetCfg config.BudgetConfig
	enrichCfg config.EnrichConfig
	notes     *memory.Store
	searcher  enrich.Searcher
	fetcher   *enrich.LinkFetcher
	now       func() time.Time
}

// NewBuilder creates a prompt builder.
func NewBuilder(persona Persona, budgetCfg config.BudgetConfig, enrichCfg config.EnrichConfig) *Builder {
	return &Builder{
		persona:   persona,
		budgetCfg: budgetCfg,
		enrichCfg: enrichCfg,
		now:       time.Now,
	}
}

// WithNotes attaches the memory note store for recall enrichment and the
// preference section.
func (b *Builder) WithNotes(notes *memory.Store) *Builder {
	b.notes = notes
	return b
}

// WithSearcher attaches the web-search boundary.
func (b *Builder) WithSearcher(s enrich.Searcher) *Builder {
	b.searcher = s
	return b
}

// WithLinkFetcher attaches the link-understanding fetcher.
func (b *Builder) WithLinkFetcher(f *enrich.LinkFetcher) *Builder {
	b.fetcher = f
	return b
}

// Result is the assembled prompt context for one turn.
type Result struct {
	Messages              []types.Message
	PromptHash            string
	Profile               Profile
	UsedMemoryRecall      bool
	UsedWebSearchPreload  bool
	UsedLinkUnderstanding bool
}

// Build assembles the final message list: [system, ...trimmedHistory, user].
//
// The persona base is the floor and is never ledger-checked. The four
// user-relevant optional sections go through the ledger but fall back to an
// unconditional append when rejected - completeness is traded away only for
// the three enrichment sections, which may be dropped silently.
func (b *Builder) Build(ctx context.Context, turn types.Turn, history []types.TranscriptEntry) (*Result, error) {
	profile := ProfileFor(turn, b.budgetCfg)
	ledger := NewLedger(profile.MaxPromptTokens)
	res := &Result{Profile: profile}

	timer := logging.StartTimer(logging.CategoryPrompt, "prompt build")
	defer timer.StopWithThreshold(2 * time.Second)

	sections := make([]string, 0, 10)

	// 1. Base: persona, skills, runtime metadata. Always included.
	base := b.persona.Render() + "\n\n" + b.runtimeMetadata(turn)
	sections = append(sections, base)
	ledger.ForceSpend(CountTokens(base))

	// 2. User-relevant optional sections, in fixed order.
	for _, s := range b.userSections(turn) {
		if s.text == "" {
			continue
		}
		tokens := CountTokens(s.text)
		if !ledger.Admit(tokens) {
			// Outer fallback: never silently lose a user-relevant fact.
			logging.PromptWarn("section %q over budget, appending via fallback", s.name)
			ledger.ForceSpend(tokens)
		}
		sections = append(sections, s.text)
	}

	// 3. Enrichment, unless fast-laned. Merged in fixed priority after all
	// lookups settle; each may be dropped silently.
	if !profile.FastLane {
		enriched := b.runEnrichment(ctx, turn)
		if admitEnrichment(ledger, profile, enriched.webSearch) {
			sections = append(sections, "Live search results:\n"+enriched.webSearch)
			res.UsedWebSearchPreload = true
		}
		if admitEnrichment(ledger, profile, enriched.linkText) {
			sections = append(sections, "Linked page contents:\n"+enriched.linkText)
			res.UsedLinkUnderstanding = true
		}
		if admitEnrichment(ledger, profile, enriched.memory) {
			sections = append(sections, "Relevant long-term memory:\n"+enriched.memory)
			res.UsedMemoryRecall = true
		}
	}

	// 4. Strict output constraints ride last and are never dropped.
	if profile.StrictOutput {
		constraint := "Output format constraints (mandatory):\n" + turn.Hints.StrictOutput
		ledger.ForceSpend(CountTokens(constraint))
		sections = append(sections, constraint)
	}

	system := strings.Join(sections, "\n\n")
	systemTokens := CountTokens(system)

	// 5. History gets what remains after the system prompt and the response
	// reserve, bounded by the profile target. Oldest turns trim first.
	historyBudget := profile.MaxPromptTokens - systemTokens - profile.ResponseReserve
	if historyBudget > profile.HistoryTarget {
		historyBudget = profile.HistoryTarget
	}
	if historyBudget < 0 {
		historyBudget = 0
	}
	trimmed := trimHistory(history, historyBudget)

	messages := make([]types.Message, 0, len(trimmed)+2)
	messages = append(messages, types.Message{Role: "system", Content: system})
	for _, e := range trimmed {
		messages = append(messages, types.Message{Role: e.Role, Content: e.Text})
	}
	messages = append(messages, types.Message{Role: "user", Content: turn.Text})

	res.Messages = messages
	res.PromptHash = hashMessages(messages)
	logging.Prompt("built prompt hash=%s sections=%d system_tokens=%d history=%d/%d fast=%v",
		res.PromptHash[:8], len(sections), systemTokens, len(trimmed), len(history), profile.FastLane)
	return res, nil
}

type section struct {
	name string
	text string
}

// userSections produces the four user-relevant optional sections:
// preference memory, identity summary, personality calibration and
// short-term continuity.
func (b *Builder) userSections(turn types.Turn) []section {
	var prefs string
	if b.notes != nil {
		if all := b.notes.All(); len(all) > 0 {
			lines := make([]string, 0, len(all))
			for _, n := range all {
				lines = append(lines, "- "+n.Text)
			}
			// Preferences lead with the most recently updated facts.
			prefs = "What you know about the user:\n" + strings.Join(lines, "\n")
		}
	}

	var identity string
	if turn.Sender != "" || turn.Hints.Personalization != "" {
		identity = strings.TrimSpace(fmt.Sprintf(
			"You are speaking with %s. %s", displayName(turn), turn.Hints.Personalization))
	}

	var personality string
	if turn.Hints.Tone != "" || turn.Hints.Style != "" {
		personality = strings.TrimSpace(fmt.Sprintf(
			"Calibrate your reply: tone=%s style=%s", turn.Hints.Tone, turn.Hints.Style))
	}

	var continuity string
	if turn.ConversationID != "" {
		continuity = "Continue the current conversation naturally; do not re-introduce yourself."
	}

	return []section{
		{"preferences", prefs},
		{"identity", identity},
		{"personality", personality},
		{"continuity", continuity},
	}
}

func displayName(turn types.Turn) string {
	if turn.Sender != "" {
		return turn.Sender
	}
	return "the user"
}

func (b *Builder) runtimeMetadata(turn types.Turn) string {
	return fmt.Sprintf("Current time: %s. Input source: %s.",
		b.now().Format("Monday, 2 Jan 2006 15:04 MST"), turn.Source)
}

// admitEnrichment gates one enrichment section through the ledger and the
// per-section cap. Enrichment is the only content dropped silently.
func admitEnrichment(ledger *Ledger, profile Profile, text string) bool {
	if text == "" {
		return false
	}
	tokens := CountTokens(text)
	if tokens > profile.SectionCap {
		logging.PromptDebug("enrichment section dropped: %d tokens over cap %d", tokens, profile.SectionCap)
		return false
	}
	return ledger.Admit(tokens)
}

// trimHistory drops the oldest transcript turns until the rest fits the
// budget.
func trimHistory(history []types.TranscriptEntry, budget int) []types.TranscriptEntry {
	if budget <= 0 {
		return nil
	}
	total := 0
	cut := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		tokens := 4 + CountTokens(history[i].Text)
		if total+tokens > budget {
			break
		}
		total += tokens
		cut = i
	}
	return history[cut:]
}

// hashMessages fingerprints the final message list for idempotency and
// debug tracing.
func hashMessages(messages []types.Message) string {
	h := sha256.New()
	for _, m := range messages {
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
