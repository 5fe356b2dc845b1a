package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/assistant"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/config"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/dedupe"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/enrich"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/handlers"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/loop"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/memory"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/prompt"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/session"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/types"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/usage"
)

// consoleSink writes stream events to stdout.
type consoleSink struct{}

func (consoleSink) State(state string) {
	if state == "thinking" {
		fmt.Print("… ")
	}
}
func (consoleSink) StreamStart(turnID string) { fmt.Print("\r") }

func (consoleSink) StreamDelta(turnID, text string) { fmt.Print(text) }

func (consoleSink) StreamDone(turnID string) { fmt.Println() }

func (consoleSink) Message(kind, text string) { fmt.Printf("[%s] %s\n", kind, text) }

// consoleMedia narrates media actions; the real player integration is wired
// by embedders.
type consoleMedia struct{}

func (consoleMedia) Execute(ctx context.Context, action handlers.MediaAction) error {
	fmt.Printf("[media] %s", action.Action)
	if action.Query != "" {
		fmt.Printf(" %q", action.Query)
	}
	fmt.Println()
	return nil
}

// consoleWorkflows accepts build submissions locally so the lane is usable
// without the external builder service.
type consoleWorkflows struct{}

func (consoleWorkflows) Submit(ctx context.Context, req handlers.WorkflowRequest) (*handlers.WorkflowResponse, error) {
	fmt.Printf("[workflow] submitted key=%s\n", req.IdempotencyKey[:12])
	return &handlers.WorkflowResponse{Status: "accepted", JobID: req.IdempotencyKey[:8]}, nil
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.DefaultPath(workspace))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	watcher, err := config.NewWatcher(config.DefaultPath(workspace), func(updated *config.Config) {
		*cfg = *updated
		logger.Info("configuration reloaded")
	})
	if err != nil {
		logger.Warn("config watcher unavailable", zap.Error(err))
	} else {
		defer watcher.Close()
	}

	notes, err := memory.NewStore(workspace)
	if err != nil {
		return fmt.Errorf("failed to open memory notes: %w", err)
	}
	transcripts, err := session.Open(workspace)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer transcripts.Close()
	tracker, err := usage.NewTracker(workspace)
	if err != nil {
		return fmt.Errorf("failed to open usage tracker: %w", err)
	}
	defer tracker.Save()

	persona, err := prompt.LoadPersona(workspace)
	if err != nil {
		return fmt.Errorf("failed to load persona: %w", err)
	}

	factory := providerClientFactory(cfg)
	builder := prompt.NewBuilder(persona, cfg.Budget, cfg.Enrich).
		WithNotes(notes).
		WithLinkFetcher(enrich.NewLinkFetcher())

	runtime, err := assistant.NewRuntime(assistant.Deps{
		Config:       cfg,
		Dedupe:       dedupe.NewStore(cfg.Dedupe),
		Builder:      builder,
		Executor:     loop.NewExecutor(cfg.Loop, nil, factory),
		Factory:      factory,
		Transcripts:  transcripts,
		Recorder:     session.NewRecorder(transcripts, tracker, notes, cfg.Session),
		Sink:         consoleSink{},
		Shutdown:     handlers.NewShutdown(nil, os.Exit),
		Media:        handlers.NewMedia(consoleMedia{}, nil),
		Workflow:     handlers.NewWorkflow(consoleWorkflows{}),
		MemoryUpdate: handlers.NewMemoryUpdate(notes),
	})
	if err != nil {
		return err
	}

	fmt.Println("Nova ready. Ctrl+D to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		summary, err := runtime.HandleInput(cmd.Context(), text, assistant.Options{
			Source:     "cli",
			Sender:     os.Getenv("USER"),
			SessionKey: "cli",
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			continue
		}
		if summary == nil {
			continue // suppressed duplicate
		}
		if verbose {
			fmt.Printf("[%s ok=%v %dms %d tokens $%.4f]\n",
				summary.Lane, summary.OK, summary.LatencyMs, summary.TotalTokens, summary.EstimatedCostUSD)
		}
	}
	return scanner.Err()
}

// providerClientFactory binds resolved providers to wire clients. The HTTP
// clients themselves are linked by the embedding application; the CLI build
// carries none.
func providerClientFactory(cfg *config.Config) types.ClientFactory {
	return func(providerID, model string) (types.LLMClient, error) {
		return nil, fmt.Errorf("no %s client linked in this build (model %s); embed nova with a provider integration", providerID, model)
	}
}
