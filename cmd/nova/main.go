package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/config"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/logging"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/memory"
)

var (
	// Global flags
	verbose   bool
	workspace string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "nova",
	Short: "Nova - personal assistant turn-processing runtime",
	Long: `Nova processes one utterance at a time: dedupe, intent routing, bounded
prompt assembly with concurrent enrichment, a tool-calling provider loop,
streaming output and usage recording.

Run without arguments to start the line-oriented chat interface.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		if logger, err = zcfg.Build(); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("debug logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive chat loop",
	RunE:  runChat,
}

var rememberCmd = &cobra.Command{
	Use:   "remember [fact]",
	Short: "Store a durable fact in long-term memory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		notes, err := memory.NewStore(workspace)
		if err != nil {
			return err
		}
		fact := ""
		for i, a := range args {
			if i > 0 {
				fact += " "
			}
			fact += a
		}
		if err := notes.Upsert("", fact); err != nil {
			return fmt.Errorf("failed to store fact: %w", err)
		}
		fmt.Println("Remembered.")
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.DefaultPath(workspace))
		if err != nil {
			return err
		}
		fmt.Printf("active provider: %s\n", cfg.ActiveProvider)
		for id, ps := range cfg.Providers {
			fmt.Printf("  %s: connected=%v tool_calling=%v model=%s\n", id, ps.Connected, ps.ToolCalling, ps.Model)
		}
		fmt.Printf("fallback: enabled=%v order=%v\n", cfg.FallbackEnabled, cfg.FallbackOrder)
		fmt.Printf("budget: max_prompt=%d reserve=%d history=%d\n",
			cfg.Budget.MaxPromptTokens, cfg.Budget.ResponseReserve, cfg.Budget.HistoryTarget)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "workspace directory")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(rememberCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
