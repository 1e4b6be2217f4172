package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cxrescue/internal/config"
	"cxrescue/internal/llm"
	"cxrescue/internal/logging"
	"cxrescue/internal/pipeline"
	"cxrescue/internal/policy"
	"cxrescue/internal/tools"
)

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string
	timeout    time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cxrescue",
	Short: "cxrescue - automated customer experience rescue pipeline",
	Long: `cxrescue resolves critical customer complaints flagged by negative
sentiment analysis. Each alert runs through three stages:

  1. Triage    - validate the alert and decide whether to escalate
  2. Solution  - rank remediation options from policy and order data
  3. Action    - execute the best option and notify the customer

The pipeline fails closed: when context cannot be gathered or the decision
model misbehaves, the alert is left for humans instead of guessing.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; explicit environment always wins.
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(workspace, logging.Options{
			Enabled:    cfg.Logging.Enabled,
			Level:      cfg.Logging.Level,
			JSONFormat: cfg.Logging.JSONFormat,
			Categories: cfg.Logging.Categories,
		}); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// processCmd runs a single alert through the pipeline and prints the
// outcome record as JSON.
var processCmd = &cobra.Command{
	Use:   "process [alert.json]",
	Short: "Process a negative-sentiment alert",
	Long: `Process one alert through triage, solution, and action.

The alert is read from the given file, from stdin when the argument is "-",
or built from the --transcript-id/--customer-id/--sentiment flags.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := alertPayload(cmd, args)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext(timeout)
		defer cancel()

		orch, err := buildOrchestrator()
		if err != nil {
			return err
		}

		rec, err := orch.ProcessEvent(ctx, payload)
		if err != nil {
			return fmt.Errorf("rejected alert: %w", err)
		}

		out, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))

		logger.Info("alert processed",
			zap.String("customer_id", rec.CustomerID),
			zap.String("status", string(rec.Status)))
		if rec.Status == pipeline.StatusError {
			return fmt.Errorf("pipeline error: %s", rec.Message)
		}
		return nil
	},
}

var (
	transcriptID string
	customerID   string
	sentiment    float64
)

// alertPayload resolves the alert JSON from the file argument, stdin, or
// the individual flags.
func alertPayload(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 1 {
		if args[0] == "-" {
			return io.ReadAll(cmd.InOrStdin())
		}
		return os.ReadFile(args[0])
	}
	if transcriptID == "" || customerID == "" {
		return nil, fmt.Errorf("provide an alert file or --transcript-id and --customer-id")
	}
	return json.Marshal(map[string]interface{}{
		"transcript_id":   transcriptID,
		"customer_id":     customerID,
		"sentiment_score": sentiment,
	})
}

// buildOrchestrator wires the production pipeline from config: Gemini as
// the decision model, HTTP collaborators, and the local policy index.
func buildOrchestrator() (*pipeline.Orchestrator, error) {
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("no Gemini API key configured (set GEMINI_API_KEY)")
	}
	model := llm.NewGeminiClientWithConfig(llm.GeminiConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.GetLLMTimeout(),
	})

	searcher, err := policy.NewSearcher(cfg.Policy.DocsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy index: %w", err)
	}

	collabs := pipeline.DefaultCollaborators(cfg, tools.EnvSecretSource{}, searcher)
	return pipeline.NewFromCollaborators(cfg, model, collabs), nil
}

// policyCmd searches the policy knowledge base directly, useful for
// checking what context the solution stage will see.
var policyCmd = &cobra.Command{
	Use:   "policy <query>",
	Short: "Search the policy knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		searcher, err := policy.NewSearcher(cfg.Policy.DocsDir)
		if err != nil {
			return err
		}
		result, err := searcher.Search(cmd.Context(), strings.Join(args, " "), cfg.Policy.TopK)
		if err != nil {
			return err
		}
		if result == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No relevant policies found.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), result)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

// configInitCmd writes the default configuration for editing.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists: %s", configPath)
		}
		if err := config.DefaultConfig().Save(configPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote default config to %s\n", configPath)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", cfg.Name, cfg.Version)
	},
}

// signalContext returns a context cancelled by SIGINT/SIGTERM or the
// overall timeout, whichever fires first.
func signalContext(d time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "cxrescue.yaml", "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "workspace directory for logs")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall processing timeout")

	processCmd.Flags().StringVar(&transcriptID, "transcript-id", "", "conversation transcript ID")
	processCmd.Flags().StringVar(&customerID, "customer-id", "", "customer ID")
	processCmd.Flags().Float64Var(&sentiment, "sentiment", 0, "negative sentiment score in [0,1]")

	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
