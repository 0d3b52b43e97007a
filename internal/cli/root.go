// Package cli implements the huntgest command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dgallion1/huntgest/internal/app"
	"github.com/dgallion1/huntgest/internal/config"
)

var version = "dev"

// newApp builds the pipeline collaborators. Tests replace it.
var newApp = app.New

// globalFlags are shared by every subcommand and override the environment.
type globalFlags struct {
	verbose      bool
	provider     string
	model        string
	numCtx       int
	numPredict   int
	chunkSize    int
	chunkOverlap int
	concurrency  int
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:   "huntgest",
		Short: "Turn threat reports into indicators and hunt plans",
		Long: `huntgest reads a threat report from a URL or file, extracts indicators of
compromise with a language model, and drafts a threat hunting plan from them.

Settings come from the environment (LLM_PROVIDER, LLM_MODEL, NUM_CTX, ...)
and can be overridden with flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&g.provider, "provider", "", "LLM provider: ollama, anthropic or gemini")
	pf.StringVarP(&g.model, "model", "m", "", "model name")
	pf.IntVar(&g.numCtx, "num-ctx", 0, "model context window in tokens")
	pf.IntVar(&g.numPredict, "num-predict", 0, "maximum tokens to generate (-1 for no limit)")
	pf.IntVar(&g.concurrency, "concurrency", 0, "maximum concurrent extraction calls")

	root.AddCommand(
		newAnalyzeCmd(&g),
		newHuntCmd(&g),
		newBenchmarkCmd(&g),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI until it finishes or is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// loadConfig reads the environment and applies the flags the user set.
func (g *globalFlags) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Load()
	flags := cmd.Flags()
	if flags.Changed("provider") {
		cfg.LLMProvider = config.NormalizeProvider(g.provider)
		if !flags.Changed("model") && os.Getenv("LLM_MODEL") == "" {
			cfg.LLMModel = config.DefaultModel(cfg.LLMProvider)
		}
	}
	if flags.Changed("model") {
		cfg.LLMModel = g.model
	}
	if flags.Changed("num-ctx") {
		cfg.NumCtx = g.numCtx
	}
	if flags.Changed("num-predict") {
		cfg.NumPredict = g.numPredict
	}
	if flags.Changed("concurrency") {
		cfg.MaxConcurrentExtract = g.concurrency
	}
	return cfg, nil
}

// addChunkFlags registers the single-window chunking flags on cmd.
func (g *globalFlags) addChunkFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&g.chunkSize, "chunk-size", "s", 0, "chunk size in characters (default DEFAULT_CHUNK_SIZE)")
	cmd.Flags().IntVarP(&g.chunkOverlap, "chunk-overlap", "o", 0, "chunk overlap in characters (default DEFAULT_CHUNK_OVERLAP)")
}

func (g *globalFlags) applyChunkFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("chunk-size") {
		cfg.DefaultChunkSize = g.chunkSize
	}
	if cmd.Flags().Changed("chunk-overlap") {
		cfg.DefaultChunkOverlap = g.chunkOverlap
	}
}

func (g *globalFlags) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// setup loads configuration, applies command overrides, validates the result
// and builds the pipeline.
func (g *globalFlags) setup(cmd *cobra.Command, adjust func(*config.Config)) (config.Config, *app.App, *slog.Logger, error) {
	cfg, err := g.loadConfig(cmd)
	if err != nil {
		return cfg, nil, nil, err
	}
	if adjust != nil {
		adjust(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log := g.logger(cmd)
	a, err := newApp(cmd.Context(), cfg, log)
	if err != nil {
		return cfg, nil, nil, err
	}
	return cfg, a, log, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("huntgest version %s\n", version)
		},
	}
}
