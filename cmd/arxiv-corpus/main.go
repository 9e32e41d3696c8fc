// Package main provides the arxiv-corpus CLI: harvest arXiv listings, enrich
// them, and build the vector index served by mcp-server.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bull/arxiv-corpus/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	v      *viper.Viper
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:     "arxiv-corpus",
	Short:   "Build a searchable corpus of arXiv papers",
	Version: version,
	Long: `arxiv-corpus runs the corpus pipeline one stage at a time:

  crawl       harvest arXiv listings into raw batches
  preprocess  detect language, read first PDF pages, extract metadata
  index       merge processed batches and build the vector index
  status      show pending batches, snapshot size and index manifest

Settings come from arxiv-corpus.yaml (. or ~/.config/arxiv-corpus),
ARXIV_CORPUS_* environment variables and flags, in increasing precedence.
OPENAI_API_KEY is read from the environment or a .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		cfgFile, _ := cmd.Flags().GetString("config")
		var err error
		v, err = config.NewViper(cfgFile)
		if err != nil {
			return err
		}
		if used := v.ConfigFileUsed(); used != "" {
			logger.Debug("Using config file", "path", used)
		}
		if err := bindFlags(v, cmd.Flags(), flagBindings[cmd.Name()]); err != nil {
			return err
		}
		cfg, err = config.Load(v)
		return err
	},
}

// flagBindings maps command flags onto config keys, per command.
var flagBindings = map[string]map[string]string{}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, bindings map[string]string) error {
	for key, name := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./arxiv-corpus.yaml or ~/.config/arxiv-corpus/arxiv-corpus.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("no-progress", false, "disable progress bars")
}

// progressWriter returns where progress bars render, or nil when disabled.
func progressWriter(cmd *cobra.Command) io.Writer {
	if off, _ := cmd.Flags().GetBool("no-progress"); off {
		return nil
	}
	return os.Stderr
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
