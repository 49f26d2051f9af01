// Package cmd provides the CLI commands for Lectern.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lectern-labs/lectern/internal/concept"
	"github.com/lectern-labs/lectern/internal/config"
	"github.com/lectern-labs/lectern/internal/embed"
	"github.com/lectern-labs/lectern/internal/index"
	"github.com/lectern-labs/lectern/internal/logging"
	"github.com/lectern-labs/lectern/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the lectern CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lectern",
		Short: "Offline semantic indexing for books",
		Long: `Lectern builds per-book semantic indexes and concept maps
for reading applications.

It chunks chapter text, embeds the chunks, and persists a vector
index per book for fast passage retrieval. A concept map of
entities, themes, and co-occurrence events is derived alongside.

Everything runs locally; no network access is required.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("lectern version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.lectern/logs/")
	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newConceptsCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	cfg.WriteToStderr = false
	if debugMode {
		cfg.Level = "debug"
	}

	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup

	if debugMode {
		slog.Info("debug logging enabled",
			slog.String("log_file", logging.DefaultLogPath()))
	}
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig loads configuration for the working directory.
func loadConfig() (*config.Config, error) {
	return config.Load(".")
}

// newIndexService builds the vector index service from config.
func newIndexService(cfg *config.Config) (*index.Service, error) {
	return index.NewService(index.Config{
		Dir:        cfg.IndexDir(),
		Dimensions: embedDimensions(cfg),
		M:          cfg.Index.M,
		EfSearch:   cfg.Index.EfSearch,
		CacheSize:  cfg.Index.CacheSize,
	})
}

// newConceptStore builds the concept map store from config.
func newConceptStore(cfg *config.Config) (*concept.Store, error) {
	return concept.NewStore(cfg.ConceptDir())
}

// newEmbedder builds the configured embedder wrapped in an LRU cache.
func newEmbedder(cfg *config.Config) embed.Embedder {
	inner := embed.NewStaticEmbedder()
	return embed.NewCachedEmbedder(inner, cfg.Embeddings.CacheSize)
}

func embedDimensions(cfg *config.Config) int {
	if cfg.Embeddings.Dimensions > 0 {
		return cfg.Embeddings.Dimensions
	}
	return embed.StaticDimensions
}
