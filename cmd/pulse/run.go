package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/releasepulse/internal/config"
	"github.com/fyrsmithlabs/releasepulse/internal/embeddings"
	"github.com/fyrsmithlabs/releasepulse/internal/export"
	"github.com/fyrsmithlabs/releasepulse/internal/logging"
	"github.com/fyrsmithlabs/releasepulse/internal/pipeline"
	"github.com/fyrsmithlabs/releasepulse/internal/review"
	"github.com/fyrsmithlabs/releasepulse/internal/store"
)

var (
	runInput     string
	runExportDir string
	runNoExport  bool
)

// runCmd executes the full analysis pipeline locally.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the analysis pipeline over a review CSV",
	Long: `Ingest a review CSV, weight and embed the reviews, cluster them into
themes, compute per-release signals with regression and persistence flags,
score the RICE backlog, and persist everything for the query server.

Examples:
  # Analyze reviews with defaults
  pulse run --input reviews.csv

  # Custom parameters and export location
  pulse run --input reviews.csv --config pulse.yaml --export-dir out/`,
	Args: cobra.NoArgs,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "review CSV file (required)")
	runCmd.Flags().StringVar(&runExportDir, "export-dir", "", "override the CSV export directory")
	runCmd.Flags().BoolVar(&runNoExport, "no-export", false, "skip CSV export")
	runCmd.MarkFlagRequired("input")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	ctx := cmd.Context()

	f, err := os.Open(runInput)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	reviews, report, err := review.IngestCSV(f, logger)
	f.Close()
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	fmt.Printf("Ingested %d/%d reviews (%d dropped)\n", report.Accepted, report.Total, report.Dropped)

	provider, err := newProvider(cfg, logger)
	if err != nil {
		return err
	}
	defer provider.Close()

	artifacts, err := pipeline.New(cfg.Pipeline, provider, logger).Run(ctx, reviews)
	if err != nil {
		return fmt.Errorf("pipeline failed: %w", err)
	}
	for _, e := range artifacts.BacklogErrors {
		fmt.Fprintf(os.Stderr, "warning: %v\n", e)
	}

	st, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.SaveArtifacts(ctx, artifacts); err != nil {
		return fmt.Errorf("failed to persist run: %w", err)
	}

	if !runNoExport {
		dir := cfg.Export.Dir
		if runExportDir != "" {
			dir = runExportDir
		}
		if err := export.WriteAll(dir, artifacts); err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		fmt.Printf("Exports written to %s\n", dir)
	}

	latest := artifacts.Releases[len(artifacts.Releases)-1]
	fmt.Printf("Analyzed %d releases, %d themes; backlog for %s has %d entries\n",
		len(artifacts.Releases), len(artifacts.Themes), latest, len(artifacts.Backlog))
	return nil
}

// newProvider builds the embedding backend with its cache. A configured
// cache path gets the persistent store; otherwise hits live in memory for
// the life of the run.
func newProvider(cfg *config.Config, logger *zap.Logger) (embeddings.Provider, error) {
	inner, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider: cfg.Embeddings.Provider,
		Model:    cfg.Embeddings.Model,
		BaseURL:  cfg.Embeddings.BaseURL,
		CacheDir: cfg.Embeddings.ModelCacheDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}

	var cache embeddings.Cache
	if cfg.Embeddings.CachePath != "" {
		cache, err = embeddings.NewChromemCache(cfg.Embeddings.CachePath)
		if err != nil {
			inner.Close()
			return nil, fmt.Errorf("failed to open embedding cache: %w", err)
		}
	} else {
		cache = embeddings.NewMemoryCache()
	}

	return embeddings.NewCachedProvider(inner, cache, logger)
}
