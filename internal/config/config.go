// Package config provides configuration loading for releasepulse.
//
// Configuration is loaded from a YAML file, then overridden by environment
// variables, with hardcoded defaults filling the gaps.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/releasepulse/internal/logging"
	"github.com/fyrsmithlabs/releasepulse/internal/telemetry"
)

// Config holds the complete releasepulse configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Store      StoreConfig      `koanf:"store"`
	Export     ExportConfig     `koanf:"export"`
	Logging    logging.Config   `koanf:"logging"`
	Telemetry  telemetry.Config `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// PipelineConfig holds the analysis parameters.
type PipelineConfig struct {
	// Themes is the number of clusters, k.
	Themes int `koanf:"themes"`
	// ThemeLabels are optional display labels; when set, exactly k entries.
	ThemeLabels []string `koanf:"theme_labels"`
	// SimilarityThreshold is the multi-label assignment cutoff.
	SimilarityThreshold float64 `koanf:"similarity_threshold"`
	// RegressionThreshold is the normalized-signal delta that flags a
	// regression.
	RegressionThreshold float64 `koanf:"regression_threshold"`
	// PersistenceThreshold is the normalized-signal floor for persistence.
	PersistenceThreshold float64 `koanf:"persistence_threshold"`
	// MinPersistentReleases is how many qualifying releases make a theme
	// persistent.
	MinPersistentReleases int `koanf:"min_persistent_releases"`
	// Seed fixes clustering initialization.
	Seed int64 `koanf:"seed"`
	// MaxIterations caps k-means iterations.
	MaxIterations int `koanf:"max_iterations"`
	// Effort maps theme id to an effort estimate in [1, 5]. Themes missing
	// here are reported during scoring, not at load time.
	Effort map[string]int `koanf:"effort"`
}

// EmbeddingsConfig holds embedding provider configuration.
type EmbeddingsConfig struct {
	// Provider is fastembed or tei.
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	// BaseURL is the TEI endpoint; unused for fastembed.
	BaseURL string `koanf:"base_url"`
	// ModelCacheDir is where fastembed stores downloaded models.
	ModelCacheDir string `koanf:"model_cache_dir"`
	// CachePath is the on-disk embedding cache; empty keeps it in memory.
	CachePath string `koanf:"cache_path"`
}

// StoreConfig holds result persistence configuration.
type StoreConfig struct {
	// Path is the SQLite database file.
	Path string `koanf:"path"`
}

// ExportConfig holds CSV export configuration.
type ExportConfig struct {
	// Dir is where the export files are written.
	Dir string `koanf:"dir"`
}

// applyDefaults fills unset fields with production defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Pipeline.Themes == 0 {
		cfg.Pipeline.Themes = 6
	}
	if cfg.Pipeline.SimilarityThreshold == 0 {
		cfg.Pipeline.SimilarityThreshold = 0.35
	}
	if cfg.Pipeline.RegressionThreshold == 0 {
		cfg.Pipeline.RegressionThreshold = 0.05
	}
	if cfg.Pipeline.PersistenceThreshold == 0 {
		cfg.Pipeline.PersistenceThreshold = 0.15
	}
	if cfg.Pipeline.MinPersistentReleases == 0 {
		cfg.Pipeline.MinPersistentReleases = 3
	}
	if cfg.Pipeline.Seed == 0 {
		cfg.Pipeline.Seed = 42
	}
	if cfg.Pipeline.MaxIterations == 0 {
		cfg.Pipeline.MaxIterations = 50
	}
	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "all-MiniLM-L6-v2"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "releasepulse.db"
	}
	if cfg.Export.Dir == "" {
		cfg.Export.Dir = "."
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Telemetry.Exporter == "" {
		cfg.Telemetry.Exporter = "otlp"
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4318"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
}

// Validate checks configuration invariants. Effort values are checked
// eagerly so a typo fails startup rather than a later scoring pass.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Pipeline.Themes < 1 {
		return fmt.Errorf("themes must be >= 1, got %d", c.Pipeline.Themes)
	}
	if n := len(c.Pipeline.ThemeLabels); n != 0 && n != c.Pipeline.Themes {
		return fmt.Errorf("theme_labels has %d entries, want %d", n, c.Pipeline.Themes)
	}
	if c.Pipeline.SimilarityThreshold < -1 || c.Pipeline.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [-1, 1], got %g", c.Pipeline.SimilarityThreshold)
	}
	if c.Pipeline.RegressionThreshold < 0 {
		return fmt.Errorf("regression_threshold must be >= 0, got %g", c.Pipeline.RegressionThreshold)
	}
	if c.Pipeline.PersistenceThreshold < 0 || c.Pipeline.PersistenceThreshold > 1 {
		return fmt.Errorf("persistence_threshold must be in [0, 1], got %g", c.Pipeline.PersistenceThreshold)
	}
	if c.Pipeline.MinPersistentReleases < 1 {
		return fmt.Errorf("min_persistent_releases must be >= 1, got %d", c.Pipeline.MinPersistentReleases)
	}
	if c.Pipeline.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be >= 1, got %d", c.Pipeline.MaxIterations)
	}
	for themeID, effort := range c.Pipeline.Effort {
		if effort < 1 || effort > 5 {
			return fmt.Errorf("effort for %s must be in [1, 5], got %d", themeID, effort)
		}
	}
	switch c.Embeddings.Provider {
	case "fastembed", "tei":
	default:
		return fmt.Errorf("unknown embeddings provider %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Provider == "tei" && c.Embeddings.BaseURL == "" {
		return fmt.Errorf("embeddings base_url is required for provider tei")
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
