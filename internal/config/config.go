// Package config loads Lectern configuration with layered precedence:
// hardcoded defaults, then the user config file, then the library-local
// config file, then LECTERN_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	lecterr "github.com/lectern-labs/lectern/internal/errors"
)

// Config is the complete Lectern configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// StorageConfig configures where index artifacts live.
type StorageConfig struct {
	// DataDir is the root directory for all persisted artifacts.
	// Index files go under DataDir/index, concept maps under DataDir/concepts.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// ChunkingConfig configures the text chunker.
type ChunkingConfig struct {
	TargetTokens  int `yaml:"target_tokens" json:"target_tokens"`
	OverlapTokens int `yaml:"overlap_tokens" json:"overlap_tokens"`
}

// IndexConfig configures the vector index.
type IndexConfig struct {
	// M is the HNSW per-node neighbor count.
	M int `yaml:"m" json:"m"`
	// EfSearch is the HNSW search expansion factor.
	EfSearch int `yaml:"ef_search" json:"ef_search"`
	// CacheSize is the number of book indexes kept in memory.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder. "static" is the only built-in.
	Provider string `yaml:"provider" json:"provider"`
	// Dimensions is the embedding dimensionality. 0 means provider default.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	BatchSize  int `yaml:"batch_size" json:"batch_size"`
	// CacheSize is the embedding LRU cache capacity.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Chunking: ChunkingConfig{
			TargetTokens:  800,
			OverlapTokens: 80,
		},
		Index: IndexConfig{
			M:         16,
			EfSearch:  20,
			CacheSize: 8,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Dimensions: 0,
			BatchSize:  32,
			CacheSize:  1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// IndexDir returns the directory for vector index artifacts.
func (c *Config) IndexDir() string {
	return filepath.Join(c.Storage.DataDir, "index")
}

// ConceptDir returns the directory for concept map artifacts.
func (c *Config) ConceptDir() string {
	return filepath.Join(c.Storage.DataDir, "concepts")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".lectern")
	}
	return filepath.Join(home, ".lectern")
}

// GetUserConfigPath returns the user configuration file path following the
// XDG Base Directory specification.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "lectern", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "lectern", "config.yaml")
	}
	return filepath.Join(home, ".config", "lectern", "config.yaml")
}

// Load loads configuration for a library rooted at dir. Precedence, lowest
// to highest: defaults, user config, dir/.lectern.yaml (or .yml), LECTERN_*
// environment variables. The final config is validated.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromDir(dir string) error {
	for _, name := range []string{".lectern.yaml", ".lectern.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return lecterr.ConfigError(fmt.Sprintf("read config file %s", path), err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return lecterr.ConfigError(fmt.Sprintf("parse config file %s", path), err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero values from other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Storage.DataDir != "" {
		c.Storage.DataDir = other.Storage.DataDir
	}
	if other.Chunking.TargetTokens != 0 {
		c.Chunking.TargetTokens = other.Chunking.TargetTokens
	}
	if other.Chunking.OverlapTokens != 0 {
		c.Chunking.OverlapTokens = other.Chunking.OverlapTokens
	}
	if other.Index.M != 0 {
		c.Index.M = other.Index.M
	}
	if other.Index.EfSearch != 0 {
		c.Index.EfSearch = other.Index.EfSearch
	}
	if other.Index.CacheSize != 0 {
		c.Index.CacheSize = other.Index.CacheSize
	}
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.Format != "" {
		c.Logging.Format = other.Logging.Format
	}
}

// applyEnvOverrides applies LECTERN_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LECTERN_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("LECTERN_TARGET_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Chunking.TargetTokens = n
		}
	}
	if v := os.Getenv("LECTERN_OVERLAP_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Chunking.OverlapTokens = n
		}
	}
	if v := os.Getenv("LECTERN_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Index.CacheSize = n
		}
	}
	if v := os.Getenv("LECTERN_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("LECTERN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LECTERN_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if c.Chunking.TargetTokens <= 0 {
		return lecterr.ConfigError(
			fmt.Sprintf("chunking.target_tokens must be positive, got %d", c.Chunking.TargetTokens), nil)
	}
	if c.Chunking.OverlapTokens < 0 {
		return lecterr.ConfigError(
			fmt.Sprintf("chunking.overlap_tokens must be non-negative, got %d", c.Chunking.OverlapTokens), nil)
	}
	if c.Chunking.OverlapTokens >= c.Chunking.TargetTokens {
		return lecterr.ConfigError(
			fmt.Sprintf("chunking.overlap_tokens (%d) must be less than target_tokens (%d)",
				c.Chunking.OverlapTokens, c.Chunking.TargetTokens), nil)
	}
	if c.Index.M <= 0 {
		return lecterr.ConfigError(
			fmt.Sprintf("index.m must be positive, got %d", c.Index.M), nil)
	}
	if c.Index.CacheSize <= 0 {
		return lecterr.ConfigError(
			fmt.Sprintf("index.cache_size must be positive, got %d", c.Index.CacheSize), nil)
	}

	if c.Embeddings.Provider != "" {
		valid := map[string]bool{"static": true}
		if !valid[strings.ToLower(c.Embeddings.Provider)] {
			return lecterr.ConfigError(
				fmt.Sprintf("embeddings.provider must be 'static', got %s", c.Embeddings.Provider), nil)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return lecterr.ConfigError(
			fmt.Sprintf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level), nil)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return lecterr.ConfigError(
			fmt.Sprintf("logging.format must be 'json' or 'text', got %s", c.Logging.Format), nil)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return lecterr.ConfigError("marshal config", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return lecterr.ConfigError("write config file", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
