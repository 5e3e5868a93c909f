// Package config provides configuration loading and structs for the curator service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/curator/internal/chunking"
	"github.com/hyperjump/curator/internal/models"
	"github.com/hyperjump/curator/internal/retrieval"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Data      DataConfig      `yaml:"data"`
	Storage   StorageConfig   `yaml:"storage"`
	Vector    VectorConfig    `yaml:"vector"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DataConfig locates the catalog spreadsheets and optional guide files.
type DataConfig struct {
	Dir      string `yaml:"dir"`
	GuideDir string `yaml:"guide_dir"`
}

// StorageConfig holds paths for the catalog database and item index.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// VectorConfig selects the vector store.
type VectorConfig struct {
	Backend      string `yaml:"backend"`
	SnapshotPath string `yaml:"snapshot_path"`
	ChromaURL    string `yaml:"chroma_url"`
	Collection   string `yaml:"collection"`
}

// EmbeddingConfig selects and sizes the embedder.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"`
	ModelDir       string `yaml:"model_dir"`
	LibraryPath    string `yaml:"library_path"`
	MaxTokens      int    `yaml:"max_tokens"`
	BatchSize      int    `yaml:"batch_size"`
	HashDimensions int    `yaml:"hash_dimensions"`
	CacheSize      int    `yaml:"cache_size"`
}

// ChunkingConfig overrides chunk windows per document type.
type ChunkingConfig struct {
	Rules    map[string]chunking.Rule `yaml:"rules"`
	Fallback *chunking.Rule           `yaml:"fallback"`
}

// RetrievalConfig holds query defaults and relevance weights.
type RetrievalConfig struct {
	DefaultTopK   int                       `yaml:"default_top_k"`
	MaxTopK       int                       `yaml:"max_top_k"`
	MaxCandidates int                       `yaml:"max_candidates"`
	StatsTTL      time.Duration             `yaml:"stats_ttl"`
	Policy        retrieval.RelevancePolicy `yaml:"policy"`
}

// WatchConfig holds data directory watch settings.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Data.Dir = expandPath(cfg.Data.Dir, configDir)
	cfg.Data.GuideDir = expandPath(cfg.Data.GuideDir, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Vector.SnapshotPath = expandPath(cfg.Vector.SnapshotPath, configDir)
	cfg.Embedding.ModelDir = expandPath(cfg.Embedding.ModelDir, configDir)
	cfg.Embedding.LibraryPath = expandPath(cfg.Embedding.LibraryPath, configDir)

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ChunkingOptions converts the configured overrides into chunking options.
func (c ChunkingConfig) ChunkingOptions() []chunking.Option {
	var opts []chunking.Option
	for t, r := range c.Rules {
		opts = append(opts, chunking.WithRule(models.DocType(t), r))
	}
	if c.Fallback != nil {
		opts = append(opts, chunking.WithFallback(*c.Fallback))
	}
	return opts
}

// expandPath converts a path to absolute. Empty paths stay empty. Paths
// starting with "./" are relative to configDir; other relative paths are
// relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
