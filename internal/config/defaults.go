package config

import (
	"time"

	"github.com/hyperjump/curator/internal/retrieval"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = "/usr/local/var/curator/data/catalog"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/curator/data/db/catalog.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/curator/data/indices/items"
	}
	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = "memory"
	}
	if cfg.Vector.Backend == "memory" && cfg.Vector.SnapshotPath == "" {
		cfg.Vector.SnapshotPath = "/usr/local/var/curator/data/vectors/collections.bin"
	}
	if cfg.Vector.Backend == "chroma" && cfg.Vector.ChromaURL == "" {
		cfg.Vector.ChromaURL = "http://localhost:8000"
	}
	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = "exhibition_docs"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.Provider == "onnx" && cfg.Embedding.ModelDir == "" {
		cfg.Embedding.ModelDir = "/usr/local/var/curator/data/models/text2vec-base-chinese"
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 32
	}
	if cfg.Embedding.HashDimensions == 0 {
		cfg.Embedding.HashDimensions = 384
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Retrieval.DefaultTopK == 0 {
		cfg.Retrieval.DefaultTopK = 5
	}
	if cfg.Retrieval.MaxTopK == 0 {
		cfg.Retrieval.MaxTopK = 50
	}
	if cfg.Retrieval.MaxCandidates == 0 {
		cfg.Retrieval.MaxCandidates = 20
	}
	if cfg.Retrieval.StatsTTL == 0 {
		cfg.Retrieval.StatsTTL = 300 * time.Second
	}
	if cfg.Retrieval.Policy == (retrieval.RelevancePolicy{}) {
		cfg.Retrieval.Policy = retrieval.DefaultRelevancePolicy()
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 2 * time.Second
	}
}
