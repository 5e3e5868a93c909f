package embedding

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Files expected in a sentence-transformer model directory.
const (
	ModelFile  = "model.onnx"
	VocabFile  = "vocab.txt"
	ConfigFile = "config.json"
)

// ModelConfig is the subset of a transformer config.json the embedder needs.
type ModelConfig struct {
	HiddenSize   int    `json:"hidden_size"`
	MaxPositions int    `json:"max_position_embeddings"`
	ModelType    string `json:"model_type"`
	LowerCase    *bool  `json:"do_lower_case,omitempty"`
}

// LoadModelConfig reads config.json from dir.
func LoadModelConfig(dir string) (*ModelConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		return nil, fmt.Errorf("read model config: %w", err)
	}
	var cfg ModelConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse model config: %w", err)
	}
	if cfg.HiddenSize <= 0 {
		return nil, fmt.Errorf("model config %s: hidden_size missing", filepath.Join(dir, ConfigFile))
	}
	return &cfg, nil
}

// CheckModelDir verifies that dir holds the model, vocabulary and config files.
func CheckModelDir(dir string) error {
	for _, name := range []string{ModelFile, VocabFile, ConfigFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("model directory %s: %w", dir, err)
		}
	}
	return nil
}
