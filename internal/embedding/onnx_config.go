package embedding

// Defaults for the ONNX embedder.
const (
	DefaultMaxTokens = 256
	DefaultBatchSize = 32
)

// ONNXConfig locates an exported model and sizes its input tensors.
type ONNXConfig struct {
	ModelDir    string
	ModelName   string
	LibraryPath string
	MaxTokens   int
	BatchSize   int
}

func (c ONNXConfig) withDefaults() ONNXConfig {
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.ModelName == "" {
		c.ModelName = "onnx"
	}
	return c
}
