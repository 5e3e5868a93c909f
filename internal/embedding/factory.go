package embedding

import "fmt"

// Provider names an embedding backend.
type Provider string

const (
	ProviderONNX Provider = "onnx"
	ProviderHash Provider = "hash"
)

// Options selects and configures the embedding backend.
type Options struct {
	Provider       Provider
	ONNX           ONNXConfig
	HashDimensions int
}

// NewEmbedder builds the configured embedder. There is no fallback between
// providers: a failing ONNX setup is returned as an error.
func NewEmbedder(opts Options) (Embedder, error) {
	switch opts.Provider {
	case ProviderONNX, "":
		e, err := NewONNXEmbedder(opts.ONNX)
		if err != nil {
			return nil, err
		}
		return e, nil
	case ProviderHash:
		return NewHashEmbedder(opts.HashDimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", opts.Provider)
	}
}
