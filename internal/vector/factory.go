package vector

import "fmt"

// Backend names a Store implementation.
type Backend string

const (
	// BackendMemory keeps collections in process with a snapshot file.
	BackendMemory Backend = "memory"
	// BackendChroma talks to a Chroma server over HTTP.
	BackendChroma Backend = "chroma"
)

// Options configures NewStore.
type Options struct {
	Backend      string
	SnapshotPath string
	ChromaURL    string
	// Embedder is required by the chroma backend.
	Embedder TextEmbedder
}

// NewStore creates the configured store. An empty backend selects memory.
func NewStore(opts Options) (Store, error) {
	switch Backend(opts.Backend) {
	case BackendMemory, "":
		return NewMemoryStore(opts.SnapshotPath)
	case BackendChroma:
		return NewChromaStore(opts.ChromaURL, opts.Embedder)
	default:
		return nil, fmt.Errorf("unknown vector backend: %s (supported: memory, chroma)", opts.Backend)
	}
}
