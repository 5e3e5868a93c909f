// Package vector defines the collection contract the pipeline writes chunks to
// and the retrieval engine queries, with in-memory and Chroma backends.
package vector

import (
	"context"
	"errors"

	"github.com/hyperjump/curator/internal/models"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from the collection's.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrCollectionNotFound is returned by GetCollection for unknown names.
	ErrCollectionNotFound = errors.New("collection not found")
)

// Collection metadata keys.
const (
	MetaSpace          = "hnsw:space"
	MetaDescription    = "description"
	MetaEmbeddingModel = "embedding_model"
	MetaEmbeddingDim   = "embedding_dim"

	SpaceCosine = "cosine"
)

// Where is an exact-match metadata filter; all pairs must match.
type Where map[string]string

// Matches reports whether meta satisfies every pair in w.
func (w Where) Matches(meta models.Metadata) bool {
	for k, v := range w {
		if meta.String(k) != v {
			return false
		}
	}
	return true
}

// Hit is a stored entry returned by Query or Get. Distance is set by Query only.
type Hit struct {
	ID       string
	Document string
	Metadata models.Metadata
	Distance float64
}

// Collection is a named set of embedded documents.
type Collection interface {
	Name() string
	Metadata() map[string]interface{}
	// Add inserts or replaces entries; all slices must have the same length.
	Add(ctx context.Context, ids []string, embeddings [][]float32, documents []string, metadatas []models.Metadata) error
	// Query returns up to n nearest entries by cosine distance, nearest first.
	Query(ctx context.Context, embedding []float32, n int, where Where) ([]Hit, error)
	// Get returns up to limit entries in storage order; limit <= 0 means all.
	Get(ctx context.Context, limit int) ([]Hit, error)
	Count(ctx context.Context) (int, error)
	// Delete removes entries matching where. An empty filter deletes nothing.
	Delete(ctx context.Context, where Where) error
}

// Store hands out collections.
type Store interface {
	// GetOrCreateCollection returns the named collection, creating it with
	// metadata when absent. An existing collection keeps its metadata.
	GetOrCreateCollection(ctx context.Context, name string, metadata map[string]interface{}) (Collection, error)
	GetCollection(ctx context.Context, name string) (Collection, error)
	DeleteCollection(ctx context.Context, name string) error
	// Flush persists pending writes where the backend buffers them.
	Flush(ctx context.Context) error
	Close() error
}
