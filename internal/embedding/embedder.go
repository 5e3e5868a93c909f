// Package embedding turns text into unit-length vectors and manages the vector
// collection those vectors are stored in.
package embedding

import (
	"context"
	"errors"
)

// ErrEmptyInput is returned when there is no text to embed.
var ErrEmptyInput = errors.New("empty input")

// Embedder produces vector embeddings for text.
type Embedder interface {
	// EmbedBatch returns one unit-norm vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Close() error
}
