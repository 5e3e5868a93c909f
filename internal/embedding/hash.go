package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// DefaultHashDimensions is the vector size of HashEmbedder when none is given.
const DefaultHashDimensions = 384

// HashEmbedder is a deterministic feature-hashing embedder. Latin words,
// CJK characters and CJK bigrams are hashed into signed buckets, so texts that
// share vocabulary land near each other. It needs no model files and is meant
// for tests and model-less development.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a HashEmbedder producing vectors of the given size.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultHashDimensions
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the unit-norm feature vector for text.
func (e *HashEmbedder) Embed(text string) []float32 {
	vec := make([]float32, e.dimensions)
	for _, f := range hashFeatures(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(f.term))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dimensions))
		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		vec[idx] += sign * f.weight
	}
	NormalizeL2(vec)
	return vec
}

// EmbedBatch embeds each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.Embed(text)
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelName identifies the hashing scheme.
func (e *HashEmbedder) ModelName() string {
	return "hash-bigram"
}

// Close is a no-op.
func (e *HashEmbedder) Close() error {
	return nil
}

type feature struct {
	term   string
	weight float32
}

func hashFeatures(text string) []feature {
	var (
		feats []feature
		word  strings.Builder
		prev  rune
	)
	flushWord := func() {
		if word.Len() > 0 {
			feats = append(feats, feature{"w:" + strings.ToLower(word.String()), 1.5})
			word.Reset()
		}
	}
	for _, r := range text {
		switch {
		case isCJK(r):
			flushWord()
			feats = append(feats, feature{"u:" + string(r), 0.5})
			if prev != 0 {
				feats = append(feats, feature{"b:" + string(prev) + string(r), 1})
			}
			prev = r
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			prev = 0
			word.WriteRune(r)
		default:
			prev = 0
			flushWord()
		}
	}
	flushWord()
	return feats
}
