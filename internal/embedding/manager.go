package embedding

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/curator/internal/models"
	"github.com/hyperjump/curator/internal/vector"
)

// CollectionDescription is recorded on collections the manager creates.
const CollectionDescription = "艺术与科技展览作品数据库"

// Manager batches embedding calls, caches query vectors and owns the
// configuration of the vector collection.
type Manager struct {
	embedder  Embedder
	store     vector.Store
	batchSize int
	cache     *EmbeddingCache
	logger    *zap.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithBatchSize sets how many texts go to the embedder per call.
func WithBatchSize(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// WithQueryCache sets the capacity of the query embedding cache.
func WithQueryCache(capacity int) ManagerOption {
	return func(m *Manager) {
		m.cache = NewEmbeddingCache(capacity)
	}
}

// WithManagerLogger sets the logger.
func WithManagerLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager returns a manager over embedder and store.
func NewManager(embedder Embedder, store vector.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		embedder:  embedder,
		store:     store,
		batchSize: DefaultBatchSize,
		cache:     NewEmbeddingCache(1000),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dimensions returns the embedder's vector size.
func (m *Manager) Dimensions() int {
	return m.embedder.Dimensions()
}

// ModelName returns the embedder's model name.
func (m *Manager) ModelName() string {
	return m.embedder.ModelName()
}

// Embed embeds texts in sequential batches and returns one vector per text in
// input order. If any batch fails no vectors are returned.
func (m *Manager) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += m.batchSize {
		end := start + m.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := m.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end-1, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embed batch %d-%d: got %d vectors for %d texts", start, end-1, len(vecs), end-start)
		}
		out = append(out, vecs...)
		if m.logger != nil {
			m.logger.Debug("embedded batch", zap.Int("start", start), zap.Int("size", end-start), zap.Int("total", len(texts)))
		}
	}
	return out, nil
}

// EmbedQuery embeds a single query, serving repeats from the cache.
func (m *Manager) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyInput
	}
	if v, ok := m.cache.Get(query); ok {
		return v, nil
	}
	vecs, err := m.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	m.cache.Set(query, vecs[0])
	return vecs[0], nil
}

// CollectionMetadata is the metadata new collections are created with.
func (m *Manager) CollectionMetadata() map[string]interface{} {
	return map[string]interface{}{
		vector.MetaSpace:          vector.SpaceCosine,
		vector.MetaDescription:    CollectionDescription,
		vector.MetaEmbeddingModel: m.embedder.ModelName(),
		vector.MetaEmbeddingDim:   m.embedder.Dimensions(),
	}
}

// GetOrCreateCollection returns the named collection, creating it for cosine
// distance with the embedder's model and dimension recorded in its metadata.
func (m *Manager) GetOrCreateCollection(ctx context.Context, name string) (vector.Collection, error) {
	coll, err := m.store.GetOrCreateCollection(ctx, name, m.CollectionMetadata())
	if err != nil {
		return nil, err
	}
	if m.logger != nil {
		if dim := models.Metadata(coll.Metadata()).Int(vector.MetaEmbeddingDim); dim != 0 && dim != m.Dimensions() {
			m.logger.Warn("collection was created with a different embedding dimension",
				zap.String("collection", name), zap.Int("collection_dim", dim), zap.Int("embedder_dim", m.Dimensions()))
		}
	}
	return coll, nil
}

// CollectionInfo describes the named collection. Failures are reported in the
// returned value rather than as an error.
func (m *Manager) CollectionInfo(ctx context.Context, name string) *models.CollectionInfo {
	info := &models.CollectionInfo{Name: name, EmbeddingDim: m.Dimensions()}
	coll, err := m.store.GetCollection(ctx, name)
	if err != nil {
		info.Status = "error"
		info.Error = err.Error()
		return info
	}
	n, err := coll.Count(ctx)
	if err != nil {
		info.Status = "error"
		info.Error = err.Error()
		return info
	}
	info.DocumentCount = n
	info.Metadata = coll.Metadata()
	info.Status = "ready"
	return info
}

// Flush persists pending vector store writes.
func (m *Manager) Flush(ctx context.Context) error {
	return m.store.Flush(ctx)
}

// Collection returns the named collection without creating it.
func (m *Manager) Collection(ctx context.Context, name string) (vector.Collection, error) {
	return m.store.GetCollection(ctx, name)
}
