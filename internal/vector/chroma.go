package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	chhttp "github.com/amikos-tech/chroma-go/pkg/commons/http"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"

	"github.com/hyperjump/curator/internal/models"
)

// TextEmbedder embeds texts in input order. embedding.Embedder satisfies it.
type TextEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChromaStore is a Store backed by a Chroma server over its v2 HTTP API.
type ChromaStore struct {
	client chromago.Client
	ef     embeddings.EmbeddingFunction
}

// NewChromaStore connects to the Chroma server at baseURL. emb backs the
// embedding function attached to every collection handle.
func NewChromaStore(baseURL string, emb TextEmbedder) (*ChromaStore, error) {
	if emb == nil {
		return nil, errors.New("create chroma store: embedder is required")
	}
	opts := []chromago.ClientOption{}
	if baseURL != "" {
		opts = append(opts, chromago.WithBaseURL(baseURL))
	}
	client, err := chromago.NewHTTPClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create chroma client: %w", err)
	}
	return &ChromaStore{client: client, ef: &embeddingFunction{emb: emb}}, nil
}

// GetOrCreateCollection implements Store.
func (s *ChromaStore) GetOrCreateCollection(ctx context.Context, name string, metadata map[string]interface{}) (Collection, error) {
	coll, err := s.client.GetOrCreateCollection(ctx, name,
		chromago.WithCollectionMetadataCreate(collectionMetadata(metadata)),
		chromago.WithEmbeddingFunctionCreate(s.ef),
	)
	if err != nil {
		return nil, fmt.Errorf("get or create collection %s: %w", name, err)
	}
	return &chromaCollection{coll: coll}, nil
}

// GetCollection implements Store. Only a 404 from the server maps to
// ErrCollectionNotFound.
func (s *ChromaStore) GetCollection(ctx context.Context, name string) (Collection, error) {
	coll, err := s.client.GetCollection(ctx, name, chromago.WithEmbeddingFunctionGet(s.ef))
	if err != nil {
		var chErr *chhttp.ChromaError
		if errors.As(err, &chErr) && chErr.ErrorCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
		}
		return nil, fmt.Errorf("get collection %s: %w", name, err)
	}
	return &chromaCollection{coll: coll}, nil
}

// DeleteCollection implements Store.
func (s *ChromaStore) DeleteCollection(ctx context.Context, name string) error {
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	return nil
}

// Flush is a no-op; the server persists writes itself.
func (s *ChromaStore) Flush(context.Context) error { return nil }

// Close releases the client.
func (s *ChromaStore) Close() error {
	return s.client.Close()
}

type chromaCollection struct {
	coll chromago.Collection
}

func (c *chromaCollection) Name() string { return c.coll.Name() }

func (c *chromaCollection) Metadata() map[string]interface{} {
	return toMap(c.coll.Metadata())
}

func (c *chromaCollection) Add(ctx context.Context, ids []string, vecs [][]float32, documents []string, metadatas []models.Metadata) error {
	if len(vecs) != len(ids) || len(documents) != len(ids) || len(metadatas) != len(ids) {
		return fmt.Errorf("add to %s: ids, embeddings, documents and metadatas length mismatch", c.Name())
	}
	if len(ids) == 0 {
		return nil
	}
	docIDs := make([]chromago.DocumentID, len(ids))
	embs := make([]embeddings.Embedding, len(ids))
	metas := make([]chromago.DocumentMetadata, len(ids))
	for i := range ids {
		docIDs[i] = chromago.DocumentID(ids[i])
		embs[i] = embeddings.NewEmbeddingFromFloat32(vecs[i])
		metas[i] = documentMetadata(metadatas[i])
	}
	err := c.coll.Upsert(ctx,
		chromago.WithIDs(docIDs...),
		chromago.WithTexts(documents...),
		chromago.WithEmbeddings(embs...),
		chromago.WithMetadatas(metas...),
	)
	if err != nil {
		return fmt.Errorf("add %d entries to %s: %w", len(ids), c.Name(), err)
	}
	return nil
}

func (c *chromaCollection) Query(ctx context.Context, embedding []float32, n int, where Where) ([]Hit, error) {
	if n <= 0 {
		return nil, nil
	}
	opts := []chromago.CollectionQueryOption{
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(embedding)),
		chromago.WithNResults(n),
	}
	if clause := whereClause(where); clause != nil {
		opts = append(opts, chromago.WithWhereQuery(clause))
	}
	res, err := c.coll.Query(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.Name(), err)
	}
	idGroups := res.GetIDGroups()
	if len(idGroups) == 0 {
		return nil, nil
	}
	docGroups := res.GetDocumentsGroups()
	metaGroups := res.GetMetadatasGroups()
	distGroups := res.GetDistancesGroups()
	hits := make([]Hit, len(idGroups[0]))
	for i, id := range idGroups[0] {
		hits[i].ID = string(id)
		if len(docGroups) > 0 && i < len(docGroups[0]) {
			hits[i].Document = docGroups[0][i].ContentString()
		}
		if len(metaGroups) > 0 && i < len(metaGroups[0]) {
			hits[i].Metadata = toMap(metaGroups[0][i])
		}
		if len(distGroups) > 0 && i < len(distGroups[0]) {
			hits[i].Distance = float64(distGroups[0][i])
		}
	}
	return hits, nil
}

func (c *chromaCollection) Get(ctx context.Context, limit int) ([]Hit, error) {
	opts := []chromago.CollectionGetOption{}
	if limit > 0 {
		opts = append(opts, chromago.WithLimitGet(limit))
	}
	res, err := c.coll.Get(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("get from %s: %w", c.Name(), err)
	}
	ids := res.GetIDs()
	docs := res.GetDocuments()
	metas := res.GetMetadatas()
	hits := make([]Hit, len(ids))
	for i, id := range ids {
		hits[i].ID = string(id)
		if i < len(docs) {
			hits[i].Document = docs[i].ContentString()
		}
		if i < len(metas) {
			hits[i].Metadata = toMap(metas[i])
		}
	}
	return hits, nil
}

func (c *chromaCollection) Count(ctx context.Context) (int, error) {
	n, err := c.coll.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.Name(), err)
	}
	return n, nil
}

func (c *chromaCollection) Delete(ctx context.Context, where Where) error {
	clause := whereClause(where)
	if clause == nil {
		return nil
	}
	if err := c.coll.Delete(ctx, chromago.WithWhereDelete(clause)); err != nil {
		return fmt.Errorf("delete from %s: %w", c.Name(), err)
	}
	return nil
}

// embeddingFunction adapts a TextEmbedder to Chroma's embedding function.
type embeddingFunction struct {
	emb TextEmbedder
}

func (f *embeddingFunction) EmbedDocuments(ctx context.Context, texts []string) ([]embeddings.Embedding, error) {
	vecs, err := f.emb.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([]embeddings.Embedding, len(vecs))
	for i, v := range vecs {
		out[i] = embeddings.NewEmbeddingFromFloat32(v)
	}
	return out, nil
}

func (f *embeddingFunction) EmbedQuery(ctx context.Context, text string) (embeddings.Embedding, error) {
	vecs, err := f.emb.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors, want 1", len(vecs))
	}
	return embeddings.NewEmbeddingFromFloat32(vecs[0]), nil
}

func whereClause(w Where) chromago.WhereClause {
	if len(w) == 0 {
		return nil
	}
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	clauses := make([]chromago.WhereClause, len(keys))
	for i, k := range keys {
		clauses[i] = chromago.EqString(k, w[k])
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return chromago.And(clauses...)
}

func collectionMetadata(m map[string]interface{}) chromago.CollectionMetadata {
	attrs := make([]*chromago.MetaAttribute, 0, len(m))
	for k, v := range m {
		if a := attribute(k, v); a != nil {
			attrs = append(attrs, a)
		}
	}
	return chromago.NewMetadata(attrs...)
}

func documentMetadata(m models.Metadata) chromago.DocumentMetadata {
	attrs := make([]*chromago.MetaAttribute, 0, len(m))
	for k, v := range m {
		if a := attribute(k, v); a != nil {
			attrs = append(attrs, a)
		}
	}
	return chromago.NewDocumentMetadata(attrs...)
}

// attribute converts a primitive to a Chroma attribute. Other types are dropped.
func attribute(k string, v interface{}) *chromago.MetaAttribute {
	switch x := v.(type) {
	case string:
		return chromago.NewStringAttribute(k, x)
	case bool:
		return chromago.NewBoolAttribute(k, x)
	case int:
		return chromago.NewIntAttribute(k, int64(x))
	case int64:
		return chromago.NewIntAttribute(k, x)
	case float32:
		return chromago.NewFloatAttribute(k, float64(x))
	case float64:
		return chromago.NewFloatAttribute(k, x)
	default:
		return nil
	}
}

// toMap converts Chroma metadata to a plain map through its JSON form.
func toMap(v interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	if v == nil {
		return out
	}
	data, err := json.Marshal(v)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(data, &out)
	return out
}
