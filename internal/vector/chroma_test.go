package vector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/curator/internal/models"
)

type stubTextEmbedder struct {
	calls [][]string
	err   error
}

func (e *stubTextEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.calls = append(e.calls, texts)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i + 1), 0}
	}
	return out, nil
}

const collectionsPath = "/api/v2/tenants/default_tenant/databases/default_database/collections/"

func newChromaServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case collectionsPath + "exhibition_docs":
			_, _ = w.Write([]byte(`{"id":"8ecf0f7e-1f4b-4b8e-9d0a-2a4f3c1d2e10","name":"exhibition_docs","metadata":{"hnsw:space":"cosine"}}`))
		case collectionsPath + "broken":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"InternalError","message":"disk full"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"NotFoundError","message":"collection does not exist"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewChromaStore_RequiresEmbedder(t *testing.T) {
	if _, err := NewChromaStore("http://localhost:8000", nil); err == nil {
		t.Fatal("expected error without an embedder")
	}
	if _, err := NewStore(Options{Backend: "chroma"}); err == nil {
		t.Fatal("expected NewStore(chroma) to require an embedder")
	}
}

func TestChromaStore_GetCollection(t *testing.T) {
	srv := newChromaServer(t)
	s, err := NewChromaStore(srv.URL, &stubTextEmbedder{})
	if err != nil {
		t.Fatalf("NewChromaStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	coll, err := s.GetCollection(ctx, "exhibition_docs")
	if err != nil {
		t.Fatalf("GetCollection: %v", err)
	}
	if coll.Name() != "exhibition_docs" {
		t.Errorf("Name = %q", coll.Name())
	}
	if got := coll.Metadata()[MetaSpace]; got != SpaceCosine {
		t.Errorf("metadata %s = %v, want %s", MetaSpace, got, SpaceCosine)
	}

	_, err = s.GetCollection(ctx, "missing")
	if !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("missing collection: err = %v, want ErrCollectionNotFound", err)
	}

	_, err = s.GetCollection(ctx, "broken")
	if err == nil || errors.Is(err, ErrCollectionNotFound) {
		t.Fatalf("server failure: err = %v, want a non-not-found error", err)
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("server failure should keep its cause: %v", err)
	}
}

func TestEmbeddingFunction(t *testing.T) {
	emb := &stubTextEmbedder{}
	ef := &embeddingFunction{emb: emb}
	ctx := context.Background()

	docs, err := ef.EmbedDocuments(ctx, []string{"光影回廊", "声之森"})
	if err != nil {
		t.Fatalf("EmbedDocuments: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d embeddings, want 2", len(docs))
	}
	if got := docs[1].ContentAsFloat32(); !reflect.DeepEqual(got, []float32{2, 0}) {
		t.Errorf("second embedding = %v", got)
	}

	q, err := ef.EmbedQuery(ctx, "RFID")
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	if got := q.ContentAsFloat32(); !reflect.DeepEqual(got, []float32{1, 0}) {
		t.Errorf("query embedding = %v", got)
	}
	if !reflect.DeepEqual(emb.calls[1], []string{"RFID"}) {
		t.Errorf("query call = %v", emb.calls[1])
	}

	emb.err = errors.New("model failed")
	if _, err := ef.EmbedQuery(ctx, "x"); err == nil {
		t.Error("expected embedder error to propagate")
	}
}

func decodeJSON(t *testing.T, v interface{ MarshalJSON() ([]byte, error) }) interface{} {
	t.Helper()
	b, err := v.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	return out
}

func TestWhereClause(t *testing.T) {
	if whereClause(nil) != nil || whereClause(Where{}) != nil {
		t.Error("empty filter should produce no clause")
	}

	single := decodeJSON(t, whereClause(Where{"zone": "A区"}))
	want := map[string]interface{}{"zone": map[string]interface{}{"$eq": "A区"}}
	if !reflect.DeepEqual(single, want) {
		t.Errorf("single clause = %v, want %v", single, want)
	}

	multi := decodeJSON(t, whereClause(Where{"zone": "A区", "type": "tech_info"}))
	wantMulti := map[string]interface{}{"$and": []interface{}{
		map[string]interface{}{"type": map[string]interface{}{"$eq": "tech_info"}},
		map[string]interface{}{"zone": map[string]interface{}{"$eq": "A区"}},
	}}
	if !reflect.DeepEqual(multi, wantMulti) {
		t.Errorf("multi clause = %v, want %v", multi, wantMulti)
	}
}

func TestAttribute(t *testing.T) {
	for _, v := range []interface{}{"A区", true, 3, int64(4), float32(0.5), 0.25} {
		if attribute("k", v) == nil {
			t.Errorf("attribute(%T) = nil, want attribute", v)
		}
	}
	for _, v := range []interface{}{nil, []string{"a"}, map[string]string{}, struct{}{}} {
		if attribute("k", v) != nil {
			t.Errorf("attribute(%T) should be dropped", v)
		}
	}
}

func TestDocumentMetadataToMap(t *testing.T) {
	meta := models.Metadata{
		"item_name": "光影回廊",
		"row":       3,
		"featured":  true,
		"score":     0.5,
		"tags":      []string{"dropped"},
	}
	got := toMap(documentMetadata(meta))
	want := map[string]interface{}{
		"item_name": "光影回廊",
		"row":       float64(3),
		"featured":  true,
		"score":     0.5,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("toMap(documentMetadata) = %v, want %v", got, want)
	}

	if m := toMap(nil); m == nil || len(m) != 0 {
		t.Errorf("toMap(nil) = %v, want empty map", m)
	}
	coll := toMap(collectionMetadata(map[string]interface{}{MetaSpace: SpaceCosine, MetaEmbeddingDim: 768}))
	if coll[MetaSpace] != SpaceCosine || coll[MetaEmbeddingDim] != float64(768) {
		t.Errorf("collection metadata = %v", coll)
	}
}
