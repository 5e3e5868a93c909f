package vector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/curator/internal/models"
)

func seed(t *testing.T, c Collection) {
	t.Helper()
	err := c.Add(context.Background(),
		[]string{"a", "b", "c"},
		[][]float32{{1, 0, 0}, {0.9, 0.1, 0}, {0, 1, 0}},
		[]string{"doc a", "doc b", "doc c"},
		[]models.Metadata{
			{"zone": "A区", "type": "basic_info", "row": 2},
			{"zone": "B区", "type": "tech_info", "row": 3},
			{"zone": "A区", "type": "tech_info", "row": 4},
		},
	)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
}

func TestMemoryCollection_Query(t *testing.T) {
	s, _ := NewMemoryStore("")
	ctx := context.Background()
	c, _ := s.GetOrCreateCollection(ctx, "docs", map[string]interface{}{MetaSpace: SpaceCosine})
	seed(t, c)

	hits, err := c.Query(ctx, []float32{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 || hits[0].ID != "a" || hits[1].ID != "b" {
		t.Fatalf("hits = %+v", hits)
	}
	if hits[0].Distance > 1e-6 || hits[0].Document != "doc a" {
		t.Errorf("top hit = %+v", hits[0])
	}

	hits, err = c.Query(ctx, []float32{1, 0, 0}, 5, Where{"zone": "A区"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 || hits[0].ID != "a" || hits[1].ID != "c" {
		t.Errorf("filtered hits = %+v", hits)
	}
	if d := hits[1].Distance; d < 0.999 || d > 1.001 {
		t.Errorf("orthogonal distance = %v, want 1", d)
	}

	hits, _ = c.Query(ctx, []float32{1, 0, 0}, 5, Where{"zone": "A区", "type": "tech_info"})
	if len(hits) != 1 || hits[0].ID != "c" {
		t.Errorf("two-key filter hits = %+v", hits)
	}
}

func TestMemoryCollection_DimensionMismatch(t *testing.T) {
	s, _ := NewMemoryStore("")
	ctx := context.Background()
	c, _ := s.GetOrCreateCollection(ctx, "docs", nil)
	seed(t, c)
	err := c.Add(ctx, []string{"d"}, [][]float32{{1, 0}}, []string{"x"}, []models.Metadata{{}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Add err = %v", err)
	}
	if _, err := c.Query(ctx, []float32{1}, 1, nil); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Query err = %v", err)
	}
}

func TestMemoryCollection_UpsertDeleteGet(t *testing.T) {
	s, _ := NewMemoryStore("")
	ctx := context.Background()
	c, _ := s.GetOrCreateCollection(ctx, "docs", nil)
	seed(t, c)

	if err := c.Add(ctx, []string{"b"}, [][]float32{{0, 0, 1}}, []string{"doc b2"}, []models.Metadata{{"zone": "B区"}}); err != nil {
		t.Fatal(err)
	}
	if n, _ := c.Count(ctx); n != 3 {
		t.Errorf("Count after upsert = %d, want 3", n)
	}

	if err := c.Delete(ctx, Where{"zone": "A区"}); err != nil {
		t.Fatal(err)
	}
	hits, _ := c.Get(ctx, 0)
	if len(hits) != 1 || hits[0].ID != "b" || hits[0].Document != "doc b2" {
		t.Errorf("Get after delete = %+v", hits)
	}

	if err := c.Delete(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if n, _ := c.Count(ctx); n != 1 {
		t.Error("empty filter must not delete")
	}
}

func TestMemoryCollection_GetLimit(t *testing.T) {
	s, _ := NewMemoryStore("")
	c, _ := s.GetOrCreateCollection(context.Background(), "docs", nil)
	seed(t, c)
	hits, _ := c.Get(context.Background(), 2)
	if len(hits) != 2 || hits[0].ID != "a" {
		t.Errorf("hits = %+v", hits)
	}
}

func TestMemoryStore_GetOrCreateKeepsMetadata(t *testing.T) {
	s, _ := NewMemoryStore("")
	ctx := context.Background()
	if _, err := s.GetCollection(ctx, "docs"); !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("GetCollection err = %v", err)
	}
	first, _ := s.GetOrCreateCollection(ctx, "docs", map[string]interface{}{MetaDescription: "one"})
	second, _ := s.GetOrCreateCollection(ctx, "docs", map[string]interface{}{MetaDescription: "two"})
	if second.Metadata()[MetaDescription] != "one" || first != second {
		t.Errorf("metadata = %v", second.Metadata())
	}
	if err := s.DeleteCollection(ctx, "docs"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetCollection(ctx, "docs"); !errors.Is(err, ErrCollectionNotFound) {
		t.Error("collection should be gone")
	}
}

func TestMemoryStore_SnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "vectors.bin")
	ctx := context.Background()

	s, err := NewMemoryStore(path)
	if err != nil {
		t.Fatal(err)
	}
	c, _ := s.GetOrCreateCollection(ctx, "docs", map[string]interface{}{MetaSpace: SpaceCosine, MetaEmbeddingDim: 3})
	seed(t, c)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	loaded, err := NewMemoryStore(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	lc, err := loaded.GetCollection(ctx, "docs")
	if err != nil {
		t.Fatal(err)
	}
	if lc.Metadata()[MetaSpace] != SpaceCosine {
		t.Errorf("metadata = %v", lc.Metadata())
	}
	hits, err := lc.Query(ctx, []float32{0, 1, 0}, 1, Where{"row": "4"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "c" || hits[0].Metadata.Int("row") != 4 {
		t.Errorf("hits = %+v", hits)
	}
}

func TestCosineDistance(t *testing.T) {
	if d := CosineDistance([]float32{1, 0}, []float32{2, 0}); d > 1e-9 {
		t.Errorf("parallel = %v", d)
	}
	if d := CosineDistance([]float32{1, 0}, []float32{-1, 0}); d < 1.999 {
		t.Errorf("opposite = %v", d)
	}
	if d := CosineDistance([]float32{0, 0}, []float32{1, 0}); d != 1 {
		t.Errorf("zero vector = %v", d)
	}
}
