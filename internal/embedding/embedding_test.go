package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/curator/internal/vector"
)

type countingEmbedder struct {
	*HashEmbedder
	calls  []int
	failAt int
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls = append(e.calls, len(texts))
	if e.failAt > 0 && len(e.calls) == e.failAt {
		return nil, errors.New("boom")
	}
	return e.HashEmbedder.EmbedBatch(ctx, texts)
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("第%d件作品 RFID 交互装置", i)
	}
	return out
}

func TestManager_EmbedBatches(t *testing.T) {
	for _, n := range []int{0, 1, 31, 32, 33, 70} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			e := &countingEmbedder{HashEmbedder: NewHashEmbedder(64)}
			m := NewManager(e, nil)
			in := texts(n)
			vecs, err := m.Embed(context.Background(), in)
			if err != nil {
				t.Fatalf("Embed: %v", err)
			}
			if len(vecs) != n {
				t.Fatalf("got %d vectors, want %d", len(vecs), n)
			}
			for i, v := range vecs {
				if len(v) != 64 {
					t.Errorf("vector %d has %d dims", i, len(v))
				}
				if d := math.Abs(vector.L2Norm(v) - 1); d > 1e-5 {
					t.Errorf("vector %d norm off by %v", i, d)
				}
				if !reflect.DeepEqual(v, e.HashEmbedder.Embed(in[i])) {
					t.Errorf("vector %d out of order", i)
				}
			}
			for _, size := range e.calls {
				if size > DefaultBatchSize {
					t.Errorf("batch of %d exceeds %d", size, DefaultBatchSize)
				}
			}
			if want := (n + DefaultBatchSize - 1) / DefaultBatchSize; len(e.calls) != want {
				t.Errorf("%d calls, want %d", len(e.calls), want)
			}
		})
	}
}

func TestManager_EmbedFailureAbortsCall(t *testing.T) {
	e := &countingEmbedder{HashEmbedder: NewHashEmbedder(16), failAt: 2}
	m := NewManager(e, nil, WithBatchSize(10))
	vecs, err := m.Embed(context.Background(), texts(25))
	if err == nil || vecs != nil {
		t.Fatalf("Embed = %d vectors, err %v; want nil, error", len(vecs), err)
	}
	if len(e.calls) != 2 {
		t.Errorf("calls = %v, want stop after second batch", e.calls)
	}
}

func TestManager_EmbedQueryCached(t *testing.T) {
	e := &countingEmbedder{HashEmbedder: NewHashEmbedder(16)}
	m := NewManager(e, nil)
	a, err := m.EmbedQuery(context.Background(), "磁悬浮")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := m.EmbedQuery(context.Background(), "磁悬浮")
	if !reflect.DeepEqual(a, b) || len(e.calls) != 1 {
		t.Errorf("calls = %v, want one embedder call", e.calls)
	}
	if _, err := m.EmbedQuery(context.Background(), "  "); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("blank query err = %v", err)
	}
}

func TestManager_Collection(t *testing.T) {
	store, _ := vector.NewMemoryStore("")
	m := NewManager(NewHashEmbedder(32), store)
	ctx := context.Background()

	info := m.CollectionInfo(ctx, "exhibition_docs")
	if info.Status != "error" {
		t.Errorf("missing collection status = %q", info.Status)
	}

	coll, err := m.GetOrCreateCollection(ctx, "exhibition_docs")
	if err != nil {
		t.Fatal(err)
	}
	meta := coll.Metadata()
	if meta[vector.MetaSpace] != "cosine" || meta[vector.MetaEmbeddingDim] != 32 || meta[vector.MetaDescription] != CollectionDescription {
		t.Errorf("metadata = %v", meta)
	}
	if meta[vector.MetaEmbeddingModel] != "hash-bigram" {
		t.Errorf("model = %v", meta[vector.MetaEmbeddingModel])
	}

	info = m.CollectionInfo(ctx, "exhibition_docs")
	if info.Status != "ready" || info.DocumentCount != 0 || info.EmbeddingDim != 32 {
		t.Errorf("info = %+v", info)
	}
}

func TestHashEmbedder_SharedVocabularyIsCloser(t *testing.T) {
	e := NewHashEmbedder(256)
	q := e.Embed("技术特点 RFID")
	near := e.Embed("【技术特点与预期效果】 技术特点：RFID 感应")
	far := e.Embed("一条会回应脚步的走廊")
	if vector.InnerProduct(q, near) <= vector.InnerProduct(q, far) {
		t.Error("text sharing terms should be more similar")
	}
	if !reflect.DeepEqual(e.Embed("光影"), e.Embed("光影")) {
		t.Error("embedding must be deterministic")
	}
}

func TestMeanPool(t *testing.T) {
	// batch 2, seq 3, dim 2
	hidden := []float32{
		1, 2, 3, 4, 100, 100,
		5, 5, 7, 7, 9, 9,
	}
	mask := []int64{1, 1, 0, 0, 0, 0}
	got := MeanPool(hidden, mask, 2, 3, 2)
	if !reflect.DeepEqual(got[0], []float32{2, 3}) {
		t.Errorf("row 0 = %v", got[0])
	}
	if !reflect.DeepEqual(got[1], []float32{0, 0}) {
		t.Errorf("masked row = %v", got[1])
	}
}

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	NormalizeL2(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("v = %v", v)
	}
	z := []float32{0, 0}
	NormalizeL2(z)
	if z[0] != 0 || z[1] != 0 {
		t.Errorf("zero vector changed: %v", z)
	}
}

func TestLoadModelConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), []byte(`{"hidden_size": 512, "model_type": "bert"}`), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadModelConfig(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HiddenSize != 512 {
		t.Errorf("hidden_size = %d", cfg.HiddenSize)
	}
	if err := CheckModelDir(dir); err == nil {
		t.Error("expected error when model.onnx and vocab.txt are missing")
	}
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), []byte(`{}`), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadModelConfig(dir); err == nil {
		t.Error("expected error for config without hidden_size")
	}
}

func TestNewEmbedder(t *testing.T) {
	e, err := NewEmbedder(Options{Provider: ProviderHash, HashDimensions: 8})
	if err != nil || e.Dimensions() != 8 {
		t.Fatalf("hash provider = %v, %v", e, err)
	}
	if _, err := NewEmbedder(Options{Provider: "word2vec"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := NewEmbedder(Options{Provider: ProviderONNX, ONNX: ONNXConfig{ModelDir: t.TempDir()}}); err == nil {
		t.Error("expected error for empty model directory")
	}
}
