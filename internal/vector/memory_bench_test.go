package vector

import (
	"context"
	"fmt"
	"testing"

	"github.com/hyperjump/curator/internal/models"
)

func BenchmarkMemoryCollectionQuery(b *testing.B) {
	ctx := context.Background()
	coll := newMemoryCollection("bench", nil)
	const n, dim = 1000, 384
	ids := make([]string, n)
	vecs := make([][]float32, n)
	docs := make([]string, n)
	metas := make([]models.Metadata, n)
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("c-%d", i)
		vecs[i] = make([]float32, dim)
		vecs[i][0] = float32(i) / n
		vecs[i][1] = 1
		docs[i] = "作品"
		metas[i] = models.Metadata{"type": "basic_info"}
	}
	if err := coll.Add(ctx, ids, vecs, docs, metas); err != nil {
		b.Fatal(err)
	}
	query := make([]float32, dim)
	query[0] = 1
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = coll.Query(ctx, query, 20, Where{"type": "basic_info"})
	}
}
