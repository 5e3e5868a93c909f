package retrieval

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/curator/internal/embedding"
	"github.com/hyperjump/curator/internal/models"
	"github.com/hyperjump/curator/internal/vector"
)

const testCollection = "exhibition_docs"

// fixedEmbedder maps known texts to fixed vectors; anything else gets fallback.
type fixedEmbedder struct {
	vecs     map[string][]float32
	fallback []float32
}

func (e *fixedEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := e.vecs[t]; ok {
			out[i] = v
		} else {
			out[i] = e.fallback
		}
	}
	return out, nil
}

func (e *fixedEmbedder) Dimensions() int   { return 2 }
func (e *fixedEmbedder) ModelName() string { return "fixed" }
func (e *fixedEmbedder) Close() error      { return nil }

// spyStore wraps a MemoryStore and lets tests observe and fail queries.
type spyStore struct {
	*vector.MemoryStore
	lastN    int
	queryErr error
}

type spyCollection struct {
	vector.Collection
	store *spyStore
}

func (s *spyStore) GetCollection(ctx context.Context, name string) (vector.Collection, error) {
	c, err := s.MemoryStore.GetCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	return &spyCollection{Collection: c, store: s}, nil
}

func (c *spyCollection) Query(ctx context.Context, emb []float32, n int, where vector.Where) ([]vector.Hit, error) {
	c.store.lastN = n
	if c.store.queryErr != nil {
		return nil, c.store.queryErr
	}
	return c.Collection.Query(ctx, emb, n, where)
}

type entry struct {
	id   string
	vec  []float32
	doc  string
	meta models.Metadata
}

func unit(cos float64) []float32 {
	return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos))}
}

func newTestEngine(t *testing.T, emb embedding.Embedder, entries []entry, opts ...Option) (*Engine, *spyStore) {
	t.Helper()
	mem, err := vector.NewMemoryStore("")
	require.NoError(t, err)
	store := &spyStore{MemoryStore: mem}
	mgr := embedding.NewManager(emb, store)
	ctx := context.Background()
	coll, err := mgr.GetOrCreateCollection(ctx, testCollection)
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, coll.Add(ctx, []string{e.id}, [][]float32{e.vec}, []string{e.doc}, []models.Metadata{e.meta}))
	}
	return NewEngine(mgr, testCollection, opts...), store
}

func TestEngine_SearchReranksByKeywords(t *testing.T) {
	emb := &fixedEmbedder{fallback: []float32{1, 0}}
	engine, _ := newTestEngine(t, emb, []entry{
		{"close", unit(0.9), "光影回廊：一条会回应脚步的走廊", models.Metadata{"type": "basic_info", "category": "艺术与科技"}},
		{"keyword", unit(0.6), "技术特点：RFID 感应与磁悬浮", models.Metadata{"type": "tech_info"}},
		{"far", unit(0.1), "声之森", models.Metadata{"type": "basic_info"}},
	})

	results := engine.Search(context.Background(), "RFID 磁悬浮", 3, nil)
	require.Len(t, results, 3)

	// keyword: 0.5*0.6 + 0.3 + 0.2 = 0.8; close: 0.5*0.9 + 0 + 0.2 = 0.65
	assert.Equal(t, "keyword", results[0].ID)
	assert.InDelta(t, 0.8, results[0].Relevance, 1e-4)
	assert.Equal(t, "close", results[1].ID)
	assert.InDelta(t, 0.65, results[1].Relevance, 1e-4)
	assert.InDelta(t, 0.9, results[1].Similarity, 1e-4)

	for i, r := range results {
		assert.Equal(t, i+1, r.Rank)
		assert.GreaterOrEqual(t, r.Relevance, 0.0)
		assert.LessOrEqual(t, r.Relevance, 1.0)
		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].Relevance, r.Relevance)
		}
	}
	assert.Contains(t, results[0].Explanation, "排名第1")
	assert.Contains(t, results[0].Explanation, "内容包含查询关键词")
	assert.Contains(t, results[1].Explanation, "高度相关")
	assert.Contains(t, results[1].Explanation, "类别：艺术与科技")
	assert.Equal(t, models.TierHigh, results[1].Tier)
}

func TestEngine_SearchCandidatesAndTopK(t *testing.T) {
	emb := &fixedEmbedder{fallback: []float32{1, 0}}
	var entries []entry
	for i := 0; i < 30; i++ {
		entries = append(entries, entry{
			id:   string(rune('a' + i)),
			vec:  unit(float64(i) / 30),
			doc:  "作品",
			meta: models.Metadata{"type": "basic_info"},
		})
	}
	engine, store := newTestEngine(t, emb, entries)
	ctx := context.Background()

	tests := []struct {
		topK, wantN, wantLen int
	}{
		{3, 6, 3},
		{0, 2, 1},
		{-4, 2, 1},
		{10, 20, 10},
		{15, 20, 15},
		{25, 20, 20},
	}
	for _, tt := range tests {
		results := engine.Search(ctx, "作品", tt.topK, nil)
		assert.Equal(t, tt.wantN, store.lastN, "candidates for topK=%d", tt.topK)
		assert.Len(t, results, tt.wantLen, "results for topK=%d", tt.topK)
	}
}

func TestEngine_SearchFailureDegrades(t *testing.T) {
	emb := &fixedEmbedder{fallback: []float32{1, 0}}
	engine, store := newTestEngine(t, emb, []entry{
		{"a", unit(1), "作品", models.Metadata{"type": "basic_info"}},
	})
	store.queryErr = errors.New("connection refused")
	ctx := context.Background()

	results := engine.Search(ctx, "作品", 3, nil)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	text := engine.Retrieve(ctx, "作品", 3)
	assert.True(t, strings.HasPrefix(text, RetrieveFailText), text)
	assert.Contains(t, text, "connection refused")
}

func TestEngine_Retrieve(t *testing.T) {
	emb := &fixedEmbedder{fallback: []float32{1, 0}}
	ctx := context.Background()

	empty, _ := newTestEngine(t, emb, nil)
	assert.Equal(t, NoResultsText, empty.Retrieve(ctx, "作品", 3))

	engine, _ := newTestEngine(t, emb, []entry{
		{"a", unit(1), "第一段", models.Metadata{"type": "basic_info"}},
		{"b", unit(0.5), "第二段", models.Metadata{"type": "basic_info"}},
	})
	assert.Equal(t, "第一段\n\n第二段", engine.Retrieve(ctx, "作品", 3))

	mem, err := vector.NewMemoryStore("")
	require.NoError(t, err)
	missing := NewEngine(embedding.NewManager(emb, mem), "nope")
	assert.True(t, strings.HasPrefix(missing.Retrieve(ctx, "作品", 3), RetrieveFailText))
}

func TestEngine_SpecializedSearches(t *testing.T) {
	emb := &fixedEmbedder{fallback: []float32{1, 0}}
	engine, _ := newTestEngine(t, emb, []entry{
		{"a1", unit(0.9), "A区作品", models.Metadata{"type": "basic_info", "zone": "A区", "item_name": "光影回廊"}},
		{"b1", unit(0.95), "B区作品", models.Metadata{"type": "basic_info", "zone": "B区", "item_name": "声之森"}},
		{"b2", unit(0.8), "B区另一件", models.Metadata{"type": "tech_info", "zone": "B区", "item_name": "声之森"}},
	})
	ctx := context.Background()

	results := engine.SearchByZone(ctx, "A区", 5)
	require.Len(t, results, 1)
	assert.Equal(t, "a1", results[0].ID)

	results = engine.SearchByCategory(ctx, "工业设计", 5)
	assert.Len(t, results, 3, "category search does not filter")

	results = engine.Do(ctx, &models.SearchRequest{Query: "B区", TopK: 5, By: models.SearchZone, Filter: map[string]string{"type": "tech_info"}})
	require.Len(t, results, 1)
	assert.Equal(t, "b2", results[0].ID)

	results = engine.Do(ctx, &models.SearchRequest{Query: "作品", TopK: 5, Filter: map[string]string{"zone": "B区"}})
	assert.Len(t, results, 2)
}

type stubResolver map[string]string

func (r stubResolver) Resolve(_ context.Context, name string) (string, bool, error) {
	canonical, ok := r[name]
	return canonical, ok, nil
}

func TestEngine_SearchByItemNameUsesResolver(t *testing.T) {
	emb := &fixedEmbedder{fallback: []float32{1, 0}}
	entries := []entry{
		{"x", unit(0.9), "光影回廊", models.Metadata{"type": "basic_info", "item_name": "光影回廊"}},
		{"y", unit(0.99), "声之森", models.Metadata{"type": "basic_info", "item_name": "声之森"}},
	}
	ctx := context.Background()

	plain, _ := newTestEngine(t, emb, entries)
	results := plain.SearchByItemName(ctx, "回廊", 5)
	assert.Len(t, results, 2)

	resolved, _ := newTestEngine(t, emb, entries, WithResolver(stubResolver{"回廊": "光影回廊"}))
	results = resolved.SearchByItemName(ctx, "回廊", 5)
	require.Len(t, results, 1)
	assert.Equal(t, "x", results[0].ID)

	results = resolved.SearchByItemName(ctx, "没有这件", 5)
	assert.Len(t, results, 2, "unresolved names fall back to unfiltered search")
}

func TestEngine_StatisticsCache(t *testing.T) {
	emb := &fixedEmbedder{fallback: []float32{1, 0}}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	engine, store := newTestEngine(t, emb, []entry{
		{"1", unit(1), "a", models.Metadata{"type": "basic_info", "category": "工业设计", "zone": "B区", "authors": "张三、李四"}},
		{"2", unit(1), "b", models.Metadata{"type": "tech_info", "category": "工业设计", "zone": "A区"}},
		{"3", unit(1), "c", models.Metadata{"type": "system_summary", "category": "", "zone": ""}},
	}, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	stats, err := engine.Statistics(ctx, false)
	require.NoError(t, err)
	assert.False(t, stats.FromCache)
	assert.Equal(t, 3, stats.TotalCount)
	assert.Equal(t, 3, stats.SampleSize)
	assert.Equal(t, map[string]int{"basic_info": 1, "tech_info": 1, "system_summary": 1}, stats.ByType)
	assert.Equal(t, map[string]int{"工业设计": 2}, stats.ByCategory)
	assert.Equal(t, []string{"A区", "B区"}, stats.Zones)
	assert.Equal(t, []string{"张三", "李四"}, stats.Authors)
	assert.Equal(t, now, stats.GeneratedAt)

	coll, err := store.GetCollection(ctx, testCollection)
	require.NoError(t, err)
	require.NoError(t, coll.Add(ctx, []string{"4"}, [][]float32{unit(1)}, []string{"d"}, []models.Metadata{{"type": "basic_info"}}))

	now = now.Add(299 * time.Second)
	stats, err = engine.Statistics(ctx, false)
	require.NoError(t, err)
	assert.True(t, stats.FromCache)
	assert.Equal(t, 3, stats.TotalCount)

	stats, err = engine.Statistics(ctx, true)
	require.NoError(t, err)
	assert.False(t, stats.FromCache)
	assert.Equal(t, 4, stats.TotalCount)

	now = now.Add(300 * time.Second)
	stats, err = engine.Statistics(ctx, false)
	require.NoError(t, err)
	assert.False(t, stats.FromCache, "entry older than the TTL is recomputed")

	engine.InvalidateStats()
	stats, err = engine.Statistics(ctx, false)
	require.NoError(t, err)
	assert.False(t, stats.FromCache)
}

func TestStatsSnapshot_RefreshIfStale(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	compute := func() (*models.CollectionStats, error) {
		calls++
		return &models.CollectionStats{TotalCount: calls}, nil
	}

	var snap StatsSnapshot
	snap, refreshed, err := snap.RefreshIfStale(t0, time.Minute, compute)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, t0, snap.TakenAt)

	snap, refreshed, _ = snap.RefreshIfStale(t0.Add(59*time.Second), time.Minute, compute)
	assert.False(t, refreshed)
	assert.Equal(t, 1, snap.Stats.TotalCount)

	snap, refreshed, _ = snap.RefreshIfStale(t0.Add(time.Minute), time.Minute, compute)
	assert.True(t, refreshed)
	assert.Equal(t, 2, snap.Stats.TotalCount)

	failing := func() (*models.CollectionStats, error) { return nil, errors.New("down") }
	kept, refreshed, err := snap.RefreshIfStale(t0.Add(time.Hour), time.Minute, failing)
	assert.Error(t, err)
	assert.False(t, refreshed)
	assert.Equal(t, snap, kept)
}

func TestRelevancePolicy(t *testing.T) {
	p := DefaultRelevancePolicy()
	content := strings.ToLower("技术特点：RFID 感应")

	tests := []struct {
		query       string
		wantScore   float64
		wantMatches int
	}{
		{"技术特点 RFID", 0.3, 2},
		{"RFID 声音", 0.15, 1},
		{"rfid", 0.3, 1},
		{"感应", 0, 0},
		{"", 0, 0},
	}
	for _, tt := range tests {
		score, matches := p.KeywordScore(QueryTerms(tt.query), content)
		assert.InDelta(t, tt.wantScore, score, 1e-9, tt.query)
		assert.Equal(t, tt.wantMatches, matches, tt.query)
	}

	assert.Equal(t, 1.0, p.Relevance(1, 0.3))
	assert.InDelta(t, 0.2, p.Relevance(0, 0), 1e-9)
	assert.Equal(t, 0.0, Similarity(1.4))
	assert.Equal(t, 1.0, Similarity(0))
	assert.InDelta(t, 0.25, Similarity(0.75), 1e-9)
}

func TestExplain(t *testing.T) {
	assert.Equal(t, "排名第2，比较相关（相似度 0.70）", Explain(2, 0.7, "", 0))
	assert.Equal(t, "排名第1，弱相关（相似度 0.10），类别：环境设计，内容包含查询关键词", Explain(1, 0.1, "环境设计", 1))
}
