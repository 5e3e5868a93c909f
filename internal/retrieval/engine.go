// Package retrieval answers catalog queries: vector search with oversampling,
// keyword-aware re-ranking, explanations and cached collection statistics.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/curator/internal/embedding"
	"github.com/hyperjump/curator/internal/metrics"
	"github.com/hyperjump/curator/internal/models"
	"github.com/hyperjump/curator/internal/vector"
)

// DefaultMaxCandidates caps how many neighbours are fetched before re-ranking.
const DefaultMaxCandidates = 20

// Texts returned by Retrieve.
const (
	NoResultsText    = "未找到相关作品"
	RetrieveFailText = "检索失败: "
)

// ItemResolver maps a possibly partial item name to its canonical form.
type ItemResolver interface {
	Resolve(ctx context.Context, name string) (string, bool, error)
}

// Engine runs retrieval over one vector collection.
type Engine struct {
	manager       *embedding.Manager
	collection    string
	policy        RelevancePolicy
	maxCandidates int
	resolver      ItemResolver     // optional
	metrics       *metrics.Metrics // optional
	logger        *zap.Logger      // optional
	statsTTL      time.Duration
	now           func() time.Time

	mu    sync.Mutex
	stats StatsSnapshot
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy sets the relevance weights.
func WithPolicy(p RelevancePolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithMaxCandidates sets the candidate cap.
func WithMaxCandidates(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxCandidates = n
		}
	}
}

// WithResolver lets item-name searches resolve names and filter on them.
func WithResolver(r ItemResolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithMetrics records search metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithStatsTTL sets how long statistics are cached.
func WithStatsTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.statsTTL = ttl
		}
	}
}

// WithClock replaces time.Now for statistics caching.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine searching the named collection through manager.
func NewEngine(manager *embedding.Manager, collection string, opts ...Option) *Engine {
	e := &Engine{
		manager:       manager,
		collection:    collection,
		policy:        DefaultRelevancePolicy(),
		maxCandidates: DefaultMaxCandidates,
		statsTTL:      DefaultStatsTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search returns up to topK results ordered by relevance. Failures are logged
// and yield no results.
func (e *Engine) Search(ctx context.Context, query string, topK int, where vector.Where) []*models.RetrievalResult {
	return e.searchLogged(ctx, models.SearchGeneral, query, topK, where)
}

// SearchByZone searches within one exhibition zone.
func (e *Engine) SearchByZone(ctx context.Context, zone string, topK int) []*models.RetrievalResult {
	return e.searchLogged(ctx, models.SearchZone, composeQuery(models.SearchZone, zone), topK, vector.Where{models.MetaZone: zone})
}

// SearchByCategory searches for works of a category.
func (e *Engine) SearchByCategory(ctx context.Context, category string, topK int) []*models.RetrievalResult {
	return e.searchLogged(ctx, models.SearchCategory, composeQuery(models.SearchCategory, category), topK, nil)
}

// SearchByAuthor searches for works by an author.
func (e *Engine) SearchByAuthor(ctx context.Context, author string, topK int) []*models.RetrievalResult {
	return e.searchLogged(ctx, models.SearchAuthor, composeQuery(models.SearchAuthor, author), topK, nil)
}

// SearchByTechnique searches for works using a technique.
func (e *Engine) SearchByTechnique(ctx context.Context, technique string, topK int) []*models.RetrievalResult {
	return e.searchLogged(ctx, models.SearchTechnique, composeQuery(models.SearchTechnique, technique), topK, nil)
}

// SearchByItemName searches for a work by name. With a resolver, a resolved
// name is searched in canonical form and restricted to that item.
func (e *Engine) SearchByItemName(ctx context.Context, name string, topK int) []*models.RetrievalResult {
	var where vector.Where
	if e.resolver != nil {
		canonical, ok, err := e.resolver.Resolve(ctx, name)
		switch {
		case err != nil:
			if e.logger != nil {
				e.logger.Warn("item name resolution failed", zap.String("name", name), zap.Error(err))
			}
		case ok:
			name = canonical
			where = vector.Where{models.MetaItemName: canonical}
		}
	}
	return e.searchLogged(ctx, models.SearchItemName, composeQuery(models.SearchItemName, name), topK, where)
}

// Do runs a validated request, dispatching on its kind. Request filters are
// added to the kind's own filter.
func (e *Engine) Do(ctx context.Context, req *models.SearchRequest) []*models.RetrievalResult {
	if req.By == models.SearchItemName && len(req.Filter) == 0 {
		return e.SearchByItemName(ctx, req.Query, req.TopK)
	}
	where := vector.Where{}
	if req.By == models.SearchZone {
		where[models.MetaZone] = req.Query
	}
	for k, v := range req.Filter {
		where[k] = v
	}
	if len(where) == 0 {
		where = nil
	}
	return e.searchLogged(ctx, req.By, composeQuery(req.By, req.Query), req.TopK, where)
}

func composeQuery(kind models.SearchKind, q string) string {
	switch kind {
	case models.SearchZone:
		return q + " 展区作品"
	case models.SearchCategory:
		return q + "类作品"
	case models.SearchAuthor:
		return "设计作者 " + q
	case models.SearchTechnique:
		return "技术特点 " + q
	case models.SearchItemName:
		return "作品名称 " + q
	default:
		return q
	}
}

// Retrieve returns the contents of the top results joined by blank lines, for
// answer generation.
func (e *Engine) Retrieve(ctx context.Context, query string, topK int) string {
	start := time.Now()
	results, err := e.search(ctx, query, topK, nil)
	e.metrics.RecordSearch("retrieve", time.Since(start), err != nil)
	if err != nil {
		if e.logger != nil {
			e.logger.Error("retrieve failed", zap.String("query", query), zap.Error(err))
		}
		return RetrieveFailText + err.Error()
	}
	if len(results) == 0 {
		return NoResultsText
	}
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Content
	}
	return strings.Join(parts, "\n\n")
}

func (e *Engine) searchLogged(ctx context.Context, kind models.SearchKind, query string, topK int, where vector.Where) []*models.RetrievalResult {
	start := time.Now()
	results, err := e.search(ctx, query, topK, where)
	e.metrics.RecordSearch(string(kind), time.Since(start), err != nil)
	if err != nil {
		if e.logger != nil {
			e.logger.Error("search failed", zap.String("query", query), zap.String("kind", string(kind)), zap.Error(err))
		}
		return []*models.RetrievalResult{}
	}
	if e.logger != nil {
		e.logger.Debug("search",
			zap.String("query", query),
			zap.String("kind", string(kind)),
			zap.Int("results", len(results)),
			zap.Duration("took", time.Since(start)))
	}
	return results
}

func (e *Engine) search(ctx context.Context, query string, topK int, where vector.Where) ([]*models.RetrievalResult, error) {
	if topK < 1 {
		topK = 1
	}
	vec, err := e.manager.EmbedQuery(ctx, query)
	if errors.Is(err, embedding.ErrEmptyInput) {
		return []*models.RetrievalResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	coll, err := e.manager.Collection(ctx, e.collection)
	if err != nil {
		return nil, err
	}
	n := 2 * topK
	if n > e.maxCandidates {
		n = e.maxCandidates
	}
	hits, err := coll.Query(ctx, vec, n, where)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", e.collection, err)
	}

	terms := QueryTerms(query)
	type scored struct {
		result  *models.RetrievalResult
		matches int
	}
	candidates := make([]scored, len(hits))
	for i, h := range hits {
		s := Similarity(h.Distance)
		kw, matches := e.policy.KeywordScore(terms, strings.ToLower(h.Document))
		candidates[i] = scored{
			result: &models.RetrievalResult{
				ID:         h.ID,
				Content:    h.Document,
				Metadata:   h.Metadata,
				Similarity: s,
				Relevance:  e.policy.Relevance(s, kw),
				Tier:       models.TierFor(s),
			},
			matches: matches,
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].result.Relevance > candidates[j].result.Relevance
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]*models.RetrievalResult, len(candidates))
	for i, c := range candidates {
		r := c.result
		r.Rank = i + 1
		r.Explanation = Explain(r.Rank, r.Similarity, r.Metadata.String(models.MetaCategory), c.matches)
		results[i] = r
	}
	return results, nil
}

// Statistics summarizes a sample of the collection. Results are cached for the
// stats TTL unless forceRefresh is set.
func (e *Engine) Statistics(ctx context.Context, forceRefresh bool) (*models.CollectionStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := e.stats
	if forceRefresh {
		snap = StatsSnapshot{}
	}
	next, refreshed, err := snap.RefreshIfStale(e.now(), e.statsTTL, func() (*models.CollectionStats, error) {
		coll, err := e.manager.Collection(ctx, e.collection)
		if err != nil {
			return nil, err
		}
		total, err := coll.Count(ctx)
		if err != nil {
			return nil, err
		}
		sample, err := coll.Get(ctx, StatsSampleSize)
		if err != nil {
			return nil, err
		}
		return computeStats(total, sample), nil
	})
	if err != nil {
		return nil, fmt.Errorf("collection statistics: %w", err)
	}
	e.stats = next
	e.metrics.RecordStatsCache(!refreshed)
	if refreshed {
		e.metrics.SetCollectionDocuments(next.Stats.TotalCount)
	}

	out := *next.Stats
	out.FromCache = !refreshed
	return &out, nil
}

// InvalidateStats drops cached statistics.
func (e *Engine) InvalidateStats() {
	e.mu.Lock()
	e.stats = StatsSnapshot{}
	e.mu.Unlock()
}

// CollectionInfo describes the engine's collection.
func (e *Engine) CollectionInfo(ctx context.Context) *models.CollectionInfo {
	return e.manager.CollectionInfo(ctx, e.collection)
}
