// Package ingest turns catalog spreadsheets into embedded chunks in the vector
// collection, and keeps the item catalog and run history in step with it.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/curator/internal/chunking"
	"github.com/hyperjump/curator/internal/embedding"
	"github.com/hyperjump/curator/internal/extract"
	"github.com/hyperjump/curator/internal/keyword"
	"github.com/hyperjump/curator/internal/metrics"
	"github.com/hyperjump/curator/internal/models"
	"github.com/hyperjump/curator/internal/storage"
	"github.com/hyperjump/curator/internal/synth"
	"github.com/hyperjump/curator/internal/vector"
)

// DefaultCollection is the vector collection chunks are written to.
const DefaultCollection = "exhibition_docs"

// DefaultAddBatchSize is how many chunks go to the vector store per Add call.
const DefaultAddBatchSize = 100

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("ingestion already running")

var itemNamespace = uuid.MustParse("a3e9b0c4-5d21-4f7a-8c16-2e4f9d0b7a85")

// ItemID is the stable catalog ID of the record at source/sheet/row.
func ItemID(rec *models.Record) string {
	key := rec.Source + "|" + rec.Sheet + "|" + strconv.Itoa(rec.Row)
	return uuid.NewSHA1(itemNamespace, []byte(key)).String()
}

// Pipeline runs extract, synthesize, sanitize, chunk, embed and store.
// At most one run executes at a time.
type Pipeline struct {
	manager    *embedding.Manager
	policy     *chunking.Policy
	collection string
	addBatch   int
	guideDir   string
	extractor  *extract.Extractor
	storage    storage.Storage   // optional
	index      keyword.ItemIndex // optional
	metrics    *metrics.Metrics  // optional
	logger     *zap.Logger       // optional
	hooks      []func(*models.IngestReport)
	running    atomic.Bool
	nextChunk  int // next chunk_id; guarded by running
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCollection sets the vector collection name.
func WithCollection(name string) Option {
	return func(p *Pipeline) {
		if name != "" {
			p.collection = name
		}
	}
}

// WithAddBatchSize sets how many chunks are added to the store per call.
func WithAddBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.addBatch = n
		}
	}
}

// WithGuideDir sets a directory of guide files (pdf, docx, txt, md) ingested
// as user_guide documents alongside the built-in guide.
func WithGuideDir(dir string) Option {
	return func(p *Pipeline) { p.guideDir = dir }
}

// WithStorage persists items and run reports.
func WithStorage(s storage.Storage) Option {
	return func(p *Pipeline) { p.storage = s }
}

// WithItemIndex keeps a keyword index of catalog items.
func WithItemIndex(idx keyword.ItemIndex) Option {
	return func(p *Pipeline) { p.index = idx }
}

// WithMetrics records run metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets a logger for progress and diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithHook registers fn to be called after every successful run.
func WithHook(fn func(*models.IngestReport)) Option {
	return func(p *Pipeline) { p.hooks = append(p.hooks, fn) }
}

// NewPipeline creates a pipeline writing through manager with the given chunking policy.
func NewPipeline(manager *embedding.Manager, policy *chunking.Policy, opts ...Option) *Pipeline {
	p := &Pipeline{
		manager:    manager,
		policy:     policy,
		collection: DefaultCollection,
		addBatch:   DefaultAddBatchSize,
		extractor:  extract.NewExtractor(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Collection returns the vector collection name.
func (p *Pipeline) Collection() string {
	return p.collection
}

// Discover lists the workbooks under dir, recursively and sorted. Legacy .xls
// files and Excel lock files are returned separately as skipped.
func Discover(dir string) (workbooks, skipped []string, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, nil, fmt.Errorf("stat data directory: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		switch {
		case strings.HasPrefix(name, "~$"):
			skipped = append(skipped, path)
		case extract.IsWorkbook(path):
			workbooks = append(workbooks, path)
		case strings.EqualFold(filepath.Ext(path), ".xls"):
			skipped = append(skipped, path)
		}
		return nil
	})
	sort.Strings(workbooks)
	sort.Strings(skipped)
	return workbooks, skipped, err
}

// Run ingests every workbook under dataDir. Chunks and items of sources that
// are no longer under dataDir are removed.
func (p *Pipeline) Run(ctx context.Context, dataDir string) (*models.IngestReport, error) {
	workbooks, skipped, err := Discover(dataDir)
	if err != nil {
		return nil, err
	}
	for _, s := range skipped {
		if p.logger != nil {
			p.logger.Warn("skipping unsupported spreadsheet", zap.String("path", s))
		}
	}
	return p.ingest(ctx, workbooks, skipped, true)
}

// IngestFiles ingests the given workbooks. Prior chunks of these files and
// the previous summary and guides are replaced; the new summary covers only
// the files of this call.
func (p *Pipeline) IngestFiles(ctx context.Context, paths []string) (*models.IngestReport, error) {
	abs := make([]string, 0, len(paths))
	for _, path := range paths {
		a, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("absolute path: %w", err)
		}
		abs = append(abs, a)
	}
	return p.ingest(ctx, abs, nil, false)
}

// RemoveSources deletes the chunks and catalog items of workbooks that no
// longer exist. The system summary is left as is until the next run.
func (p *Pipeline) RemoveSources(ctx context.Context, paths []string) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	defer p.running.Store(false)

	coll, err := p.manager.GetOrCreateCollection(ctx, p.collection)
	if err != nil {
		return fmt.Errorf("open collection: %w", err)
	}
	for _, path := range paths {
		src, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("absolute path: %w", err)
		}
		if err := p.removeSource(ctx, coll, src); err != nil {
			return err
		}
	}
	if err := p.manager.Flush(ctx); err != nil {
		return fmt.Errorf("flush vector store: %w", err)
	}
	return nil
}

func (p *Pipeline) removeSource(ctx context.Context, coll vector.Collection, src string) error {
	if err := coll.Delete(ctx, vector.Where{models.MetaSource: src}); err != nil {
		return fmt.Errorf("delete chunks of %s: %w", src, err)
	}
	if p.storage != nil {
		if err := p.storage.DeleteItemsBySource(ctx, src); err != nil {
			return fmt.Errorf("delete items of %s: %w", src, err)
		}
	}
	if p.index != nil {
		if err := p.index.DeleteBySource(ctx, src); err != nil {
			return fmt.Errorf("unindex items of %s: %w", src, err)
		}
	}
	if p.logger != nil {
		p.logger.Info("source removed", zap.String("path", src))
	}
	return nil
}

// ingest runs the pipeline over paths. When full is set, paths is the whole
// corpus and sources missing from it are removed.
func (p *Pipeline) ingest(ctx context.Context, paths, skipped []string, full bool) (report *models.IngestReport, err error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer p.running.Store(false)

	report = &models.IngestReport{
		RunID:            uuid.New().String(),
		StartedAt:        time.Now(),
		Files:            paths,
		SkippedFiles:     skipped,
		TypeDistribution: make(map[string]int),
	}
	if p.logger != nil {
		p.logger.Info("ingestion started", zap.String("run_id", report.RunID), zap.Int("files", len(paths)))
	}
	defer func() { p.finish(ctx, report, err) }()

	records, read, err := p.extractAll(ctx, paths, report)
	if err != nil {
		return report, err
	}
	report.Records = len(records)

	docs := synth.SynthesizeAll(records)
	docs = append(docs, synth.Guide(p.loadGuides()...)...)
	if summary := synth.Summary(docs); summary != nil {
		docs = append(docs, summary)
	}
	for _, d := range docs {
		SanitizeMetadata(d.Metadata)
	}
	report.Documents = len(docs)

	coll, err := p.manager.GetOrCreateCollection(ctx, p.collection)
	if err != nil {
		return report, fmt.Errorf("open collection: %w", err)
	}
	stored, lastChunk, err := scanCollection(ctx, coll)
	if err != nil {
		return report, err
	}
	if lastChunk >= p.nextChunk {
		p.nextChunk = lastChunk + 1
	}

	chunks, err := p.policy.ChunkFrom(docs, p.nextChunk)
	if err != nil {
		return report, fmt.Errorf("chunk documents: %w", err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vecs, err := p.manager.Embed(ctx, texts)
	if err != nil {
		return report, fmt.Errorf("embed chunks: %w", err)
	}

	if err := p.replacePrior(ctx, coll, read); err != nil {
		return report, err
	}
	if full {
		stale, err := p.staleSources(ctx, stored, paths)
		if err != nil {
			return report, err
		}
		for _, src := range stale {
			if err := p.removeSource(ctx, coll, src); err != nil {
				return report, err
			}
		}
		report.RemovedSources = stale
	}
	if err := p.addChunks(ctx, coll, chunks, vecs); err != nil {
		return report, err
	}
	p.nextChunk += len(chunks)
	if err := p.manager.Flush(ctx); err != nil {
		return report, fmt.Errorf("flush vector store: %w", err)
	}

	for _, c := range chunks {
		report.TypeDistribution[string(c.Type())]++
	}
	report.Chunks = len(chunks)

	if err := p.saveItems(ctx, records, read); err != nil {
		return report, err
	}
	if n, err := coll.Count(ctx); err == nil {
		p.metrics.SetCollectionDocuments(n)
	}
	return report, nil
}

// extractAll reads every workbook. A workbook that cannot be opened or a sheet
// that cannot be read is recorded in the report and skipped. The returned
// paths are the workbooks that were read.
func (p *Pipeline) extractAll(ctx context.Context, paths []string, report *models.IngestReport) ([]*models.Record, []string, error) {
	var records []*models.Record
	var read []string
	for _, path := range paths {
		wb, err := extract.ReadWorkbook(path, extract.WithLogger(p.logger))
		if err != nil {
			report.FailedSheets = append(report.FailedSheets, models.SheetFailure{Source: path, Error: err.Error()})
			if p.logger != nil {
				p.logger.Warn("workbook skipped", zap.String("path", path), zap.Error(err))
			}
			continue
		}
		results, err := wb.Records(ctx)
		_ = wb.Close()
		if err != nil {
			return nil, nil, err
		}
		read = append(read, path)
		for _, res := range results {
			report.Sheets++
			if res.Err != nil {
				report.FailedSheets = append(report.FailedSheets, models.SheetFailure{Source: path, Sheet: res.Sheet, Error: res.Err.Error()})
				continue
			}
			records = append(records, res.Records...)
		}
		if p.logger != nil {
			p.logger.Debug("workbook extracted", zap.String("path", path), zap.Int("sheets", len(results)))
		}
	}
	return records, read, nil
}

func (p *Pipeline) loadGuides() []synth.GuideText {
	if p.guideDir == "" {
		return nil
	}
	var guides []synth.GuideText
	err := filepath.WalkDir(p.guideDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !extract.IsGuide(path) {
			return nil
		}
		text, err := p.extractor.Extract(path)
		if err != nil {
			if p.logger != nil {
				p.logger.Warn("guide skipped", zap.String("path", path), zap.Error(err))
			}
			return nil
		}
		guides = append(guides, synth.GuideText{Source: path, Content: text})
		return nil
	})
	if err != nil && p.logger != nil {
		p.logger.Warn("reading guide directory failed", zap.String("dir", p.guideDir), zap.Error(err))
	}
	return guides
}

// scanCollection returns the sources of the catalog chunks in coll and the
// highest chunk_id stored, or -1 when coll is empty.
func scanCollection(ctx context.Context, coll vector.Collection) (map[string]bool, int, error) {
	hits, err := coll.Get(ctx, 0)
	if err != nil {
		return nil, 0, fmt.Errorf("read collection: %w", err)
	}
	sources := make(map[string]bool)
	last := -1
	for _, h := range hits {
		if _, ok := h.Metadata[models.MetaChunkID]; ok {
			if id := h.Metadata.Int(models.MetaChunkID); id > last {
				last = id
			}
		}
		switch models.DocType(h.Metadata.String(models.MetaType)) {
		case models.DocSystemSummary, models.DocUserGuide:
			continue
		}
		if src := h.Metadata.String(models.MetaSource); src != "" {
			sources[src] = true
		}
	}
	return sources, last, nil
}

// staleSources lists the sources known to the collection or the item store
// that are not in current.
func (p *Pipeline) staleSources(ctx context.Context, stored map[string]bool, current []string) ([]string, error) {
	known := make(map[string]bool, len(stored))
	for src := range stored {
		known[src] = true
	}
	if p.storage != nil {
		srcs, err := p.storage.ListSources(ctx)
		if err != nil {
			return nil, fmt.Errorf("list item sources: %w", err)
		}
		for _, src := range srcs {
			known[src] = true
		}
	}
	for _, src := range current {
		delete(known, src)
	}
	stale := make([]string, 0, len(known))
	for src := range known {
		stale = append(stale, src)
	}
	sort.Strings(stale)
	return stale, nil
}

// replacePrior deletes the chunks of each re-read source and the previous
// corpus-level documents.
func (p *Pipeline) replacePrior(ctx context.Context, coll vector.Collection, sources []string) error {
	for _, src := range sources {
		if err := coll.Delete(ctx, vector.Where{models.MetaSource: src}); err != nil {
			return fmt.Errorf("delete prior chunks of %s: %w", src, err)
		}
	}
	for _, t := range []models.DocType{models.DocSystemSummary, models.DocUserGuide} {
		if err := coll.Delete(ctx, vector.Where{models.MetaType: string(t)}); err != nil {
			return fmt.Errorf("delete prior %s chunks: %w", t, err)
		}
	}
	return nil
}

func (p *Pipeline) addChunks(ctx context.Context, coll vector.Collection, chunks []*models.Chunk, vecs [][]float32) error {
	for start := 0; start < len(chunks); start += p.addBatch {
		end := start + p.addBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		ids := make([]string, len(batch))
		docs := make([]string, len(batch))
		metas := make([]models.Metadata, len(batch))
		for i, c := range batch {
			ids[i] = c.ID
			docs[i] = c.Content
			metas[i] = c.Metadata
		}
		if err := coll.Add(ctx, ids, vecs[start:end], docs, metas); err != nil {
			return fmt.Errorf("add chunks %d-%d: %w", start, end-1, err)
		}
		if p.logger != nil {
			p.logger.Debug("chunks stored", zap.Int("done", end), zap.Int("total", len(chunks)))
		}
	}
	return nil
}

func (p *Pipeline) saveItems(ctx context.Context, records []*models.Record, sources []string) error {
	if p.storage == nil && p.index == nil {
		return nil
	}
	items := make([]*models.Item, len(records))
	for i, rec := range records {
		items[i] = models.ItemFromRecord(ItemID(rec), rec)
	}
	if p.storage != nil {
		for _, src := range sources {
			if err := p.storage.DeleteItemsBySource(ctx, src); err != nil {
				return fmt.Errorf("delete prior items of %s: %w", src, err)
			}
		}
		if err := p.storage.UpsertItems(ctx, items); err != nil {
			return fmt.Errorf("save items: %w", err)
		}
	}
	if p.index != nil {
		for _, src := range sources {
			if err := p.index.DeleteBySource(ctx, src); err != nil {
				return fmt.Errorf("unindex prior items of %s: %w", src, err)
			}
		}
		if err := p.index.IndexItems(ctx, items); err != nil {
			return fmt.Errorf("index items: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) finish(ctx context.Context, report *models.IngestReport, err error) {
	report.FinishedAt = time.Now()
	report.Status = models.RunStatusSucceeded
	if err != nil {
		report.Status = models.RunStatusFailed
		report.Error = err.Error()
	}
	if p.storage != nil {
		if saveErr := p.storage.SaveRun(context.WithoutCancel(ctx), report); saveErr != nil && p.logger != nil {
			p.logger.Warn("saving run report failed", zap.String("run_id", report.RunID), zap.Error(saveErr))
		}
	}
	p.metrics.RecordIngest(report.Status, report.FinishedAt.Sub(report.StartedAt), report.Records, len(report.FailedSheets), report.TypeDistribution)

	if p.logger != nil {
		fields := []zap.Field{
			zap.String("run_id", report.RunID),
			zap.String("status", report.Status),
			zap.Int("records", report.Records),
			zap.Int("documents", report.Documents),
			zap.Int("chunks", report.Chunks),
			zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
		}
		if err != nil {
			p.logger.Error("ingestion failed", append(fields, zap.Error(err))...)
		} else {
			p.logger.Info("ingestion finished", fields...)
		}
	}
	if err == nil {
		for _, fn := range p.hooks {
			fn(report)
		}
	}
}
