package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/curator/internal/models"
)

// resolveCandidates bounds how many hits Resolve compares by edit distance.
const resolveCandidates = 10

var searchFields = []struct {
	name  string
	boost float64
}{
	{"name", 3},
	{"authors", 1},
	{"technique", 1},
}

// BleveIndex implements ItemIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// itemDoc is the indexed form of a catalog item.
type itemDoc struct {
	Name      string `json:"name"`
	NameExact string `json:"name_exact"`
	Zone      string `json:"zone"`
	Category  string `json:"category"`
	Source    string `json:"source"`
	Authors   string `json:"authors"`
	Technique string `json:"technique"`
}

func newItemMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	// The standard analyzer emits one token per CJK ideograph, so partial
	// Chinese names still match.
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("name", text)
	docMapping.AddFieldMappingsAt("authors", text)
	docMapping.AddFieldMappingsAt("technique", text)
	exact := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("name_exact", exact)
	docMapping.AddFieldMappingsAt("zone", exact)
	docMapping.AddFieldMappingsAt("category", exact)
	docMapping.AddFieldMappingsAt("source", exact)
	im.AddDocumentMapping("item", docMapping)
	im.DefaultType = "item"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path builds
// an in-memory index. If the item mapping changes, remove the index directory
// to force a rebuild.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(newItemMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, newItemMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// IndexItems indexes items in one batch, replacing any with the same ID.
func (b *BleveIndex) IndexItems(ctx context.Context, items []*models.Item) error {
	batch := b.index.NewBatch()
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc := itemDoc{
			Name:      item.Name,
			NameExact: item.Name,
			Zone:      item.Zone,
			Category:  item.Category,
			Source:    item.Source,
			Authors:   item.Authors,
			Technique: item.Technique,
		}
		if err := batch.Index(item.ID, doc); err != nil {
			return fmt.Errorf("index item %s: %w", item.ID, err)
		}
	}
	return b.index.Batch(batch)
}

// DeleteBySource removes every item read from source.
func (b *BleveIndex) DeleteBySource(ctx context.Context, source string) error {
	count, err := b.index.DocCount()
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	tq := bleve.NewTermQuery(source)
	tq.SetField("source")
	req := bleve.NewSearchRequest(tq)
	req.Size = int(count)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return fmt.Errorf("Bleve search failed: %w", err)
	}
	if len(res.Hits) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, hit := range res.Hits {
		batch.Delete(hit.ID)
	}
	return b.index.Batch(batch)
}

// Search matches the query against item names, authors and techniques.
// With fuzzy matching each whitespace-separated term also matches names within
// the configured edit distance.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*ItemHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	fuzziness := 1
	fuzzy := false
	if opts != nil {
		fuzzy = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	queries := make([]blevequery.Query, 0, 4)
	for _, f := range searchFields {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(f.name)
		mq.SetBoost(f.boost)
		queries = append(queries, mq)
	}
	if fuzzy {
		for _, term := range strings.Fields(strings.ToLower(query)) {
			fq := bleve.NewFuzzyQuery(term)
			fq.SetFuzziness(fuzziness)
			fq.SetField("name")
			queries = append(queries, fq)
		}
	}
	return b.search(ctx, bleve.NewDisjunctionQuery(queries...), limit)
}

// Resolve returns the canonical name for name: an exact match first, otherwise
// the closest name containing every query token, if it is within edit range.
func (b *BleveIndex) Resolve(ctx context.Context, name string) (string, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false, nil
	}

	exact := bleve.NewTermQuery(name)
	exact.SetField("name_exact")
	hits, err := b.search(ctx, exact, 1)
	if err != nil {
		return "", false, err
	}
	if len(hits) > 0 {
		return hits[0].Name, true, nil
	}

	mq := bleve.NewMatchQuery(name)
	mq.SetField("name")
	mq.SetOperator(blevequery.MatchQueryOperatorAnd)
	hits, err = b.search(ctx, mq, resolveCandidates)
	if err != nil {
		return "", false, err
	}
	best, bestDist := "", -1
	for _, hit := range hits {
		d := EditDistance(name, hit.Name)
		if bestDist < 0 || d < bestDist {
			best, bestDist = hit.Name, d
		}
	}
	if best == "" || !nameAccepts(name, best) {
		return "", false, nil
	}
	return best, true, nil
}

func (b *BleveIndex) search(ctx context.Context, q blevequery.Query, limit int) ([]*ItemHit, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"name", "zone", "category"}
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*ItemHit, len(res.Hits))
	for i, hit := range res.Hits {
		out[i] = &ItemHit{
			ID:       hit.ID,
			Name:     fieldString(hit.Fields, "name"),
			Zone:     fieldString(hit.Fields, "zone"),
			Category: fieldString(hit.Fields, "category"),
			Score:    hit.Score,
		}
	}
	return out, nil
}

func fieldString(fields map[string]interface{}, key string) string {
	s, _ := fields[key].(string)
	return s
}

// DocCount returns the number of indexed items.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
