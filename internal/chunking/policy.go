// Package chunking splits synthesized documents into embeddable chunks using a
// per-document-type window and overlap.
package chunking

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/hyperjump/curator/internal/models"
)

// Separators are tried in order when looking for a cut point.
var Separators = []string{"\n\n", "\n", "。", "！", "？", "；", ". ", " ", ""}

// idNamespace scopes the name-based chunk IDs.
var idNamespace = uuid.MustParse("6f1c2a7e-3b54-4d0f-9a8e-5c2d1b7e4f30")

// Rule is the splitting window for one document type, in runes.
// A Rule with NoSplit set emits documents whole regardless of length.
type Rule struct {
	Window  int  `yaml:"window" json:"window"`
	Overlap int  `yaml:"overlap" json:"overlap"`
	NoSplit bool `yaml:"no_split" json:"no_split"`
}

func (r Rule) validate() error {
	if r.NoSplit {
		return nil
	}
	if r.Window <= 0 {
		return fmt.Errorf("window must be positive, got %d", r.Window)
	}
	if r.Overlap < 0 || r.Overlap >= r.Window {
		return fmt.Errorf("overlap must be in [0, %d), got %d", r.Window, r.Overlap)
	}
	return nil
}

// DefaultRules returns the built-in rule table.
func DefaultRules() map[models.DocType]Rule {
	return map[models.DocType]Rule{
		models.DocBasicInfo:     {NoSplit: true},
		models.DocDetailedInfo:  {Window: 800, Overlap: 100},
		models.DocDesignConcept: {Window: 600, Overlap: 80},
		models.DocSystemSummary: {Window: 700, Overlap: 90},
		models.DocUserGuide:     {Window: 700, Overlap: 90},
	}
}

// DefaultFallback applies to document types without a rule.
var DefaultFallback = Rule{Window: 500, Overlap: 50}

// Policy chunks documents according to its rule table.
type Policy struct {
	rules    map[models.DocType]Rule
	fallback Rule
}

// Option configures a Policy.
type Option func(*Policy)

// WithRule overrides the rule for one document type.
func WithRule(t models.DocType, r Rule) Option {
	return func(p *Policy) {
		p.rules[t] = r
	}
}

// WithFallback overrides the rule for types without an entry.
func WithFallback(r Rule) Option {
	return func(p *Policy) {
		p.fallback = r
	}
}

// NewPolicy returns a policy with the default rules and any overrides applied.
func NewPolicy(opts ...Option) (*Policy, error) {
	p := &Policy{rules: DefaultRules(), fallback: DefaultFallback}
	for _, opt := range opts {
		opt(p)
	}
	for t, r := range p.rules {
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("chunk rule %s: %w", t, err)
		}
	}
	if err := p.fallback.validate(); err != nil {
		return nil, fmt.Errorf("fallback chunk rule: %w", err)
	}
	return p, nil
}

// RuleFor returns the rule applied to documents of type t.
func (p *Policy) RuleFor(t models.DocType) Rule {
	if r, ok := p.rules[t]; ok {
		return r
	}
	return p.fallback
}

// Chunk splits docs in order. chunk_id numbers the chunks sequentially across
// the whole call starting at zero.
func (p *Policy) Chunk(docs []*models.Document) ([]*models.Chunk, error) {
	return p.ChunkFrom(docs, 0)
}

// ChunkFrom is Chunk with chunk_id numbering starting at first.
func (p *Policy) ChunkFrom(docs []*models.Document, first int) ([]*models.Chunk, error) {
	var out []*models.Chunk
	for _, d := range docs {
		parts, err := p.Split(d.Type, d.Content)
		if err != nil {
			return nil, fmt.Errorf("split %s document %q: %w", d.Type, d.ItemName(), err)
		}
		for i, part := range parts {
			meta := d.Metadata.Clone()
			meta[models.MetaChunkID] = first + len(out)
			meta[models.MetaChunkIndex] = i
			meta[models.MetaChunkLength] = utf8.RuneCountInString(part)
			out = append(out, &models.Chunk{
				ID:       ChunkID(d.Metadata, i),
				Content:  part,
				Metadata: meta,
			})
		}
	}
	return out, nil
}

// Split cuts text with the rule for t. Every piece is at most Window runes and
// each piece after the first begins with the last Overlap runes of the piece before it.
func (p *Policy) Split(t models.DocType, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	rule := p.RuleFor(t)
	if rule.NoSplit || utf8.RuneCountInString(text) <= rule.Window {
		return []string{text}, nil
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(rule.Window-rule.Overlap),
		textsplitter.WithChunkOverlap(0),
		textsplitter.WithSeparators(Separators),
		textsplitter.WithKeepSeparator(true),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
	)
	cores, err := splitter.SplitText(text)
	if err != nil {
		return nil, err
	}

	pieces := make([]string, 0, len(cores))
	for _, core := range cores {
		if core == "" {
			continue
		}
		if len(pieces) > 0 && rule.Overlap > 0 {
			core = tail(pieces[len(pieces)-1], rule.Overlap) + core
		}
		pieces = append(pieces, core)
	}
	return pieces, nil
}

// tail returns the last n runes of s, or s when it is shorter.
func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

// ChunkID derives a stable ID from a document's provenance and the chunk's position within it.
func ChunkID(meta models.Metadata, part int) string {
	key := strings.Join([]string{
		meta.String(models.MetaSource),
		meta.String(models.MetaSheetName),
		meta.String(models.MetaRow),
		meta.String(models.MetaType),
		meta.String(models.MetaItemName),
		strconv.Itoa(part),
	}, "|")
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}
