// Package keyword indexes catalog items for name lookup and fuzzy search.
package keyword

import (
	"context"

	"github.com/hyperjump/curator/internal/models"
)

// SearchOptions are optional parameters for item search. Nil means defaults.
type SearchOptions struct {
	// FuzzyEnabled adds edit-distance matching for each whitespace-separated term.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance for fuzzy terms (1 or 2). Default 1.
	Fuzziness int
}

// ItemIndex defines catalog item lookup operations.
type ItemIndex interface {
	IndexItems(ctx context.Context, items []*models.Item) error
	DeleteBySource(ctx context.Context, source string) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*ItemHit, error)
	// Resolve maps a possibly partial or misspelled item name to the canonical
	// name of the closest indexed item.
	Resolve(ctx context.Context, name string) (string, bool, error)
	DocCount() (uint64, error)
	Close() error
}

// ItemHit is a single item search hit.
type ItemHit struct {
	ID       string  `json:"id"`
	Name     string  `json:"item_name"`
	Zone     string  `json:"zone,omitempty"`
	Category string  `json:"category,omitempty"`
	Score    float64 `json:"score"`
}
