package models

import (
	"fmt"
	"strings"
)

// SearchKind selects one of the specialized query forms.
type SearchKind string

const (
	SearchGeneral   SearchKind = ""
	SearchZone      SearchKind = "zone"
	SearchCategory  SearchKind = "category"
	SearchAuthor    SearchKind = "author"
	SearchTechnique SearchKind = "technique"
	SearchItemName  SearchKind = "item"
)

// SearchRequest is a retrieval request from the HTTP API or CLI.
type SearchRequest struct {
	Query  string            `json:"query"`
	TopK   int               `json:"top_k,omitempty"`
	By     SearchKind        `json:"by,omitempty"`
	Filter map[string]string `json:"filter,omitempty"`
}

// Validate trims the query, checks the kind, and clamps TopK into [1, maxTopK].
// A zero TopK becomes defaultTopK.
func (q *SearchRequest) Validate(defaultTopK, maxTopK int) error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	switch q.By {
	case SearchGeneral, SearchZone, SearchCategory, SearchAuthor, SearchTechnique, SearchItemName:
	default:
		return fmt.Errorf("unknown search kind %q", q.By)
	}
	if q.TopK <= 0 {
		q.TopK = defaultTopK
	}
	if q.TopK < 1 {
		q.TopK = 1
	}
	if maxTopK > 0 && q.TopK > maxTopK {
		q.TopK = maxTopK
	}
	return nil
}
