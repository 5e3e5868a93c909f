package models

import (
	"fmt"
	"strconv"
)

// DocType is the purpose of a synthesized document.
type DocType string

const (
	DocBasicInfo     DocType = "basic_info"
	DocDetailedInfo  DocType = "detailed_info"
	DocDesignConcept DocType = "design_concept"
	DocTechInfo      DocType = "tech_info"
	DocSystemSummary DocType = "system_summary"
	DocUserGuide     DocType = "user_guide"
)

// Metadata keys shared by documents, chunks, and the vector store.
const (
	MetaType        = "type"
	MetaItemName    = "item_name"
	MetaCategory    = "category"
	MetaZone        = "zone"
	MetaSource      = "source"
	MetaSheetName   = "sheet_name"
	MetaRow         = "row"
	MetaItemID      = "item_id"
	MetaAuthors     = "authors"
	MetaChunkID     = "chunk_id"
	MetaChunkLength = "chunk_length"
	MetaChunkIndex  = "chunk_index"
)

// Metadata is a document's attribute map. Values stored in a vector collection
// must be primitives (string, number, bool, or nil).
type Metadata map[string]interface{}

// String returns the value for key formatted as a string, or "" when absent.
func (m Metadata) String(key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the value for key as an int. JSON round trips turn ints into float64.
func (m Metadata) Int(key string) int {
	switch n := m[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	case string:
		x, _ := strconv.Atoi(n)
		return x
	default:
		return 0
	}
}

// Clone returns a shallow copy.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m)+3)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Document is one purpose-specific text view of a record.
type Document struct {
	Type     DocType  `json:"type"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// ItemName returns the item_name metadata value.
func (d *Document) ItemName() string {
	return d.Metadata.String(MetaItemName)
}

// Chunk is the stored, embeddable unit derived from a document.
type Chunk struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Type returns the chunk's document type.
func (c *Chunk) Type() DocType {
	return DocType(c.Metadata.String(MetaType))
}
