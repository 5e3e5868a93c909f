// Package models defines core data structures for catalog records, documents, chunks, and retrieval results.
package models

import "sort"

// FieldKey is a recognized semantic field of a catalog record.
type FieldKey string

const (
	FieldZone             FieldKey = "zone"
	FieldItemName         FieldKey = "item_name"
	FieldSequence         FieldKey = "sequence"
	FieldSubCategory      FieldKey = "sub_category"
	FieldDisplayForm      FieldKey = "display_form"
	FieldAuthors          FieldKey = "authors"
	FieldInstructor       FieldKey = "instructor"
	FieldCreationTime     FieldKey = "creation_time"
	FieldShortDescription FieldKey = "short_description"
	FieldMotivation       FieldKey = "motivation"
	FieldInspiration      FieldKey = "inspiration"
	FieldPurpose          FieldKey = "purpose"
	FieldProcess          FieldKey = "process"
	FieldDifficulties     FieldKey = "difficulties"
	FieldDesignConcept    FieldKey = "design_concept"
	FieldVisualLanguage   FieldKey = "visual_language"
	FieldTechnique        FieldKey = "technique"
	FieldExpectedEffect   FieldKey = "expected_effect"
)

// fieldLabels maps each key to the spreadsheet labels that carry it, preferred label first.
var fieldLabels = map[FieldKey][]string{
	FieldZone:             {"展区"},
	FieldItemName:         {"作品名称"},
	FieldSequence:         {"序号/点位", "序号"},
	FieldSubCategory:      {"类别标签", "类别"},
	FieldDisplayForm:      {"呈现形式"},
	FieldAuthors:          {"设计作者"},
	FieldInstructor:       {"指导老师"},
	FieldCreationTime:     {"创作时间"},
	FieldShortDescription: {"作品描述（简）", "作品描述"},
	FieldMotivation:       {"设计动机"},
	FieldInspiration:      {"灵感来源"},
	FieldPurpose:          {"设计目的/意义"},
	FieldProcess:          {"创作历程"},
	FieldDifficulties:     {"面临的困难"},
	FieldDesignConcept:    {"设计理念/风格"},
	FieldVisualLanguage:   {"视觉形式语言"},
	FieldTechnique:        {"技术特点"},
	FieldExpectedEffect:   {"预期效果"},
}

var knownLabels = func() map[string]FieldKey {
	m := make(map[string]FieldKey)
	for k, labels := range fieldLabels {
		for _, l := range labels {
			m[l] = k
		}
	}
	return m
}()

// Label returns the canonical spreadsheet label for the key.
func (k FieldKey) Label() string {
	if labels := fieldLabels[k]; len(labels) > 0 {
		return labels[0]
	}
	return string(k)
}

// KeyForLabel returns the FieldKey a normalized header label maps to.
func KeyForLabel(label string) (FieldKey, bool) {
	k, ok := knownLabels[label]
	return k, ok
}

// Record is one catalog entry: a spreadsheet row keyed by its normalized header labels.
type Record struct {
	Source   string `json:"source"`
	Sheet    string `json:"sheet"`
	Row      int    `json:"row"`
	Category string `json:"category"`
	// Zone is the 展区 value, or the row's first cell when that column is blank or absent.
	Zone string `json:"zone"`
	// Columns holds every non-blank cell under a non-blank header label.
	Columns map[string]string `json:"columns"`
	// DuplicateLabels lists header labels that occur more than once; the last column won.
	DuplicateLabels []string `json:"duplicate_labels,omitempty"`
}

// Field returns the value for key, trying each of its labels in order.
func (r *Record) Field(key FieldKey) string {
	if key == FieldZone {
		return r.Zone
	}
	for _, l := range fieldLabels[key] {
		if v := r.Columns[l]; v != "" {
			return v
		}
	}
	return ""
}

// ItemName is shorthand for Field(FieldItemName).
func (r *Record) ItemName() string {
	return r.Field(FieldItemName)
}

// Other returns the columns whose labels are not recognized fields.
func (r *Record) Other() map[string]string {
	out := make(map[string]string)
	for label, v := range r.Columns {
		if _, ok := knownLabels[label]; !ok {
			out[label] = v
		}
	}
	return out
}

// Labels returns the record's column labels in sorted order.
func (r *Record) Labels() []string {
	labels := make([]string, 0, len(r.Columns))
	for l := range r.Columns {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}
