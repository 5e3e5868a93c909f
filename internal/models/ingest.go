package models

import "time"

// SheetFailure records a sheet that could not be read.
type SheetFailure struct {
	Source string `json:"source"`
	Sheet  string `json:"sheet"`
	Error  string `json:"error"`
}

// IngestReport summarizes one ingestion run.
type IngestReport struct {
	RunID            string         `json:"run_id"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       time.Time      `json:"finished_at"`
	Status           string         `json:"status"`
	Error            string         `json:"error,omitempty"`
	Files            []string       `json:"files"`
	SkippedFiles     []string       `json:"skipped_files,omitempty"`
	RemovedSources   []string       `json:"removed_sources,omitempty"`
	Sheets           int            `json:"sheets"`
	FailedSheets     []SheetFailure `json:"failed_sheets,omitempty"`
	Records          int            `json:"records"`
	Documents        int            `json:"documents"`
	Chunks           int            `json:"chunks"`
	TypeDistribution map[string]int `json:"type_distribution"`
}

// Run statuses.
const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// Item is the catalog view of a record persisted for listing and lookup.
type Item struct {
	ID         string            `json:"id"`
	Source     string            `json:"source"`
	Sheet      string            `json:"sheet"`
	Row        int               `json:"row"`
	Name       string            `json:"item_name"`
	Zone       string            `json:"zone"`
	Category   string            `json:"category"`
	Authors    string            `json:"authors,omitempty"`
	Instructor string            `json:"instructor,omitempty"`
	Technique  string            `json:"technique,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// ItemFromRecord builds the catalog item for rec.
func ItemFromRecord(id string, rec *Record) *Item {
	return &Item{
		ID:         id,
		Source:     rec.Source,
		Sheet:      rec.Sheet,
		Row:        rec.Row,
		Name:       rec.ItemName(),
		Zone:       rec.Zone,
		Category:   rec.Category,
		Authors:    rec.Field(FieldAuthors),
		Instructor: rec.Field(FieldInstructor),
		Technique:  rec.Field(FieldTechnique),
		Fields:     rec.Columns,
	}
}
