package extract

import (
	"strings"

	"github.com/hyperjump/curator/internal/models"
)

// DefaultHeaderRow is the header candidate tried first: catalog sheets carry a
// zone banner row above the column labels.
const DefaultHeaderRow = 1

// headerScanRows bounds the fallback header search.
const headerScanRows = 10

// minHeaderMatches is how many header keywords a row must contain to be a header.
const minHeaderMatches = 2

var headerKeywords = []string{"展区", "作品名称", "设计作者", "序号"}

// categoryMap maps exact sheet names to categories.
var categoryMap = []struct{ sheet, category string }{
	{"工业设计类", "工业设计"},
	{"环境设计类", "环境设计"},
	{"艺术与科技类", "艺术与科技"},
}

// HeaderInfo describes the header row chosen for a sheet.
type HeaderInfo struct {
	Row int
	// Matched is false when no row qualified and DefaultHeaderRow was used anyway.
	Matched    bool
	Labels     []string
	Duplicates []string
}

// DetectHeader returns the index of the header row in grid.
// The default row wins when it holds at least two header keywords; otherwise
// the first qualifying row among the first ten is used. When none qualifies the
// default is returned with ok=false.
func DetectHeader(grid [][]string) (row int, ok bool) {
	if DefaultHeaderRow < len(grid) && headerScore(grid[DefaultHeaderRow]) >= minHeaderMatches {
		return DefaultHeaderRow, true
	}
	limit := len(grid)
	if limit > headerScanRows {
		limit = headerScanRows
	}
	for i := 0; i < limit; i++ {
		if headerScore(grid[i]) >= minHeaderMatches {
			return i, true
		}
	}
	return DefaultHeaderRow, false
}

func headerScore(row []string) int {
	cells := make([]string, 0, len(row))
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			cells = append(cells, c)
		}
	}
	joined := strings.Join(cells, " ")
	n := 0
	for _, kw := range headerKeywords {
		if strings.Contains(joined, kw) {
			n++
		}
	}
	return n
}

// NormalizeLabel trims a header cell and flattens embedded line breaks.
func NormalizeLabel(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", "")
}

// CategoryForSheet derives the exhibition category from a sheet name.
func CategoryForSheet(sheet string) string {
	for _, m := range categoryMap {
		if sheet == m.sheet {
			return m.category
		}
	}
	for _, m := range categoryMap {
		if strings.Contains(sheet, m.sheet) {
			return m.category
		}
	}
	switch {
	case strings.Contains(sheet, "工业"):
		return "工业设计"
	case strings.Contains(sheet, "环境"):
		return "环境设计"
	case strings.Contains(sheet, "艺术"), strings.Contains(sheet, "科技"):
		return "艺术与科技"
	}
	return strings.TrimSpace(strings.ReplaceAll(sheet, "类", ""))
}

// ExtractRecords maps the data rows of a raw sheet grid to records.
// Rows below the detected header that are entirely blank are skipped, and rows
// without an item name are dropped. An empty grid yields no records.
func ExtractRecords(grid [][]string, source, sheet string) ([]*models.Record, HeaderInfo) {
	if len(grid) == 0 {
		return nil, HeaderInfo{Row: DefaultHeaderRow}
	}
	headerRow, matched := DetectHeader(grid)
	info := HeaderInfo{Row: headerRow, Matched: matched}
	if headerRow >= len(grid) {
		return nil, info
	}

	header := grid[headerRow]
	info.Labels = make([]string, len(header))
	seen := make(map[string]bool)
	for i, cell := range header {
		label := NormalizeLabel(cell)
		info.Labels[i] = label
		if label == "" {
			continue
		}
		if seen[label] && !containsString(info.Duplicates, label) {
			info.Duplicates = append(info.Duplicates, label)
		}
		seen[label] = true
	}

	category := CategoryForSheet(sheet)
	var records []*models.Record
	for r := headerRow + 1; r < len(grid); r++ {
		row := grid[r]
		if isBlankRow(row) {
			continue
		}
		rec := mapRow(row, info.Labels)
		if rec == nil {
			continue
		}
		rec.Source = source
		rec.Sheet = sheet
		rec.Row = r
		rec.Category = category
		rec.DuplicateLabels = info.Duplicates
		if rec.ItemName() == "" {
			continue
		}
		records = append(records, rec)
	}
	return records, info
}

// mapRow zips row with labels. Missing trailing cells are absent, not blank.
func mapRow(row []string, labels []string) *models.Record {
	cols := make(map[string]string)
	for i, label := range labels {
		if label == "" || i >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[i]); v != "" {
			cols[label] = v
		}
	}
	if len(cols) == 0 {
		return nil
	}
	rec := &models.Record{Columns: cols, Zone: cols[models.FieldZone.Label()]}
	if rec.Zone == "" && len(row) > 0 {
		rec.Zone = strings.TrimSpace(row[0])
	}
	return rec
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
