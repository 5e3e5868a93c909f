package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/curator/internal/models"
)

// ErrNoSheets is returned when a workbook contains no worksheets.
var ErrNoSheets = errors.New("workbook has no sheets")

// WorkbookExtensions are the spreadsheet formats excelize can read.
var WorkbookExtensions = []string{".xlsx", ".xlsm"}

// IsWorkbook reports whether path has a readable spreadsheet extension.
func IsWorkbook(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range WorkbookExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// SheetResult is the outcome of reading one sheet.
type SheetResult struct {
	Sheet   string
	Header  HeaderInfo
	Records []*models.Record
	Err     error
}

// Workbook is an open catalog spreadsheet.
type Workbook struct {
	path   string
	file   *excelize.File
	logger *zap.Logger
}

// WorkbookOption configures a Workbook.
type WorkbookOption func(*Workbook)

// WithLogger sets the logger used for per-sheet diagnostics.
func WithLogger(l *zap.Logger) WorkbookOption {
	return func(w *Workbook) {
		w.logger = l
	}
}

// ReadWorkbook opens the spreadsheet at path.
func ReadWorkbook(path string, opts ...WorkbookOption) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	w := &Workbook{path: path, file: f}
	for _, opt := range opts {
		opt(w)
	}
	if len(f.GetSheetList()) == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrNoSheets)
	}
	return w, nil
}

// Path returns the workbook's file path.
func (w *Workbook) Path() string {
	return w.path
}

// Sheets returns the sheet names in workbook order.
func (w *Workbook) Sheets() []string {
	return w.file.GetSheetList()
}

// Grid returns the raw cell text of a sheet with no header inference.
func (w *Workbook) Grid(sheet string) ([][]string, error) {
	rows, err := w.file.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

// Records extracts every sheet. A sheet that cannot be read is reported in its
// SheetResult and does not stop the others.
func (w *Workbook) Records(ctx context.Context) ([]SheetResult, error) {
	sheets := w.Sheets()
	results := make([]SheetResult, 0, len(sheets))
	for _, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := SheetResult{Sheet: sheet}
		grid, err := w.Grid(sheet)
		if err != nil {
			res.Err = err
			if w.logger != nil {
				w.logger.Warn("sheet skipped", zap.String("path", w.path), zap.String("sheet", sheet), zap.Error(err))
			}
			results = append(results, res)
			continue
		}
		res.Records, res.Header = ExtractRecords(grid, w.path, sheet)
		if w.logger != nil {
			if !res.Header.Matched && len(grid) > 0 {
				w.logger.Warn("no header row matched, using default",
					zap.String("sheet", sheet), zap.Int("row", res.Header.Row))
			}
			if len(res.Header.Duplicates) > 0 {
				w.logger.Warn("duplicate header labels, last column wins",
					zap.String("sheet", sheet), zap.Strings("labels", res.Header.Duplicates))
			}
			w.logger.Debug("sheet extracted",
				zap.String("sheet", sheet),
				zap.Int("header_row", res.Header.Row),
				zap.Int("records", len(res.Records)))
		}
		results = append(results, res)
	}
	return results, nil
}

// Close releases the underlying file.
func (w *Workbook) Close() error {
	return w.file.Close()
}
