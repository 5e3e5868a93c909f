// Package cli provides output formatting for the curator command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/curator/internal/models"
	"github.com/hyperjump/curator/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a -format flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (supported: text, json)", s)
	}
}

const rule = "─────────────────────────────────────────────────────────"

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes ranked results for query to w.
func WriteSearchResults(w io.Writer, query string, results []*models.RetrievalResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"query": query, "count": len(results), "results": results})
	}
	if len(results) == 0 {
		fmt.Fprintf(w, "\nNo results for %q\n", query)
		return nil
	}
	fmt.Fprintf(w, "\nFound %d results for %q\n\n", len(results), query)
	for _, r := range results {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "#%d | relevance %.4f | similarity %.4f | %s\n",
			r.Rank, r.Relevance, r.Similarity, r.Metadata.String(models.MetaType))
		if name := r.Metadata.String(models.MetaItemName); name != "" {
			fmt.Fprintf(w, "%s", name)
			if zone := r.Metadata.String(models.MetaZone); zone != "" {
				fmt.Fprintf(w, " (%s)", zone)
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s\n\n%s\n\n", r.Explanation, utils.Truncate(r.Content, 200))
	}
	return nil
}

// WriteStats writes collection statistics to w.
func WriteStats(w io.Writer, stats *models.CollectionStats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stats)
	}
	source := "fresh"
	if stats.FromCache {
		source = "cached"
	}
	fmt.Fprintf(w, "Chunks: %d (sampled %d, %s at %s)\n",
		stats.TotalCount, stats.SampleSize, source, stats.GeneratedAt.Format("2006-01-02 15:04:05"))
	writeCounts(w, "By type", stats.ByType)
	writeCounts(w, "By category", stats.ByCategory)
	fmt.Fprintf(w, "Zones: %s\n", strings.Join(stats.Zones, "、"))
	fmt.Fprintf(w, "Authors: %d\n", len(stats.Authors))
	return nil
}

func writeCounts(w io.Writer, title string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-16s %d\n", k, counts[k])
	}
}

// WriteReport writes an ingestion report to w.
func WriteReport(w io.Writer, report *models.IngestReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "Run %s %s in %s\n", report.RunID, report.Status,
		report.FinishedAt.Sub(report.StartedAt).Round(1e6))
	fmt.Fprintf(w, "Files: %d, sheets: %d, records: %d, documents: %d, chunks: %d\n",
		len(report.Files), report.Sheets, report.Records, report.Documents, report.Chunks)
	writeCounts(w, "Chunks by type", report.TypeDistribution)
	for _, f := range report.SkippedFiles {
		fmt.Fprintf(w, "skipped: %s\n", f)
	}
	for _, f := range report.RemovedSources {
		fmt.Fprintf(w, "removed: %s\n", f)
	}
	for _, f := range report.FailedSheets {
		if f.Sheet == "" {
			fmt.Fprintf(w, "failed: %s: %s\n", f.Source, f.Error)
		} else {
			fmt.Fprintf(w, "failed: %s [%s]: %s\n", f.Source, f.Sheet, f.Error)
		}
	}
	if report.Error != "" {
		fmt.Fprintf(w, "error: %s\n", report.Error)
	}
	return nil
}

// WriteItems writes catalog items to w, one line each.
func WriteItems(w io.Writer, items []*models.Item, total int64, format OutputFormat) error {
	if format == OutputJSON {
		if items == nil {
			items = []*models.Item{}
		}
		return writeJSON(w, map[string]interface{}{"total": total, "items": items})
	}
	for _, it := range items {
		fmt.Fprintf(w, "%-6s %-12s %s", it.Zone, it.Category, it.Name)
		if it.Authors != "" {
			fmt.Fprintf(w, " / %s", it.Authors)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%d of %d items\n", len(items), total)
	return nil
}
