package retrieval

import (
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/curator/internal/models"
	"github.com/hyperjump/curator/internal/vector"
)

// DefaultStatsTTL is how long computed statistics are served from cache.
const DefaultStatsTTL = 300 * time.Second

// StatsSampleSize bounds how many stored chunks statistics are computed from.
const StatsSampleSize = 100

// StatsSnapshot is a computed statistics value and when it was taken.
type StatsSnapshot struct {
	Stats   *models.CollectionStats
	TakenAt time.Time
}

// Stale reports whether the snapshot is empty or at least ttl old at now.
func (s StatsSnapshot) Stale(now time.Time, ttl time.Duration) bool {
	return s.Stats == nil || now.Sub(s.TakenAt) >= ttl
}

// RefreshIfStale returns s unchanged while it is fresh, otherwise a new
// snapshot from compute taken at now. refreshed reports which happened.
func (s StatsSnapshot) RefreshIfStale(now time.Time, ttl time.Duration, compute func() (*models.CollectionStats, error)) (next StatsSnapshot, refreshed bool, err error) {
	if !s.Stale(now, ttl) {
		return s, false, nil
	}
	stats, err := compute()
	if err != nil {
		return s, false, err
	}
	stats.GeneratedAt = now
	return StatsSnapshot{Stats: stats, TakenAt: now}, true, nil
}

var authorSeparators = []string{"，", ",", ";", "；", "/", "、"}

// splitAuthors splits a stored author list into names.
func splitAuthors(s string) []string {
	for _, sep := range authorSeparators[:len(authorSeparators)-1] {
		s = strings.ReplaceAll(s, sep, "、")
	}
	var out []string
	for _, a := range strings.Split(s, "、") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// computeStats aggregates a sample of stored chunks.
func computeStats(total int, sample []vector.Hit) *models.CollectionStats {
	stats := &models.CollectionStats{
		TotalCount: total,
		SampleSize: len(sample),
		ByType:     make(map[string]int),
		ByCategory: make(map[string]int),
		Zones:      []string{},
		Authors:    []string{},
	}
	zones := make(map[string]bool)
	authors := make(map[string]bool)
	for _, h := range sample {
		if t := h.Metadata.String(models.MetaType); t != "" {
			stats.ByType[t]++
		}
		if c := h.Metadata.String(models.MetaCategory); c != "" {
			stats.ByCategory[c]++
		}
		if z := h.Metadata.String(models.MetaZone); z != "" && !zones[z] {
			zones[z] = true
			stats.Zones = append(stats.Zones, z)
		}
		for _, a := range splitAuthors(h.Metadata.String(models.MetaAuthors)) {
			if !authors[a] {
				authors[a] = true
				stats.Authors = append(stats.Authors, a)
			}
		}
	}
	sort.Strings(stats.Zones)
	sort.Strings(stats.Authors)
	return stats
}
