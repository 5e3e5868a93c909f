// Package metrics provides Prometheus metrics for ingestion, retrieval and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one process. Every Record method is safe to
// call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion
	IngestRunsTotal     *prometheus.CounterVec
	IngestDuration      prometheus.Histogram
	IngestRecordsTotal  prometheus.Counter
	IngestChunksTotal   *prometheus.CounterVec
	IngestSheetFailures prometheus.Counter

	// Retrieval
	SearchRequestsTotal *prometheus.CounterVec
	SearchDuration      *prometheus.HistogramVec
	SearchErrorsTotal   prometheus.Counter
	StatsCacheTotal     *prometheus.CounterVec
	CollectionDocuments prometheus.Gauge

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.IngestRunsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curator_ingest_runs_total",
			Help: "Total number of ingestion runs",
		},
		[]string{"status"},
	)
	m.IngestDuration = f.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "curator_ingest_duration_seconds",
			Help:    "Duration of ingestion runs in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)
	m.IngestRecordsTotal = f.NewCounter(
		prometheus.CounterOpts{
			Name: "curator_ingest_records_total",
			Help: "Total number of catalog records extracted",
		},
	)
	m.IngestChunksTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curator_ingest_chunks_total",
			Help: "Total number of chunks stored, by document type",
		},
		[]string{"type"},
	)
	m.IngestSheetFailures = f.NewCounter(
		prometheus.CounterOpts{
			Name: "curator_ingest_sheet_failures_total",
			Help: "Total number of sheets that could not be read",
		},
	)

	m.SearchRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curator_search_requests_total",
			Help: "Total number of retrieval searches",
		},
		[]string{"kind"},
	)
	m.SearchDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "curator_search_duration_seconds",
			Help:    "Duration of retrieval searches in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"kind"},
	)
	m.SearchErrorsTotal = f.NewCounter(
		prometheus.CounterOpts{
			Name: "curator_search_errors_total",
			Help: "Total number of searches that failed at the vector store",
		},
	)
	m.StatsCacheTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curator_stats_cache_total",
			Help: "Statistics requests by cache outcome",
		},
		[]string{"result"},
	)
	m.CollectionDocuments = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "curator_collection_documents",
			Help: "Number of chunks in the vector collection",
		},
	)

	m.HTTPRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curator_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	m.HTTPRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "curator_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordIngest records a finished ingestion run.
func (m *Metrics) RecordIngest(status string, duration time.Duration, records, failedSheets int, chunksByType map[string]int) {
	if m == nil {
		return
	}
	m.IngestRunsTotal.WithLabelValues(status).Inc()
	m.IngestDuration.Observe(duration.Seconds())
	m.IngestRecordsTotal.Add(float64(records))
	m.IngestSheetFailures.Add(float64(failedSheets))
	for t, n := range chunksByType {
		m.IngestChunksTotal.WithLabelValues(t).Add(float64(n))
	}
}

// RecordSearch records a search of the given kind.
func (m *Metrics) RecordSearch(kind string, duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "general"
	}
	m.SearchRequestsTotal.WithLabelValues(kind).Inc()
	m.SearchDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if failed {
		m.SearchErrorsTotal.Inc()
	}
}

// RecordStatsCache records whether statistics were served from the cache.
func (m *Metrics) RecordStatsCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.StatsCacheTotal.WithLabelValues(result).Inc()
}

// SetCollectionDocuments sets the collection size gauge.
func (m *Metrics) SetCollectionDocuments(n int) {
	if m == nil {
		return
	}
	m.CollectionDocuments.Set(float64(n))
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}
