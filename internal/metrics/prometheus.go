package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the ingestion service

var (
	// API call metrics
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mwocomp_api_calls_total",
			Help: "Total number of match API calls",
		},
		[]string{"endpoint", "status"},
	)

	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mwocomp_api_call_duration_seconds",
			Help:    "Duration of API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Ingestion metrics
	MatchesIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mwocomp_matches_ingested_total",
			Help: "Total number of matches accepted into the store",
		},
	)

	RecordsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mwocomp_records_ingested_total",
			Help: "Total number of per-player records written",
		},
	)

	IngestFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mwocomp_ingest_failures_total",
			Help: "Total number of rejected matches or tokens by failure kind",
		},
		[]string{"kind"},
	)

	// Reference data metrics
	ReferenceFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mwocomp_reference_fetch_errors_total",
			Help: "Total number of reference data source failures",
		},
		[]string{"source"},
	)

	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mwocomp_cache_hits_total",
			Help: "Total number of reference cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mwocomp_cache_misses_total",
			Help: "Total number of reference cache misses",
		},
	)

	// Rating engine metrics
	RecomputeRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mwocomp_recompute_runs_total",
			Help: "Total number of rating recompute passes",
		},
		[]string{"status"},
	)

	RecomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mwocomp_recompute_duration_seconds",
			Help:    "Duration of full rating recompute passes in seconds",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 120},
		},
	)

	// Database metrics
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mwocomp_db_queries_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"},
	)

	// System metrics
	SystemUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mwocomp_system_uptime_seconds",
			Help: "System uptime in seconds",
		},
	)
)

// RecordAPICall records an API call metric
func RecordAPICall(endpoint, status string, duration float64) {
	APICallsTotal.WithLabelValues(endpoint, status).Inc()
	APICallDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordIngest records an accepted match and its row count
func RecordIngest(records int) {
	MatchesIngested.Inc()
	RecordsIngested.Add(float64(records))
}

// RecordIngestFailure records a rejected match or token
func RecordIngestFailure(kind string) {
	IngestFailuresTotal.WithLabelValues(kind).Inc()
}

// RecordReferenceError records a reference data source failure
func RecordReferenceError(source string) {
	ReferenceFetchErrors.WithLabelValues(source).Inc()
}

// RecordCacheHit records a reference cache hit
func RecordCacheHit() {
	CacheHitsTotal.Inc()
}

// RecordCacheMiss records a reference cache miss
func RecordCacheMiss() {
	CacheMissesTotal.Inc()
}

// RecordRecompute records a rating recompute pass
func RecordRecompute(status string, duration float64) {
	RecomputeRunsTotal.WithLabelValues(status).Inc()
	RecomputeDuration.Observe(duration)
}

// RecordDBQuery records a database operation
func RecordDBQuery(operation, status string) {
	DBQueriesTotal.WithLabelValues(operation, status).Inc()
}
