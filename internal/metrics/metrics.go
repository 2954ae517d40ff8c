package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingest metrics
var (
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_ingest_total",
			Help: "Total number of ingest attempts",
		},
		[]string{"result"}, // "new", "duplicate", "error"
	)

	IngestBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_catalog_ingest_bytes_total",
			Help: "Total bytes written to the canonical store",
		},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photo_catalog_ingest_duration_seconds",
			Help:    "Ingest duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Preview metrics
var (
	PreviewRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_preview_requests_total",
			Help: "Total number of preview requests",
		},
		[]string{"size", "format", "result"}, // "cached", "generated", "shared", "error"
	)

	PreviewGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_catalog_preview_generation_duration_seconds",
			Help:    "Preview generation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"size", "format"},
	)

	PreviewInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_catalog_preview_generations_in_flight",
			Help: "Number of preview generations currently executing",
		},
	)
)

// Workflow metrics
var (
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_workflow_transitions_total",
			Help: "Total number of workflow stage transitions",
		},
		[]string{"to_stage", "status"}, // status: "ok", "invalid", "error"
	)

	LedgerAppendsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_catalog_ledger_appends_total",
			Help: "Total number of ledger entries appended",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_catalog_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_catalog_db_transaction_duration_seconds",
			Help:    "Database transaction duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"result"}, // "commit", "rollback"
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_catalog_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Dispatch metrics
var (
	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_catalog_dispatch_queue_depth",
			Help: "Number of work descriptors waiting for a worker",
		},
	)

	DispatchUnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_dispatch_units_total",
			Help: "Total number of dispatched work units",
		},
		[]string{"kind", "status"}, // status: "ok", "failed"
	)

	DispatchWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_catalog_dispatch_workers",
			Help: "Number of dispatch workers",
		},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_catalog_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
