package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue metrics
var (
	EmailsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailqueue_emails_enqueued_total",
			Help: "Total number of emails accepted into the queue",
		},
		[]string{"template_type"},
	)

	EmailsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailqueue_emails_processed_total",
			Help: "Total number of queue entries processed by outcome",
		},
		[]string{"outcome"}, // sent, retried, failed, cancelled, deferred
	)

	SendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailqueue_send_duration_seconds",
			Help:    "Duration of provider send calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	ClaimConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailqueue_claim_conflicts_total",
			Help: "Total number of entries lost to a concurrent claimer",
		},
	)

	BatchesSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailqueue_batches_skipped_total",
			Help: "Total number of drain calls skipped because a drain was in progress",
		},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mailqueue_queue_depth",
			Help: "Number of queue entries by status",
		},
		[]string{"status"}, // pending, processing, sent, failed, cancelled
	)

	StaleRecoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailqueue_stale_recovered_total",
			Help: "Total number of stuck processing entries returned to pending",
		},
	)
)

// Supervisor metrics
var (
	SupervisorRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mailqueue_supervisor_running",
			Help: "1 when the queue supervisor is running",
		},
	)

	SupervisorRestartsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailqueue_supervisor_restarts_total",
			Help: "Total number of supervisor self-restarts",
		},
	)
)

// API metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	APIAuthFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "api_auth_failures_total",
			Help: "Total number of API authentication failures",
		},
	)
)

// Database metrics
var (
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)
