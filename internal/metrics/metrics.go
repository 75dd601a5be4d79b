// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - Source System request outcomes and latency
// - Sync job lifecycle and page pagination
// - Document pipeline throughput
// - Database writes (DuckDB)
// - API endpoint latency and rate limiting
// - Circuit breaker state
// - WebSocket progress subscribers

var (
	// Source System Metrics
	RegistryRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_requests_total",
			Help: "Total number of Source System requests",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	RegistryRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "registry_request_duration_seconds",
			Help:    "Duration of Source System calls in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"query"}, // "page", "document", "attachments"
	)

	RegistryRateLimitWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "registry_rate_limit_waits_total",
			Help: "Total number of requests delayed by the local rate limiter",
		},
	)

	RegistryThrottleRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "registry_throttle_retries_total",
			Help: "Total number of retries after an HTTP 429 from the Source System",
		},
	)

	// Sync Job Metrics
	SyncJobsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_jobs_enqueued_total",
			Help: "Total number of sync jobs accepted into the queue",
		},
	)

	SyncJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_jobs_completed_total",
			Help: "Total number of finished sync jobs",
		},
		[]string{"outcome"}, // "completed", "partial", "failed"
	)

	SyncJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_job_duration_seconds",
			Help:    "Duration of sync jobs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	SyncActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_active_jobs",
			Help: "Current number of sync jobs being processed",
		},
	)

	SyncPagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_pages_fetched_total",
			Help: "Total number of page fetches by result",
		},
		[]string{"result"}, // "success", "failure"
	)

	SyncRecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_records_processed_total",
			Help: "Total number of employee records processed during sync",
		},
		[]string{"action"}, // "created", "updated", "skipped"
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_last_success_timestamp",
			Help: "Unix timestamp of last successful sync",
		},
	)

	// Document Pipeline Metrics
	DocumentsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "documents_fetched_total",
			Help: "Total number of document fetch attempts by result",
		},
		[]string{"document_type", "result"}, // result: "stored", "skipped", "missing", "failed"
	)

	DocumentFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "document_fetch_duration_seconds",
			Help:    "Duration of single document fetches in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	DocumentBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "document_batch_size",
			Help:    "Number of employees in document fetch batches",
			Buckets: []float64{1, 2, 4, 8, 16, 32},
		},
	)

	DocumentBytesStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "document_bytes_stored_total",
			Help: "Total number of document bytes written to object storage",
		},
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket progress subscribers",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	// Queue Metrics
	QueueMessagesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_messages_published_total",
			Help: "Total number of job messages published to the queue",
		},
	)

	QueueMessagesPoisoned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_messages_poisoned_total",
			Help: "Total number of job messages moved to the poison queue",
		},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordRegistryCall records a Source System call duration by query kind
func RecordRegistryCall(query string, duration time.Duration) {
	RegistryRequestDuration.WithLabelValues(query).Observe(duration.Seconds())
}

// RecordJobOutcome records a finished sync job and its duration
func RecordJobOutcome(outcome string, duration time.Duration) {
	SyncJobsCompleted.WithLabelValues(outcome).Inc()
	SyncJobDuration.Observe(duration.Seconds())
	if outcome == "completed" {
		SyncLastSuccess.Set(float64(time.Now().Unix()))
	}
}

// TrackActiveJob tracks sync jobs currently being processed
func TrackActiveJob(inc bool) {
	if inc {
		SyncActiveJobs.Inc()
	} else {
		SyncActiveJobs.Dec()
	}
}

// RecordDocumentFetch records a single document fetch attempt
func RecordDocumentFetch(documentType, result string, duration time.Duration) {
	DocumentsFetched.WithLabelValues(documentType, result).Inc()
	DocumentFetchDuration.Observe(duration.Seconds())
}
