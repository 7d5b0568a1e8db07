// SPDX-License-Identifier: MIT

// Package metrics exposes the process's Prometheus collectors. All names
// carry the app_ prefix; every collector is registered once at package init
// via promauto against the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_http_requests_total",
		Help: "Total HTTP requests by path and status code.",
	}, []string{"path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "app_http_request_duration_seconds",
		Help:    "HTTP request latency by path.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path"})

	httpPanicsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_http_panics_total",
		Help: "Total panics recovered from HTTP handlers by path.",
	}, []string{"path"})

	// SaveFetchDuration tracks C3 save retrieval latency by source (official/external)
	// and outcome (ok/error).
	SaveFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "app_save_fetch_duration_seconds",
		Help:    "Cloud save fetch latency by source and outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"source", "outcome"})

	// SaveDecryptTotal counts decrypt attempts by crypto mode and outcome.
	SaveDecryptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_save_decrypt_total",
		Help: "Cloud save decrypt attempts by crypto mode and outcome.",
	}, []string{"mode", "outcome"})

	// RKSComputeDuration tracks how long RKS aggregation takes per request.
	RKSComputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "app_rks_compute_duration_seconds",
		Help:    "Duration of RKS B27/AP3 aggregation.",
		Buckets: prometheus.DefBuckets,
	})

	// PushAccSearchIterations counts binary-search iterations spent per
	// push-ACC inverse-search call.
	PushAccSearchIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "app_push_acc_search_iterations",
		Help:    "Iterations consumed by the push-ACC binary search.",
		Buckets: prometheus.LinearBuckets(1, 2, 16),
	})

	// IngestBatchSize observes the number of rows flushed per stats ingest batch.
	IngestBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "app_stats_ingest_batch_size",
		Help:    "Row count per stats ingest flush.",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})

	// IngestDropsTotal counts telemetry rows dropped by reason (queue_full, invalid).
	IngestDropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_stats_ingest_drops_total",
		Help: "Dropped telemetry rows by reason.",
	}, []string{"reason"})

	// ArchiveRunsTotal counts daily archive runs by outcome.
	ArchiveRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_stats_archive_runs_total",
		Help: "Daily archive runs by outcome.",
	}, []string{"outcome"})

	// ArchiveRowsWritten counts rows written to Parquet per archive run.
	ArchiveRowsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "app_stats_archive_rows_written_total",
		Help: "Total rows written to Parquet archive files.",
	})

	// ReconcileMismatchesTotal counts reconciliation mismatches found by kind.
	ReconcileMismatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_stats_reconcile_mismatches_total",
		Help: "Reconciliation mismatches by kind.",
	}, []string{"kind"})

	// SessionIssuedTotal counts bearer tokens issued.
	SessionIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "app_session_issued_total",
		Help: "Total bearer session tokens issued.",
	})

	// SessionRevokedTotal counts revocation operations by scope (token/user).
	SessionRevokedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_session_revoked_total",
		Help: "Session revocation operations by scope.",
	}, []string{"scope"})

	// SessionAuthCacheSize reports the current embedded-auth decrypt cache size.
	SessionAuthCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "app_session_auth_cache_size",
		Help: "Current entry count of the embedded-auth decrypt cache.",
	})

	// RenderDuration tracks score-card render latency by format (svg/png) and outcome.
	RenderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "app_render_duration_seconds",
		Help:    "Score card render latency by format and outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"format", "outcome"})

	// RenderCacheHitsTotal counts LRU render-cache hits and misses.
	RenderCacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_render_cache_hits_total",
		Help: "Render cache lookups by result (hit/miss).",
	}, []string{"result"})

	// LeaderboardQueryDuration tracks leaderboard page query latency by mode (offset/seek).
	LeaderboardQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "app_leaderboard_query_duration_seconds",
		Help:    "Leaderboard page query latency by pagination mode.",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})
)

// RecordHTTPRequest records a completed HTTP request's status and latency
// for a normalized path label.
func RecordHTTPRequest(path string, status int, seconds float64) {
	httpRequestsTotal.WithLabelValues(path, statusLabel(status)).Inc()
	httpRequestDuration.WithLabelValues(path).Observe(seconds)
}

// RecordHTTPPanic records a recovered panic for a normalized path label.
func RecordHTTPPanic(path string) {
	httpPanicsTotal.WithLabelValues(path).Inc()
}

func statusLabel(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
