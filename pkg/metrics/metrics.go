// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citysql_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "citysql_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	relaySessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citysql_relay_sessions_total",
			Help: "Chat relay sessions by terminal outcome (done, error, stopped).",
		},
		[]string{"outcome"},
	)

	relayFragmentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "citysql_relay_fragments_total",
			Help: "Text fragments relayed to clients.",
		},
	)

	relaySessionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "citysql_relay_session_duration_seconds",
			Help:    "Wall time from first pull to sink close.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	sqlExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citysql_sql_executions_total",
			Help: "SQL executions by status (ok, rejected, failed).",
		},
		[]string{"status"},
	)

	historyDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "citysql_history_dropped_total",
			Help: "History entries dropped because the worker queue was full.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		relaySessionsTotal,
		relayFragmentsTotal,
		relaySessionDurationSeconds,
		sqlExecutionsTotal,
		historyDroppedTotal,
	)
}

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(method, path string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, path, code).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, path, code).Observe(elapsed.Seconds())
}

// ObserveRelaySession records a finished relay session.
func ObserveRelaySession(outcome string, fragments int, elapsed time.Duration) {
	relaySessionsTotal.WithLabelValues(outcome).Inc()
	relayFragmentsTotal.Add(float64(fragments))
	relaySessionDurationSeconds.Observe(elapsed.Seconds())
}

// SQL execution statuses.
const (
	SQLStatusOK       = "ok"
	SQLStatusRejected = "rejected"
	SQLStatusFailed   = "failed"
)

// IncrementSQLExecution counts one execution attempt.
func IncrementSQLExecution(status string) {
	sqlExecutionsTotal.WithLabelValues(status).Inc()
}

// IncrementHistoryDropped counts one dropped history entry.
func IncrementHistoryDropped() {
	historyDroppedTotal.Inc()
}
