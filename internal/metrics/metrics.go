// Package metrics holds the Prometheus collectors for the HTTP layer, the
// third-party adapters and the periodic sync job.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citydesk_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "citydesk_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	AdapterCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citydesk_adapter_calls_total",
			Help: "Third-party calls by adapter and outcome (success, failure, rejected)",
		},
		[]string{"adapter", "outcome"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "citydesk_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"adapter"},
	)

	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citydesk_sync_step_runs_total",
			Help: "Periodic sync step executions by step and outcome",
		},
		[]string{"step", "outcome"},
	)

	SyncRowsInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citydesk_sync_rows_inserted_total",
			Help: "Rows inserted by the periodic sync job",
		},
		[]string{"step"},
	)
)

// RecordAPIRequest records one handled request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordAdapterCall records the outcome of one third-party call.
func RecordAdapterCall(adapter, outcome string) {
	AdapterCallsTotal.WithLabelValues(adapter, outcome).Inc()
}

// RecordSyncStep records a sync step run and the rows it inserted.
func RecordSyncStep(step string, inserted int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	SyncRunsTotal.WithLabelValues(step, outcome).Inc()
	if inserted > 0 {
		SyncRowsInserted.WithLabelValues(step).Add(float64(inserted))
	}
}
