// Package metrics exports Prometheus instrumentation for key-pair
// construction and cryptographic operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Key pair construction counters by origin and status
	KeyPairsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsakit_keypairs_created_total",
			Help: "Total number of key pair constructions by origin (generate, import_private, import_public) and status",
		},
		[]string{"origin", "status"},
	)

	// Cryptographic operation counters
	KeyOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsakit_key_operations_total",
			Help: "Total number of key pair operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// Operation duration histogram
	KeyOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rsakit_key_operation_duration_seconds",
			Help:    "Key pair operation duration in seconds by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Provider-level failures (opaque native errors)
	ProviderErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsakit_provider_errors_total",
			Help: "Total number of native provider failures by operation",
		},
		[]string{"operation"},
	)
)

// RecordConstruction records a key pair construction attempt.
func RecordConstruction(origin, status string) {
	KeyPairsCreatedTotal.WithLabelValues(origin, status).Inc()
}

// RecordOperation records a key pair operation.
func RecordOperation(operation, status string) {
	KeyOperationsTotal.WithLabelValues(operation, status).Inc()
}

// ObserveOperationDuration records how long an operation took.
func ObserveOperationDuration(operation string, seconds float64) {
	KeyOperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordProviderError records an opaque native provider failure.
func RecordProviderError(operation string) {
	ProviderErrorsTotal.WithLabelValues(operation).Inc()
}
