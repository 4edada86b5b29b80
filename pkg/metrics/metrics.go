// Package metrics provides the small set of Prometheus metrics the
// orchestrator CLI emits about its own operations and retries.
//
// Because the process is short-lived (there is no daemon to scrape), the
// registry is not served over HTTP by default. Instead operators may pass
// --metrics-file to have the current process dump the registry in
// Prometheus text-exposition format for a node_exporter textfile
// collector to pick up.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the process-lifetime set of counters/histograms for one
// orchestrator invocation.
type Registry struct {
	reg *prometheus.Registry

	OperationsTotal       *prometheus.CounterVec
	OperationDuration     *prometheus.HistogramVec
	HealthProbeFailures   *prometheus.CounterVec
	RetryAttemptsTotal    *prometheus.CounterVec
	RetryBackoffSeconds   *prometheus.HistogramVec
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the global singleton Registry for this process.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry("exasol")
	})
	return defaultRegistry
}

// NewRegistry builds a fresh, independently-registered Registry under the
// given namespace. Tests should use this instead of DefaultRegistry to
// avoid cross-test duplicate-registration panics.
func NewRegistry(namespace string) *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,

		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total orchestrator command invocations by command and outcome.",
			},
			[]string{"command", "outcome"},
		),

		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Wall-clock duration of an orchestrator command.",
				Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 900},
			},
			[]string{"command"},
		),

		HealthProbeFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "health_probe_failures_total",
				Help:      "Count of failed health probes by check name.",
			},
			[]string{"check"},
		),

		RetryAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retry",
				Name:      "attempts_total",
				Help:      "Total retry attempts by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),

		RetryBackoffSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retry",
				Name:      "backoff_seconds",
				Help:      "Backoff delay observed before a retry attempt.",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"operation"},
		),
	}
}

// Gatherer exposes the underlying prometheus.Gatherer for text-exposition.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// RecordOperation records the outcome and duration of one command invocation.
func (r *Registry) RecordOperation(command, outcome string, seconds float64) {
	if r == nil {
		return
	}
	r.OperationsTotal.WithLabelValues(command, outcome).Inc()
	r.OperationDuration.WithLabelValues(command).Observe(seconds)
}

// RecordProbeFailure records one failed health probe.
func (r *Registry) RecordProbeFailure(check string) {
	if r == nil {
		return
	}
	r.HealthProbeFailures.WithLabelValues(check).Inc()
}

// RecordRetry records a single retry attempt and its outcome.
func (r *Registry) RecordRetry(operation, outcome string) {
	if r == nil {
		return
	}
	r.RetryAttemptsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordBackoff records the backoff delay observed before a retry attempt.
func (r *Registry) RecordBackoff(operation string, seconds float64) {
	if r == nil {
		return
	}
	r.RetryBackoffSeconds.WithLabelValues(operation).Observe(seconds)
}

// WriteTo renders the registry in Prometheus text-exposition format.
func (r *Registry) WriteTo(w interface{ Write([]byte) (int, error) }) error {
	mfs, err := r.reg.Gather()
	if err != nil {
		return err
	}
	return writeMetricFamilies(w, mfs)
}
