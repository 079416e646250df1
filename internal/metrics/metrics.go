// Package metrics holds the Prometheus collectors for mutations,
// reconciliation and live filters.
//
// A nil *Metrics is valid and records nothing, so components take it as an
// optional dependency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for mutation counters.
const (
	OutcomeOK         = "ok"
	OutcomeNoop       = "noop"
	OutcomeValidation = "validation"
	OutcomeNotFound   = "not_found"
	OutcomeFailure    = "write_failure"
	OutcomeInternal   = "internal"
)

// Metrics is the set of collectors registered for one process.
type Metrics struct {
	mutations        *prometheus.CounterVec
	mutationDuration *prometheus.HistogramVec
	writeFailures    *prometheus.CounterVec

	recalcRuns      *prometheus.CounterVec
	recalcDuration  prometheus.Histogram
	driftRows       *prometheus.CounterVec
	recalcAnomalies *prometheus.CounterVec

	filterRequests  prometheus.Counter
	filterCancelled prometheus.Counter
	filterPublishes *prometheus.CounterVec
	filterResults   prometheus.Histogram
}

// New registers every collector with reg. Passing prometheus.NewRegistry()
// keeps tests isolated from the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bullion_mutations_total",
			Help: "Item mutations by operation and outcome",
		}, []string{"op", "outcome"}),
		mutationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bullion_mutation_duration_seconds",
			Help:    "Duration of a full compensation chain",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"op"}),
		writeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bullion_write_failures_total",
			Help: "Compensation chain failures by operation and stage",
		}, []string{"op", "stage"}),

		recalcRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bullion_recalc_runs_total",
			Help: "Reconciliation passes by result",
		}, []string{"result"}),
		recalcDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bullion_recalc_duration_seconds",
			Help:    "Duration of a reconciliation pass",
			Buckets: prometheus.DefBuckets,
		}),
		driftRows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bullion_drift_rows_total",
			Help: "Cached rollup rows corrected by reconciliation",
		}, []string{"level"}),
		recalcAnomalies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bullion_recalc_anomalies_total",
			Help: "Orphaned rows reported by reconciliation",
		}, []string{"kind"}),

		filterRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "bullion_filter_requests_total",
			Help: "Filter requests started",
		}),
		filterCancelled: f.NewCounter(prometheus.CounterOpts{
			Name: "bullion_filter_cancelled_total",
			Help: "Filter requests superseded or cancelled",
		}),
		filterPublishes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bullion_filter_publishes_total",
			Help: "Filter snapshots published by result",
		}, []string{"result"}),
		filterResults: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bullion_filter_result_items",
			Help:    "Items per published filter snapshot",
			Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 5000},
		}),
	}
}

// ObserveMutation records one InsertItem/DeleteItem chain.
func (m *Metrics) ObserveMutation(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op, outcome).Inc()
	m.mutationDuration.WithLabelValues(op).Observe(d.Seconds())
}

// WriteFailure records the stage at which a chain stopped.
func (m *Metrics) WriteFailure(op, stage string) {
	if m == nil {
		return
	}
	m.writeFailures.WithLabelValues(op, stage).Inc()
}

// ObserveRecalc records one reconciliation pass.
func (m *Metrics) ObserveRecalc(err error, d time.Duration, subDrift, catDrift int, anomalies map[string]int) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.recalcRuns.WithLabelValues(result).Inc()
	m.recalcDuration.Observe(d.Seconds())
	m.driftRows.WithLabelValues("subcategory").Add(float64(subDrift))
	m.driftRows.WithLabelValues("category").Add(float64(catDrift))
	for kind, n := range anomalies {
		m.recalcAnomalies.WithLabelValues(kind).Add(float64(n))
	}
}

// FilterStarted counts a request entering Running.
func (m *Metrics) FilterStarted() {
	if m == nil {
		return
	}
	m.filterRequests.Inc()
}

// FilterCancelled counts a superseded or cancelled request.
func (m *Metrics) FilterCancelled() {
	if m == nil {
		return
	}
	m.filterCancelled.Inc()
}

// FilterPublished records one snapshot delivery.
func (m *Metrics) FilterPublished(err error, items int) {
	if m == nil {
		return
	}
	if err != nil {
		m.filterPublishes.WithLabelValues("error").Inc()
		return
	}
	m.filterPublishes.WithLabelValues("ok").Inc()
	m.filterResults.Observe(float64(items))
}
