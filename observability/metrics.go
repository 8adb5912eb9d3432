// Package observability hosts the Prometheus collectors shared by the
// reconciliation worker and the HTTP surface.
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	workerMetricsOnce sync.Once
	workerRegistry    *WorkerMetrics
)

// WorkerMetrics wraps collectors tracking reconciliation worker health.
type WorkerMetrics struct {
	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	matches       *prometheus.CounterVec
	chainErrors   *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	pendingGauge  prometheus.Gauge
}

// Worker exposes the lazily initialised metrics registry for the worker.
func Worker() *WorkerMetrics {
	workerMetricsOnce.Do(func() {
		workerRegistry = &WorkerMetrics{
			cycles: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "promogate",
				Subsystem: "worker",
				Name:      "cycles_total",
				Help:      "Total completed reconciliation cycles.",
			}),
			cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "promogate",
				Subsystem: "worker",
				Name:      "cycle_duration_seconds",
				Help:      "Latency distribution for full reconciliation cycles.",
				Buckets:   prometheus.DefBuckets,
			}),
			matches: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "promogate",
				Subsystem: "worker",
				Name:      "payments_matched_total",
				Help:      "Payments matched and activated, segmented by chain.",
			}, []string{"chain"}),
			chainErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "promogate",
				Subsystem: "worker",
				Name:      "chain_errors_total",
				Help:      "Transport failures per chain scan.",
			}, []string{"chain"}),
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "promogate",
				Subsystem: "worker",
				Name:      "transitions_total",
				Help:      "Batch lifecycle transitions applied, segmented by kind.",
			}, []string{"kind"}),
			pendingGauge: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "promogate",
				Subsystem: "worker",
				Name:      "pending_requests",
				Help:      "Pending payment requests observed in the last cycle.",
			}),
		}
		prometheus.MustRegister(
			workerRegistry.cycles,
			workerRegistry.cycleDuration,
			workerRegistry.matches,
			workerRegistry.chainErrors,
			workerRegistry.transitions,
			workerRegistry.pendingGauge,
		)
	})
	return workerRegistry
}

// ObserveCycle records a completed cycle and its duration.
func (m *WorkerMetrics) ObserveCycle(duration time.Duration) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.cycleDuration.Observe(duration.Seconds())
}

// RecordMatch counts an activated payment for the chain.
func (m *WorkerMetrics) RecordMatch(chain string) {
	if m == nil {
		return
	}
	m.matches.WithLabelValues(chain).Inc()
}

// RecordChainError counts a transport failure for the chain.
func (m *WorkerMetrics) RecordChainError(chain string) {
	if m == nil {
		return
	}
	m.chainErrors.WithLabelValues(chain).Inc()
}

// RecordTransitions counts batch sweep transitions by kind ("expired" or
// "payment_timeout").
func (m *WorkerMetrics) RecordTransitions(kind string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.transitions.WithLabelValues(kind).Add(float64(count))
}

// SetPending records the pending request count observed this cycle.
func (m *WorkerMetrics) SetPending(count int) {
	if m == nil {
		return
	}
	m.pendingGauge.Set(float64(count))
}
