package limits

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for admission control.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Admission decisions
	decisions  *prometheus.CounterVec
	violations *prometheus.CounterVec
	failOpen   *prometheus.CounterVec

	// Counter store
	storeErrors   *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
	storeKeys     prometheus.Gauge
	swept         prometheus.Counter

	// Administrative operations
	resets prometheus.Counter
}

// NewMetrics registers the admission collectors on reg. A nil reg uses the
// default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_admission_decisions_total",
				Help: "Total number of admission decisions by outcome",
			},
			[]string{"policy", "tier", "decision"},
		),

		violations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_admission_window_violations_total",
				Help: "Total number of requests that exceeded a window",
			},
			[]string{"policy", "window"},
		),

		failOpen: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_admission_fail_open_total",
				Help: "Total number of requests allowed because the counter store failed",
			},
			[]string{"reason"},
		),

		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_admission_store_errors_total",
				Help: "Total number of counter store errors",
			},
			[]string{"operation"},
		),

		storeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentinel_admission_store_duration_seconds",
				Help:    "Duration of counter store operations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15), // 10µs to 160ms
			},
			[]string{"operation"},
		),

		storeKeys: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentinel_admission_store_keys",
				Help: "Number of live window keys in the counter store, where known",
			},
		),

		swept: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinel_admission_store_swept_total",
				Help: "Total number of expired window keys removed by the janitor",
			},
		),

		resets: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinel_admission_resets_total",
				Help: "Total number of administrative client resets",
			},
		),
	}
}

// RecordDecision records the outcome of one admission decision.
func (m *Metrics) RecordDecision(d *Decision) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(d.Policy, string(d.Tier), d.Outcome()).Inc()

	for _, r := range d.Windows {
		if r.Violated {
			m.violations.WithLabelValues(d.Policy, r.Window.Name).Inc()
		}
	}
}

// RecordFailOpen records a request allowed because of a store failure.
func (m *Metrics) RecordFailOpen(reason string) {
	if m == nil {
		return
	}
	m.failOpen.WithLabelValues(reason).Inc()
}

// RecordStoreOperation records the latency and outcome of a store call.
func (m *Metrics) RecordStoreOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.storeDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.storeErrors.WithLabelValues(operation).Inc()
	}
}

// UpdateStoreKeys sets the live key gauge.
func (m *Metrics) UpdateStoreKeys(n int) {
	if m == nil {
		return
	}
	m.storeKeys.Set(float64(n))
}

// RecordSweep records keys removed by a sweep.
func (m *Metrics) RecordSweep(removed int) {
	if m == nil {
		return
	}
	m.swept.Add(float64(removed))
}

// RecordReset records an administrative reset.
func (m *Metrics) RecordReset() {
	if m == nil {
		return
	}
	m.resets.Inc()
}
