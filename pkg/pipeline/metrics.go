package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus instruments. All methods are
// nil-safe so the pipeline works without a metrics registry.
type Metrics struct {
	Processed          prometheus.Counter
	Blocked            prometheus.Counter
	ValidationFailures prometheus.Counter
	SystemErrors       prometheus.Counter
	ProcessingTime     prometheus.Histogram
}

// NewMetrics creates and registers the engine's instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_texts_processed_total",
			Help: "Total texts analyzed",
		}),
		Blocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_texts_blocked_total",
			Help: "Total texts judged unsafe",
		}),
		ValidationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_validation_failures_total",
			Help: "Total input validation failures",
		}),
		SystemErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_analysis_errors_total",
			Help: "Total internal analysis errors (fail-closed results)",
		}),
		ProcessingTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentinel_analysis_duration_seconds",
			Help:    "Analysis duration in seconds",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
	}

	reg.MustRegister(m.Processed, m.Blocked, m.ValidationFailures, m.SystemErrors, m.ProcessingTime)
	return m
}

func (m *Metrics) observeProcessed(seconds float64) {
	if m == nil {
		return
	}
	m.Processed.Inc()
	m.ProcessingTime.Observe(seconds)
}

func (m *Metrics) observeBlocked() {
	if m == nil {
		return
	}
	m.Blocked.Inc()
}

func (m *Metrics) observeValidationFailure() {
	if m == nil {
		return
	}
	m.ValidationFailures.Inc()
}

func (m *Metrics) observeSystemError() {
	if m == nil {
		return
	}
	m.SystemErrors.Inc()
}
