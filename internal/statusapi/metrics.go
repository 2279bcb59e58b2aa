package statusapi

import "github.com/prometheus/client_golang/prometheus"

// metrics are the outcome counters/histograms the status API exposes on
// /metrics, named per the solver's DOMAIN STACK table.
type metrics struct {
	outcomesTotal      *prometheus.CounterVec
	quoteDurationHisto prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solver_outcomes_total",
			Help: "Count of trade attempts by terminal outcome.",
		}, []string{"outcome"}),
		quoteDurationHisto: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "solver_quote_duration_seconds",
			Help:    "Wall-clock time spent quoting routers during selection.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.outcomesTotal, m.quoteDurationHisto)
	return m
}

// ObserveOutcome increments the outcome counter for the given terminal
// label (e.g. "confirmed", "reverted", "timedOut", "no_opportunity").
func (m *metrics) ObserveOutcome(outcome string) {
	m.outcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveQuoteDuration records one quoting pass's wall-clock duration in
// seconds.
func (m *metrics) ObserveQuoteDuration(seconds float64) {
	m.quoteDurationHisto.Observe(seconds)
}
