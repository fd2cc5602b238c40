package metrics

import "github.com/prometheus/client_golang/prometheus"

var breakerStates = map[string]float64{"closed": 0, "half-open": 1, "open": 2}

// ResilienceMetrics implements resilience.Observer.
type ResilienceMetrics struct {
	service      string
	retriesTotal *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

func newResilienceMetrics(service string, registry prometheus.Registerer) *ResilienceMetrics {
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "phase",
			Subsystem: "external",
			Name:      "retries_total",
			Help:      "Retries scheduled for calls to external systems.",
		},
		[]string{"service", "operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "phase",
			Subsystem: "external",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per operation: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"service", "operation"},
	)
	registry.MustRegister(retriesTotal, breakerState)
	return &ResilienceMetrics{service: service, retriesTotal: retriesTotal, breakerState: breakerState}
}

func (m *ResilienceMetrics) RetryScheduled(operation string, _ int) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *ResilienceMetrics) BreakerStateChanged(operation, state string) {
	value, ok := breakerStates[state]
	if !ok {
		return
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}
