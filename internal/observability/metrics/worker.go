package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics implements jobs.Observer.
type WorkerMetrics struct {
	service  string
	registry *prometheus.Registry

	jobTotal    *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobInFlight *prometheus.GaugeVec
	queueLag    *prometheus.HistogramVec

	resilience *ResilienceMetrics
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	jobTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "phase",
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Total finished jobs by kind and status.",
		},
		[]string{"service", "kind", "status"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "phase",
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "Job duration in seconds by kind and status.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"service", "kind", "status"},
	)
	jobInFlight := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "phase",
			Subsystem: "worker",
			Name:      "jobs_in_flight",
			Help:      "Number of running jobs by kind.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
		[]string{"kind"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "phase",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between job enqueue and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "kind"},
	)

	registry.MustRegister(jobTotal, jobDuration, jobInFlight, queueLag)

	return &WorkerMetrics{
		service:     service,
		registry:    registry,
		jobTotal:    jobTotal,
		jobDuration: jobDuration,
		jobInFlight: jobInFlight,
		queueLag:    queueLag,
		resilience:  newResilienceMetrics(service, registry),
	}
}

func (m *WorkerMetrics) Resilience() *ResilienceMetrics {
	return m.resilience
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartJob(kind string) {
	m.jobInFlight.WithLabelValues(kind).Inc()
}

func (m *WorkerMetrics) FinishJob(kind string, duration time.Duration, err error) {
	m.jobInFlight.WithLabelValues(kind).Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.jobTotal.WithLabelValues(m.service, kind, status).Inc()
	m.jobDuration.WithLabelValues(m.service, kind, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(kind string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service, kind).Observe(lag.Seconds())
}
