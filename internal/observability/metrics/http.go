package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	workflowActionsTotal *prometheus.CounterVec
	jobsEnqueuedTotal    *prometheus.CounterVec

	resilience *ResilienceMetrics
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "phase",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "phase",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "phase",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	workflowActionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "phase",
			Subsystem: "workflow",
			Name:      "actions_total",
			Help:      "Review and transmittal actions by outcome.",
		},
		[]string{"service", "action", "status"},
	)
	jobsEnqueuedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "phase",
			Subsystem: "jobs",
			Name:      "enqueued_total",
			Help:      "Background jobs published to the queue.",
		},
		[]string{"service", "kind"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		workflowActionsTotal,
		jobsEnqueuedTotal,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		workflowActionsTotal: workflowActionsTotal,
		jobsEnqueuedTotal:    jobsEnqueuedTotal,
		resilience:           newResilienceMetrics(service, registry),
	}
}

// Resilience returns the retry and breaker collectors served by this registry.
func (m *HTTPServerMetrics) Resilience() *ResilienceMetrics {
	return m.resilience
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses identifiers so label cardinality stays bounded.
func normalizePath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" {
		return path
	}
	switch parts[1] {
	case "jobs":
		parts[2] = "{job_id}"
	case "revisions":
		parts[2] = "{document_id}"
		if len(parts) > 3 {
			parts[3] = "{revision}"
		}
	case "transmittals", "outgoing":
		parts[2] = "{id}"
	case "staging":
		parts[2] = "{line_id}"
	case "notifications":
		parts[2] = "{user_id}"
	default:
		return path
	}
	return "/" + strings.Join(parts, "/")
}

func (m *HTTPServerMetrics) RecordWorkflowAction(service, action string, err error) {
	if action == "" {
		action = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.workflowActionsTotal.WithLabelValues(service, action, status).Inc()
}

func (m *HTTPServerMetrics) RecordJobEnqueued(service, kind string) {
	if kind == "" {
		kind = "unknown"
	}
	m.jobsEnqueuedTotal.WithLabelValues(service, kind).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
