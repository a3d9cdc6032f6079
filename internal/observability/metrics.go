package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the service's Prometheus collectors on a private registry.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	httpErrors    *prometheus.CounterVec
	sweeps        *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	escalations   *prometheus.CounterVec
	unresolved    *prometheus.CounterVec
	notifications *prometheus.CounterVec
	requests      *prometheus.CounterVec
}

// NewMetrics registers collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpline_http_requests_total",
			Help: "Total number of HTTP requests handled",
		}, []string{"path", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "helpline_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpline_http_errors_total",
			Help: "Total number of HTTP requests that ended in a domain error",
		}, []string{"path", "method", "code"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpline_sweeps_total",
			Help: "Timeout sweeps grouped by outcome (completed, skipped, failed)",
		}, []string{"outcome"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "helpline_sweep_duration_seconds",
			Help:    "Duration of completed timeout sweeps",
			Buckets: prometheus.DefBuckets,
		}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpline_escalations_total",
			Help: "Escalations committed to the store",
		}, []string{"priority", "level"}),
		unresolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpline_unresolved_total",
			Help: "Requests that gave up, grouped by reason",
		}, []string{"reason"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpline_notifications_total",
			Help: "Notification deliveries grouped by outcome (delivered, failed, dropped)",
		}, []string{"outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpline_help_requests_created_total",
			Help: "Help requests created",
		}, []string{"priority"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.httpErrors,
		m.sweeps,
		m.sweepDuration,
		m.escalations,
		m.unresolved,
		m.notifications,
		m.requests,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.httpErrors.WithLabelValues(path, method, code).Inc()
}

// RecordSweep counts a sweep outcome; duration is observed only for completed sweeps.
func (m *Metrics) RecordSweep(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(outcome).Inc()
	if outcome == "completed" {
		m.sweepDuration.Observe(duration.Seconds())
	}
}

// RecordEscalation counts a committed escalation.
func (m *Metrics) RecordEscalation(priority string, level int) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(priority, strconv.Itoa(level)).Inc()
}

// RecordUnresolved counts a request that gave up.
func (m *Metrics) RecordUnresolved(reason string) {
	if m == nil {
		return
	}
	m.unresolved.WithLabelValues(reason).Inc()
}

// RecordNotification counts a delivery outcome.
func (m *Metrics) RecordNotification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

// RecordCreated counts a newly created help request.
func (m *Metrics) RecordCreated(priority string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(priority).Inc()
}
