package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the service collectors and the registry they are exposed
// from. It implements ports.AuthMetrics and ports.NoticeMetrics.
type Metrics struct {
	registry *prometheus.Registry

	authFailures  *prometheus.CounterVec
	authSuccesses *prometheus.CounterVec
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	notices       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		authFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "desiauth_auth_failures_total",
				Help: "Rejected credentials by internal failure reason",
			},
			[]string{"reason"},
		),
		authSuccesses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "desiauth_auth_successes_total",
				Help: "Resolved credentials by authentication type",
			},
			[]string{"auth_type"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "desiauth_http_requests_total",
				Help: "HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "desiauth_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		notices: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "desiauth_notice_deliveries_total",
				Help: "Account notice delivery attempts by outcome",
			},
			[]string{"outcome"},
		),
	}
	m.registry.MustRegister(
		m.authFailures,
		m.authSuccesses,
		m.requests,
		m.duration,
		m.notices,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) AuthSucceeded(authType string) {
	m.authSuccesses.WithLabelValues(authType).Inc()
}

func (m *Metrics) AuthFailed(reason string) {
	m.authFailures.WithLabelValues(reason).Inc()
}

// NoticeOutcome counts one delivery attempt: delivered, failed or dead.
func (m *Metrics) NoticeOutcome(outcome string) {
	m.notices.WithLabelValues(outcome).Inc()
}

// ObserveRequest records one served request. route is the router pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
