// Package observability wires Prometheus metrics for the service.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	authzDenials    *prometheus.CounterVec
	banEnforcements prometheus.Counter
	impersonations  *prometheus.CounterVec
}

// NewMetrics initializes the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "better_auth_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "better_auth_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	denials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "better_auth_authz_denials_total",
		Help: "Authorization denials by operation.",
	}, []string{"operation"})
	bans := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "better_auth_ban_enforcements_total",
		Help: "Session creations rejected by the ban gate.",
	})
	impersonations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "better_auth_impersonations_total",
		Help: "Impersonation transitions by kind (start/stop).",
	}, []string{"kind"})
	registry.MustRegister(requests, duration, denials, bans, impersonations)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		authzDenials:    denials,
		banEnforcements: bans,
		impersonations:  impersonations,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// AuthzDenied records an authorization denial for the operation.
func (m *Metrics) AuthzDenied(operation string) {
	if m == nil {
		return
	}
	m.authzDenials.WithLabelValues(operation).Inc()
}

// BanEnforced records a session creation rejected by the ban gate.
func (m *Metrics) BanEnforced() {
	if m == nil {
		return
	}
	m.banEnforcements.Inc()
}

// ImpersonationStarted records a start transition.
func (m *Metrics) ImpersonationStarted() {
	if m == nil {
		return
	}
	m.impersonations.WithLabelValues("start").Inc()
}

// ImpersonationStopped records a stop transition.
func (m *Metrics) ImpersonationStopped() {
	if m == nil {
		return
	}
	m.impersonations.WithLabelValues("stop").Inc()
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
