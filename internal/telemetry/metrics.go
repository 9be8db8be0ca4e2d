// Package telemetry defines the Prometheus instruments for distance
// resolution and the HTTP server.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every instrument the module records. All methods are safe
// to call on a nil *Metrics, so components can run without telemetry.
type Metrics struct {
	CacheLookups      *prometheus.CounterVec
	AnomalyFallbacks  prometheus.Counter
	CallSiteFallbacks prometheus.Counter
	RouteLookups      *prometheus.CounterVec
	RouteDuration     *prometheus.HistogramVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// NewMetrics creates the instruments and registers them with reg. Pass a
// fresh prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "distance_cache_lookups_total",
			Help: "Distance cache lookups by result (hit or miss).",
		}, []string{"result"}),
		AnomalyFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "distance_anomaly_fallbacks_total",
			Help: "Route results rejected as implausible and replaced by the fallback distance.",
		}),
		CallSiteFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "distance_error_fallbacks_total",
			Help: "Route lookups that failed and were replaced by the fallback distance.",
		}),
		RouteLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "route_lookups_total",
			Help: "Route lookups by provider and outcome.",
		}, []string{"provider", "outcome"}),
		RouteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "route_lookup_duration_seconds",
			Help:    "Route lookup latency by provider.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.CacheLookups,
		m.AnomalyFallbacks,
		m.CallSiteFallbacks,
		m.RouteLookups,
		m.RouteDuration,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheLookups.WithLabelValues("hit").Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheLookups.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) AnomalyFallback() {
	if m != nil {
		m.AnomalyFallbacks.Inc()
	}
}

func (m *Metrics) ErrorFallback() {
	if m != nil {
		m.CallSiteFallbacks.Inc()
	}
}

// ObserveRoute records one provider call.
func (m *Metrics) ObserveRoute(provider string, took time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.RouteLookups.WithLabelValues(provider, outcome).Inc()
	m.RouteDuration.WithLabelValues(provider).Observe(took.Seconds())
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
