// Package metrics exposes Prometheus collectors for the HTTP surface and feed engagement.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many instances as they need.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	httpInFlight  prometheus.Gauge
	engagement    *prometheus.CounterVec
	streamClients prometheus.Gauge
	uploadsStored *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linkup",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "linkup",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "linkup",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being served.",
		}),
		engagement: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linkup",
			Subsystem: "feed",
			Name:      "engagement_total",
			Help:      "Feed engagement actions such as post, like, unlike, comment and repost.",
		}, []string{"action"}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "linkup",
			Subsystem: "feed",
			Name:      "stream_clients",
			Help:      "Connected feed stream clients.",
		}),
		uploadsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linkup",
			Subsystem: "uploads",
			Name:      "stored_total",
			Help:      "Upload attempts by outcome.",
		}, []string{"outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linkup",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Post list cache lookups by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.httpInFlight,
		m.engagement,
		m.streamClients,
		m.uploadsStored,
		m.cacheLookups,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records one finished request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// InFlight adjusts the in-flight gauge by delta.
func (m *Metrics) InFlight(delta float64) {
	if m == nil {
		return
	}
	m.httpInFlight.Add(delta)
}

// Engagement counts a feed action.
func (m *Metrics) Engagement(action string) {
	if m == nil {
		return
	}
	m.engagement.WithLabelValues(action).Inc()
}

// StreamClients adjusts the connected stream client gauge by delta.
func (m *Metrics) StreamClients(delta float64) {
	if m == nil {
		return
	}
	m.streamClients.Add(delta)
}

// Upload counts an upload attempt with its outcome (stored, rejected, failed).
func (m *Metrics) Upload(outcome string) {
	if m == nil {
		return
	}
	m.uploadsStored.WithLabelValues(outcome).Inc()
}

// CacheLookup counts a cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
