package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the server's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	holdingsRows    prometheus.Gauge
	lastRefreshUnix prometheus.Gauge
	swapsTotal      *prometheus.CounterVec
}

// NewMetrics builds and registers the collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vaultdash",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vaultdash",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		holdingsRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vaultdash",
			Name:      "holdings_rows",
			Help:      "Rows in the latest holdings snapshot.",
		}),
		lastRefreshUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vaultdash",
			Name:      "last_refresh_timestamp_seconds",
			Help:      "Unix time of the last successful holdings refresh.",
		}),
		swapsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vaultdash",
			Name:      "swaps_total",
			Help:      "Submitted swap transactions by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.holdingsRows,
		m.lastRefreshUnix,
		m.swapsTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSnapshot records the state of the latest holdings snapshot.
func (m *Metrics) ObserveSnapshot(rows int, refreshedAt time.Time) {
	m.holdingsRows.Set(float64(rows))
	if !refreshedAt.IsZero() {
		m.lastRefreshUnix.Set(float64(refreshedAt.Unix()))
	}
}

// instrument wraps a handler with request counting and latency observation
// for a fixed route label.
func (m *Metrics) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		m.requestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
