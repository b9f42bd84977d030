// Package metrics holds the transport-level Prometheus metrics. Engine
// metrics live next to the engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds HTTP metrics for the application.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	ThrottledTotal  prometheus.Counter
}

// New creates and registers all HTTP metrics.
func New() *Metrics {
	return &Metrics{
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "covault_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "covault_http_requests_total",
			Help: "HTTP requests by route, method and status class",
		}, []string{"route", "method", "status"}),
		ThrottledTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "covault_http_throttled_total",
			Help: "Requests rejected by the abuse guard",
		}),
	}
}

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(route, method, status string, start time.Time) {
	m.RequestDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	m.RequestsTotal.WithLabelValues(route, method, status).Inc()
}
