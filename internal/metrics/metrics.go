// Package metrics provides Prometheus instrumentation for the gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UpstreamBuckets covers vendor latencies from 100ms to 2m.
var UpstreamBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts HTTP requests by route, method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amazonq_proxy_requests_total",
			Help: "Total requests",
		},
		[]string{"route", "method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "amazonq_proxy_request_duration_seconds",
			Help:    "Request duration",
			Buckets: UpstreamBuckets,
		},
		[]string{"route"},
	)

	// ActiveStreams tracks streaming responses in flight.
	ActiveStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "amazonq_proxy_streams_active",
			Help: "Active streaming responses",
		},
	)

	// UpstreamRequestsTotal counts calls to the vendor chat endpoint by HTTP status.
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amazonq_proxy_upstream_requests_total",
			Help: "Upstream requests",
		},
		[]string{"status"},
	)

	// TokenRefreshesTotal counts token refresh attempts by outcome.
	TokenRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amazonq_proxy_token_refreshes_total",
			Help: "Token refreshes",
		},
		[]string{"outcome"},
	)

	// FragmentsTotal counts content fragments forwarded to streaming clients.
	FragmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amazonq_proxy_stream_fragments_total",
			Help: "Stream fragments emitted",
		},
		[]string{"format"},
	)

	// BufferTruncationsTotal counts extractor buffer overflows that discarded data.
	BufferTruncationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "amazonq_proxy_stream_buffer_truncations_total",
			Help: "Extractor buffer truncations",
		},
	)
)

// Token refresh outcomes.
const (
	RefreshOK       = "ok"
	RefreshAdopted  = "adopted"
	RefreshFailed   = "failed"
	RefreshNotReady = "missing_credentials"
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		ActiveStreams,
		UpstreamRequestsTotal,
		TokenRefreshesTotal,
		FragmentsTotal,
		BufferTruncationsTotal,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
