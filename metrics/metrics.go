package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache-aside metrics
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Total number of cache-aside lookups",
		},
		[]string{"result"}, // result: hit, miss, error
	)

	CacheRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_request_duration_seconds",
			Help:    "Latency of cache-aside lookups including simulated source fetches",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"result"},
	)

	// Backend metrics
	BackendActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_backend_active",
			Help: "1 for the backend kind currently serving the cache",
		},
		[]string{"kind"},
	)

	NegotiationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_backend_negotiation_attempts_total",
			Help: "Backend probes made during negotiation",
		},
		[]string{"kind", "outcome"}, // outcome: success, failure
	)

	BackendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_backend_errors_total",
			Help: "Errors returned by the active backend",
		},
		[]string{"operation"},
	)

	// Traffic generator metrics
	TrafficTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traffic_ticks_total",
			Help: "Synthetic operations issued by the traffic generator",
		},
		[]string{"operation"},
	)

	TrafficSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "traffic_event_subscribers",
			Help: "Number of cache event subscribers",
		},
	)
)

// SetActiveBackend marks kind as the only active backend.
func SetActiveBackend(kind string, kinds ...string) {
	for _, k := range kinds {
		BackendActive.WithLabelValues(k).Set(0)
	}
	BackendActive.WithLabelValues(kind).Set(1)
}
