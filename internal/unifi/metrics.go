package unifi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session-layer metrics. Registered on the default registry and served
// by the API server's /metrics endpoint.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unifi_controller_requests_total",
		Help: "Controller API requests by method and outcome.",
	}, []string{"method", "outcome"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "unifi_controller_request_duration_seconds",
		Help:    "Controller API request latency.",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unifi_cache_hits_total",
		Help: "Read cache hits.",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unifi_cache_misses_total",
		Help: "Read cache misses (absent or expired).",
	})
)
