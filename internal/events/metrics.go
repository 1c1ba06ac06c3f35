package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsInvalidated = promauto.NewCounter(prometheus.CounterOpts{
	Name: "unifi_event_cache_invalidations_total",
	Help: "Cache invalidations triggered by controller push events.",
})
