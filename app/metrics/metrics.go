package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var CapturesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "birdbrain_captures_published_total",
	Help: "Captures published on the in-document event channel",
}, []string{"category"})

var CaptureFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "birdbrain_capture_failures_total",
	Help: "Matched responses that could not be read or parsed",
}, []string{"stage"})

var EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "birdbrain_events_dropped_total",
	Help: "Events dropped because the channel buffer was full",
})

var APIRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "birdbrain_api_request_duration_seconds",
	Help:    "Duration of calls to the ingestion API",
	Buckets: prometheus.DefBuckets,
}, []string{"endpoint", "outcome"})

var Refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "birdbrain_refreshes_total",
	Help: "Incomplete-cache refresh attempts",
}, []string{"trigger", "outcome"})

var IncompleteRecords = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "birdbrain_incomplete_records",
	Help: "Records currently held in the incomplete cache",
})

var Hydrations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "birdbrain_hydrations_total",
	Help: "Hydration attempts made by relays",
}, []string{"outcome"})

var Ingests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "birdbrain_ingests_total",
	Help: "Bookmark timeline pages forwarded for ingestion",
}, []string{"outcome"})
