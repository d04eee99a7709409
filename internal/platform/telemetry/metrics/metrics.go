package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch kinds reported on fetch collectors.
const (
	FetchKindGraph    = "graph"
	FetchKindUsers    = "users"
	FetchKindPresence = "presence"
)

// Fetch outcomes reported on fetch collectors.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

var (
	// eventsPublished counts application-visible events by type
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialsync_events_published_total",
		Help: "Total published social events by type",
	}, []string{"type"})

	// fetchRequests counts batch fetches by kind and outcome
	fetchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialsync_fetch_requests_total",
		Help: "Total batch fetch calls by kind and outcome",
	}, []string{"kind", "outcome"})

	// fetchDuration tracks batch fetch latency
	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "socialsync_fetch_duration_seconds",
		Help:    "Batch fetch duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
	}, []string{"kind"})

	// doWorkDuration tracks one Manager.DoWork frame
	doWorkDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "socialsync_do_work_duration_seconds",
		Help:    "Manager DoWork duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14), // 10us to ~80ms
	})

	// queueDepth reports messages left in a graph inbox after a frame
	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "socialsync_ingest_queue_depth",
		Help: "Messages waiting in a social graph inbox after DoWork",
	}, []string{"local_user"})

	// pushReconnects counts real-time channel reconnects
	pushReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socialsync_push_reconnects_total",
		Help: "Total push channel reconnects",
	})
)

// EventPublished records one published event.
func EventPublished(eventType string) {
	eventsPublished.WithLabelValues(eventType).Inc()
}

// FetchObserved records one finished batch fetch.
func FetchObserved(kind, outcome string, elapsed time.Duration) {
	fetchRequests.WithLabelValues(kind, outcome).Inc()
	fetchDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// DoWorkObserved records the duration of one frame.
func DoWorkObserved(elapsed time.Duration) {
	doWorkDuration.Observe(elapsed.Seconds())
}

// QueueDepth sets the inbox depth for a local user.
func QueueDepth(localUserID string, depth int) {
	queueDepth.WithLabelValues(localUserID).Set(float64(depth))
}

// ForgetLocalUser drops per-user series once a local user is removed.
func ForgetLocalUser(localUserID string) {
	queueDepth.DeleteLabelValues(localUserID)
}

// PushReconnected records one push channel reconnect.
func PushReconnected() {
	pushReconnects.Inc()
}
