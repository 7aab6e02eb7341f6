package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saarthi_cache_events_total",
			Help: "Cache accesses by kind (hit, miss, stale_hit, fetch).",
		},
		[]string{"kind"},
	)

	fetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saarthi_fetch_requests_total",
			Help: "External fetch attempts by host and outcome.",
		},
		[]string{"host", "ok"},
	)

	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "saarthi_fetch_duration_seconds",
			Help:    "External fetch latency by host.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"host"},
	)

	modelCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saarthi_model_calls_total",
			Help: "Model provider calls by provider and outcome.",
		},
		[]string{"provider", "ok"},
	)

	modelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "saarthi_model_call_duration_seconds",
			Help:    "Model provider call latency.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"provider"},
	)
)

// Prometheus is a Sink backed by prometheus counters and histograms.
// Metric updates are in-memory increments, so no method blocks.
type Prometheus struct{}

// NewPrometheus returns the prometheus-backed sink. Metrics are registered
// once at package init via promauto.
func NewPrometheus() *Prometheus {
	return &Prometheus{}
}

func (*Prometheus) CacheEvent(kind CacheEventKind) {
	cacheEventsTotal.WithLabelValues(string(kind)).Inc()
}

func (*Prometheus) FetchEvent(host string, ok bool, duration time.Duration) {
	fetchRequestsTotal.WithLabelValues(host, strconv.FormatBool(ok)).Inc()
	fetchDuration.WithLabelValues(host).Observe(duration.Seconds())
}

func (*Prometheus) ModelEvent(provider string, ok bool, duration time.Duration) {
	modelCallsTotal.WithLabelValues(provider, strconv.FormatBool(ok)).Inc()
	modelCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}
