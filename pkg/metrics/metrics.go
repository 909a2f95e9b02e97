package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	BidsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bids_total",
			Help: "Total number of accepted bids",
		},
		[]string{"auction_id"},
	)

	BidRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bid_rejections_total",
			Help: "Bid rejections by error code",
		},
		[]string{"code"},
	)

	BidLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bid_latency_seconds",
			Help:    "Latency of bid placement operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"auction_id"},
	)

	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Normalized webhook events by processor and kind",
		},
		[]string{"processor", "kind"},
	)

	SettlementTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_transitions_total",
			Help: "Applied order state transitions",
		},
		[]string{"from", "event"},
	)

	SettlementDuplicatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_duplicates_total",
			Help: "Settlement events absorbed as idempotent replays",
		},
		[]string{"processor"},
	)

	IllegalTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "illegal_transitions_total",
			Help: "Settlement events rejected as illegal transitions",
		},
		[]string{"from", "event"},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Current number of active WebSocket connections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		BidsTotal,
		BidRejectionsTotal,
		BidLatencySeconds,
		WebhookEventsTotal,
		SettlementTransitionsTotal,
		SettlementDuplicatesTotal,
		IllegalTransitionsTotal,
		WSConnections,
	)
}

// ObserveHTTPRequest records metrics for an HTTP request
func ObserveHTTPRequest(method, path, status string, startedAt time.Time) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDurationSeconds.WithLabelValues(method, path, status).Observe(time.Since(startedAt).Seconds())
}
