package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghostchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ghostchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghostchat_messages_sent_total",
			Help: "Total messages relayed",
		},
		[]string{"type"}, // "text" or "image"
	)

	ExpiryNotices = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghostchat_expiry_notices_total",
			Help: "Total burn-after-reading expiry notices broadcast",
		},
	)

	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ghostchat_connected_clients",
			Help: "Currently connected WebSocket clients",
		},
	)

	ActiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ghostchat_active_rooms",
			Help: "Rooms with at least one participant",
		},
	)

	Participants = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ghostchat_participants",
			Help: "Total tracked participants across rooms",
		},
	)

	// Cleanup metrics
	BlobsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghostchat_blobs_deleted_total",
			Help: "Blobs removed, by reason",
		},
		[]string{"reason"}, // "burn", "ttl", "janitor", "manual"
	)

	StoreKeysSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghostchat_store_keys_swept_total",
			Help: "Expired store keys removed by sweeps",
		},
	)

	// Infrastructure metrics
	MirrorFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghostchat_mirror_failures_total",
			Help: "Durable store mirror writes that failed",
		},
	)
)
