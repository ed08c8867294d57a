package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsGauge tracks currently registered websocket connections.
	ConnectionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_connections",
		Help: "Number of live websocket connections",
	})

	// InboundFrames counts inbound frames by type.
	InboundFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_inbound_frames_total",
		Help: "Inbound websocket frames by frame type",
	}, []string{"type"})

	// BroadcastFanout counts frames pushed out to client connections.
	BroadcastFanout = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_broadcast_frames_total",
		Help: "Frames pushed to client connections",
	})

	// DroppedFrames counts outbound frames dropped on full send queues.
	DroppedFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_dropped_frames_total",
		Help: "Outbound frames dropped because a client send queue was full",
	})

	// AuthFailures counts failed auth frames by error code.
	AuthFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_auth_failures_total",
		Help: "Failed websocket authentications by error code",
	}, []string{"code"})

	// RateLimited counts rate-limit rejections.
	RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_rate_limited_total",
		Help: "Frames rejected by the per-user rate limiter",
	})

	// StaleEvictions counts connections closed by the heartbeat sweeper.
	StaleEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_stale_evictions_total",
		Help: "Connections closed for missing heartbeats",
	})

	// QueryDuration observes store query latency, fed by the sqlhooks driver.
	QueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_store_query_seconds",
		Help:    "Store query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsGauge,
		InboundFrames,
		BroadcastFanout,
		DroppedFrames,
		AuthFailures,
		RateLimited,
		StaleEvictions,
		QueryDuration,
	)
}

// Handler returns the prometheus scrape handler for mounting into gin.
func Handler() http.Handler {
	return promhttp.Handler()
}
