package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration measures HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// GatewayOperations counts gateway calls by operation and status
	GatewayOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_operations_total",
			Help: "Total number of remote data gateway operations",
		},
		[]string{"operation", "status"},
	)

	// GatewayLatency measures gateway call latency
	GatewayLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_latency_seconds",
			Help:    "Remote data gateway latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation"},
	)

	// CacheLookups counts query cache lookups by result (hit, miss, stale, error)
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Total number of query cache lookups",
		},
		[]string{"cache", "result"},
	)

	// CacheInvalidations counts invalidations of the query cache
	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_invalidations_total",
			Help: "Total number of query cache invalidations",
		},
		[]string{"cache"},
	)

	// RedisOperations counts shared cache tier operations
	RedisOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total number of Redis operations",
		},
		[]string{"operation", "status"},
	)

	// ChangeEvents counts row change notifications by type
	ChangeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "change_events_total",
			Help: "Total number of row change notifications received",
		},
		[]string{"type"},
	)

	// LiveSubscribers is the number of callbacks on the live bus
	LiveSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "live_subscribers",
			Help: "Number of live bus subscribers",
		},
	)

	// WebsocketSessions is the number of open live websocket sessions
	WebsocketSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_sessions",
			Help: "Number of open live websocket sessions",
		},
	)

	// SeededReadings counts readings written by the seed tool
	SeededReadings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seeded_readings_total",
			Help: "Total number of simulated readings written",
		},
	)
)
