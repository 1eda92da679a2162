package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection metrics
var (
	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandesh_connections_total",
			Help: "Total number of connections established",
		},
		[]string{"protocol"},
	)

	ConnectionsCurrent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sandesh_connections_current",
			Help: "Current number of active connections",
		},
		[]string{"protocol"},
	)
)

// Protocol command metrics
var (
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandesh_commands_total",
			Help: "Total number of protocol commands processed",
		},
		[]string{"protocol", "command", "status"},
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sandesh_command_duration_seconds",
			Help:    "Duration of protocol command processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"protocol", "command"},
	)

	MessageSizeBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sandesh_message_size_bytes",
			Help:    "Size of accepted message payloads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
		[]string{"protocol"},
	)
)

// Delivery metrics
var (
	DeliveryOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandesh_delivery_outcomes_total",
			Help: "Per-recipient delivery outcomes",
		},
		[]string{"outcome"},
	)

	SendAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandesh_send_attempts_total",
			Help: "Outbound send path attempts by result",
		},
		[]string{"status"},
	)

	StorageRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandesh_storage_retries_total",
			Help: "Storage writes that hit transient contention and were retried",
		},
		[]string{"operation"},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandesh_rate_limit_rejections_total",
			Help: "Operations rejected by the sliding-window rate limiter",
		},
		[]string{"scope"},
	)
)

// Database metrics
var (
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandesh_db_queries_total",
			Help: "Total number of database queries executed",
		},
		[]string{"operation", "status"},
	)

	DBPoolAcquiredConns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sandesh_db_pool_acquired_conns",
			Help: "Number of currently acquired database connections",
		},
	)

	DBPoolTotalConns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sandesh_db_pool_total_conns",
			Help: "Total number of database connections in the pool",
		},
	)
)
