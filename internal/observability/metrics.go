package observability

import (
	"errors"
	"strings"
	"time"

	"diary/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EntryOperations counts access-controlled entry operations by outcome.
	EntryOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diary_entry_operations_total",
		Help: "Entry operations by operation and outcome",
	}, []string{"operation", "outcome"})

	// AuthEvents counts register, login, logout and refresh results.
	AuthEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diary_auth_events_total",
		Help: "Authentication events by type",
	}, []string{"event"})

	// DatabaseQueryLatency records store query latency by operation.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "diary_db_query_duration_seconds",
		Help:    "Store query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// RedisErrors counts Redis errors by operation type.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diary_redis_errors_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// CacheLookups counts cache-aside hits and misses.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diary_cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	// WebSocketConnections is the gauge of open change-event connections.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "diary_ws_connections",
		Help: "Number of active WebSocket connections",
	})

	// WebSocketDrops counts events dropped because a client's send buffer was full.
	WebSocketDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "diary_ws_dropped_events_total",
		Help: "Change events dropped due to backpressure",
	})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// Outcome reduces an error to a low-cardinality metric label: "ok", the
// lowercased AppError code, or "error".
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) && appErr.Code != models.CodeInternal {
		return strings.ToLower(appErr.Code)
	}
	return "error"
}
