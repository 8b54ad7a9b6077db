// Package metrics provides Prometheus instrumentation for the battle engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BattlesCreated counts battles opened.
	BattlesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_battles_created_total",
		Help: "Total number of battles created",
	})

	// BattlesJoined counts successful joins.
	BattlesJoined = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_battles_joined_total",
		Help: "Total number of battles joined",
	})

	// BattlesResolved counts settlements, partitioned by winning side.
	BattlesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_battles_resolved_total",
		Help: "Total number of battles resolved",
	}, []string{"winner"})

	// BattlesCancelled counts creator cancellations of waiting battles.
	BattlesCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_battles_cancelled_total",
		Help: "Total number of battles cancelled before a join",
	})

	// TransitionConflicts counts lifecycle races lost (join/resolve/cancel
	// observing a post-transition state).
	TransitionConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_transition_conflicts_total",
		Help: "Lifecycle transitions rejected because of a lost race",
	}, []string{"op"})

	// OpenBattles tracks the number of battles visible on the open list.
	OpenBattles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_open_battles",
		Help: "Number of battles currently waiting or active",
	})

	// PayoutTotal accumulates payout value across settlements.
	PayoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_payout_total",
		Help: "Cumulative payout value across all settlements",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arena_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the route surface is small and
		// battle IDs are the only variable segment.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
