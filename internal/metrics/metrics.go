// Package metrics defines the Prometheus collectors for the dispatch service.
//
// Collectors are package-level and registered with the default registry via
// promauto, so any package can record into them without plumbing. The
// /metrics endpoint serves promhttp.Handler().
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_api_rate_limit_hits_total",
			Help: "Requests rejected by the per-caller token bucket",
		},
		[]string{"route"},
	)

	// Location tracking
	LocationUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_location_updates_total",
			Help: "Location submissions by outcome",
		},
		[]string{"result"}, // accepted, rate_limited, inactive_ride, not_found
	)

	TrackedRides = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_tracked_rides",
			Help: "Rides with a location sample in the store",
		},
	)

	LocationEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_location_evictions_total",
			Help: "Location samples removed from the store",
		},
		[]string{"reason"}, // expired, terminal
	)

	LocationEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_location_events_dropped_total",
			Help: "Location notifications dropped because the dispatch buffer was full",
		},
	)

	// Ride lifecycle
	RideTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_ride_transitions_total",
			Help: "Ride status transitions by target status and outcome",
		},
		[]string{"to", "result"}, // result: applied, rejected
	)

	// Realtime
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_websocket_connections",
			Help: "Currently connected websocket clients",
		},
	)

	WebSocketMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_websocket_messages_total",
			Help: "Messages queued to websocket clients by type",
		},
		[]string{"type"},
	)

	WebSocketSlowClients = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_websocket_slow_clients_total",
			Help: "Clients disconnected because their send buffer was full",
		},
	)

	EventBusPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_event_bus_publishes_total",
			Help: "Event bus publish attempts by outcome",
		},
		[]string{"topic", "result"}, // ok, error, breaker_open
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Audit
	AuditEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_audit_events_dropped_total",
			Help: "Audit events dropped because the write buffer was full",
		},
	)

	AuditEventsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_audit_events_written_total",
			Help: "Audit events persisted by type",
		},
		[]string{"type"},
	)
)

// RecordAPIRequest records one completed request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordLocationUpdate counts a location submission outcome.
func RecordLocationUpdate(result string) {
	LocationUpdates.WithLabelValues(result).Inc()
}

// RecordRideTransition counts a ride transition attempt.
func RecordRideTransition(to string, applied bool) {
	result := "applied"
	if !applied {
		result = "rejected"
	}
	RideTransitions.WithLabelValues(to, result).Inc()
}

// RecordPublish counts an event bus publish outcome.
func RecordPublish(topic, result string) {
	EventBusPublishes.WithLabelValues(topic, result).Inc()
}
