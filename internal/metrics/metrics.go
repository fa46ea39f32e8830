// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package metrics holds the Prometheus collectors for Marquee.
//
// Collectors are registered with the default registry on package init and
// exposed on /metrics by the API router.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_api_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marquee_api_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marquee_api_active_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// Connection Metrics
	WSConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marquee_ws_connections",
			Help: "Open websocket connections per namespace",
		},
		[]string{"namespace"},
	)

	WSAuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_ws_auth_failures_total",
			Help: "Connections rejected at connect because the bearer credential was missing or invalid",
		},
		[]string{"namespace"},
	)

	WSInboundEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_ws_inbound_events_total",
			Help: "Inbound client events by namespace, event and outcome",
		},
		[]string{"namespace", "event", "outcome"},
	)

	// Delivery Metrics
	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_events_emitted_total",
			Help: "Outbound events handed to connection send buffers",
		},
		[]string{"namespace", "event"},
	)

	DeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_delivery_failures_total",
			Help: "Failed deliveries by namespace and reason (overflow, no_recipients, encode)",
		},
		[]string{"namespace", "reason"},
	)

	OverflowDisconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_overflow_disconnects_total",
			Help: "Connections force-closed because their send buffer was full",
		},
		[]string{"namespace"},
	)

	// Presence Metrics
	PresenceTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_presence_transitions_total",
			Help: "Presence status transitions by resulting status",
		},
		[]string{"status"},
	)

	PresenceMirrorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_presence_mirror_errors_total",
			Help: "Shared presence mirror failures by operation",
		},
		[]string{"operation"},
	)

	PresenceLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_presence_lookups_total",
			Help: "Presence lookups by resolving tier (local, mirror, default)",
		},
		[]string{"tier"},
	)

	// Notification Metrics
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_notifications_created_total",
			Help: "Persisted notifications by type",
		},
		[]string{"type"},
	)

	NotificationsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marquee_notifications_self_suppressed_total",
			Help: "Notifications dropped because recipient and actor were the same user",
		},
	)

	// Activity Metrics
	ActivitiesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_activities_recorded_total",
			Help: "Recorded activities by type",
		},
		[]string{"type"},
	)

	FanoutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marquee_fanout_duration_seconds",
			Help:    "Time to invalidate caches and push one activity to all followers",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	FanoutRecipients = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marquee_fanout_recipients",
			Help:    "Followers reached per activity fan-out",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	FeedCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_feed_cache_requests_total",
			Help: "Feed page cache lookups by kind (feed, discover) and result (hit, miss, error)",
		},
		[]string{"kind", "result"},
	)

	FeedCacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marquee_feed_cache_invalidations_total",
			Help: "Per-user feed cache invalidations",
		},
	)

	// Messaging Metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marquee_messages_sent_total",
			Help: "Direct messages persisted",
		},
	)

	ConversationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marquee_conversations_created_total",
			Help: "Direct conversations created",
		},
	)

	// Relay Metrics
	RelayPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marquee_relay_published_total",
			Help: "Envelopes published to other instances",
		},
	)

	RelayReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_relay_received_total",
			Help: "Envelopes received from the relay by outcome (delivered, own, invalid)",
		},
		[]string{"outcome"},
	)

	RelayErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_relay_errors_total",
			Help: "Relay failures by operation",
		},
		[]string{"operation"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marquee_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Async Queue Metrics
	AsyncQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marquee_async_queue_depth",
			Help: "Post-commit tasks waiting for a worker",
		},
	)

	AsyncTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_async_tasks_total",
			Help: "Post-commit tasks by name and outcome (ok, error, dropped, panic)",
		},
		[]string{"task", "outcome"},
	)
)

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks in-flight API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordDeliveryFailure counts one failed delivery.
func RecordDeliveryFailure(namespace, reason string) {
	DeliveryFailures.WithLabelValues(namespace, reason).Inc()
}

// RecordOverflowDisconnect counts a forced close after a full send buffer.
// It also counts as a delivery failure.
func RecordOverflowDisconnect(namespace string) {
	OverflowDisconnects.WithLabelValues(namespace).Inc()
	RecordDeliveryFailure(namespace, "overflow")
}

// RecordFanout records one activity fan-out.
func RecordFanout(duration time.Duration, recipients int) {
	FanoutDuration.Observe(duration.Seconds())
	FanoutRecipients.Observe(float64(recipients))
}

// RecordFeedCache records a page cache lookup result.
func RecordFeedCache(kind, result string) {
	FeedCacheRequests.WithLabelValues(kind, result).Inc()
}

// RecordAsyncTask records the outcome of one post-commit task.
func RecordAsyncTask(task string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	AsyncTasks.WithLabelValues(task, outcome).Inc()
}
