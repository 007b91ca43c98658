// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

// Package metrics holds the Prometheus collectors for the collaboration core.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebSocket Metrics
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_ws_connections_active",
			Help: "Current number of registered WebSocket connections",
		},
	)

	WSEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_ws_events_total",
			Help: "WebSocket events by direction (in, out) and type",
		},
		[]string{"direction", "type"},
	)

	WSDroppedClients = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_ws_dropped_clients_total",
			Help: "Connections evicted because their send buffer was full",
		},
	)

	RoomJoinsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_room_joins_total",
			Help: "Project room join attempts by outcome (joined, ignored)",
		},
		[]string{"outcome"},
	)

	// Collaboration Metrics
	ChatMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_chat_messages_total",
			Help: "Chat messages appended across all projects",
		},
	)

	NotificationBumpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_notification_bumps_total",
			Help: "Notification bump operations by category",
		},
		[]string{"category"},
	)

	// Persistence Metrics
	PersistWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_persist_writes_total",
			Help: "Snapshot batch writes by result (success, failure, rejected)",
		},
		[]string{"result"},
	)

	PersistPendingKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_persist_pending_keys",
			Help: "Snapshot keys waiting to be written",
		},
	)

	// Mutation Bus Metrics
	MutationsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_mutations_processed_total",
			Help: "Mutations consumed from the bus by kind and result",
		},
		[]string{"kind", "result"},
	)

	// API Metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_http_request_duration_seconds",
			Help:    "REST request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordAPIRequest observes one REST request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

// RecordWSEvent counts one inbound or outbound socket event.
func RecordWSEvent(direction, eventType string) {
	WSEventsTotal.WithLabelValues(direction, eventType).Inc()
}

// RecordMutation counts one consumed bus mutation.
func RecordMutation(kind string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	MutationsProcessedTotal.WithLabelValues(kind, result).Inc()
}
