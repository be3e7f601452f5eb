// Package metrics provides Prometheus metrics for the chat room services.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the chat room services.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	TicksTotal             prometheus.Counter
	TrackedRooms           prometheus.Gauge
	PhaseTransitionsTotal  *prometheus.CounterVec
	InvalidTimestampsTotal prometheus.Counter
	ConnectionsActive      prometheus.Gauge
	BroadcastDroppedTotal  prometheus.Counter
	OutboxPublishedTotal   *prometheus.CounterVec
	OutboxPublishDuration  *prometheus.HistogramVec
	OutboxPending          prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		TicksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatroom_countdown_ticks_total",
				Help: "Total number of countdown scheduler ticks.",
			},
		),
		TrackedRooms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatroom_tracked_rooms",
				Help: "Number of open rooms tracked by the countdown scheduler.",
			},
		),
		PhaseTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatroom_phase_transitions_total",
				Help: "Total phase transitions observed, by target phase.",
			},
			[]string{"to_phase"},
		),
		InvalidTimestampsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatroom_invalid_timestamps_total",
				Help: "Timeline evaluations that fell back to the default state because created_at was invalid.",
			},
		),
		ConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatroom_gateway_connections_active",
				Help: "Number of open websocket connections.",
			},
		),
		BroadcastDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatroom_gateway_broadcast_dropped_total",
				Help: "Broadcast messages dropped because the broadcast channel was full.",
			},
		),
		OutboxPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatroom_outbox_published_total",
				Help: "Outbox events published to the message bus, by event type and status.",
			},
			[]string{"event_type", "status"},
		),
		OutboxPublishDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatroom_outbox_publish_duration_seconds",
				Help:    "Outbox publish duration by event type.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),
		OutboxPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatroom_outbox_pending_events",
				Help: "Unsent outbox events seen by the last fallback poll.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.TicksTotal)
	reg.MustRegister(m.TrackedRooms)
	reg.MustRegister(m.PhaseTransitionsTotal)
	reg.MustRegister(m.InvalidTimestampsTotal)
	reg.MustRegister(m.ConnectionsActive)
	reg.MustRegister(m.BroadcastDroppedTotal)
	reg.MustRegister(m.OutboxPublishedTotal)
	reg.MustRegister(m.OutboxPublishDuration)
	reg.MustRegister(m.OutboxPending)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordTick increments the tick counter and sets the tracked room gauge.
func (m *Metrics) RecordTick(trackedRooms int) {
	if m == nil {
		return
	}
	m.TicksTotal.Inc()
	m.TrackedRooms.Set(float64(trackedRooms))
}

// RecordPhaseTransition increments the transition counter for the target phase.
func (m *Metrics) RecordPhaseTransition(toPhase string) {
	if m == nil {
		return
	}
	m.PhaseTransitionsTotal.WithLabelValues(toPhase).Inc()
}

// RecordInvalidTimestamp increments the invalid created_at counter.
func (m *Metrics) RecordInvalidTimestamp() {
	if m == nil {
		return
	}
	m.InvalidTimestampsTotal.Inc()
}

// SetConnections sets the open websocket connection gauge.
func (m *Metrics) SetConnections(count int) {
	if m == nil {
		return
	}
	m.ConnectionsActive.Set(float64(count))
}

// RecordBroadcastDropped increments the dropped broadcast counter.
func (m *Metrics) RecordBroadcastDropped() {
	if m == nil {
		return
	}
	m.BroadcastDroppedTotal.Inc()
}

// RecordPublish records one outbox publish attempt.
func (m *Metrics) RecordPublish(eventType string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.OutboxPublishedTotal.WithLabelValues(eventType, status).Inc()
	m.OutboxPublishDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

// SetOutboxPending sets the pending outbox gauge.
func (m *Metrics) SetOutboxPending(count int) {
	if m == nil {
		return
	}
	m.OutboxPending.Set(float64(count))
}
