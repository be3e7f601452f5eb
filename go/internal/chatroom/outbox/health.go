package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// pendingAlertThreshold is the backlog size reported as an error.
const pendingAlertThreshold = 1000

type HealthStatus struct {
	Healthy           bool      `json:"healthy"`
	LastEventTime     time.Time `json:"last_event_time"`
	EventsProcessed   uint64    `json:"events_processed"`
	PendingEvents     int       `json:"pending_events"`
	DatabaseConnected bool      `json:"database_connected"`
	BusConnected      bool      `json:"bus_connected"`
	ListenerActive    bool      `json:"listener_active"`
	Errors            []string  `json:"errors"`
}

// Pinger checks a database connection
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStore is the storage side of the relay as seen by the health check
type HealthStore interface {
	Pinger
	CountUnsent(ctx context.Context) (int, error)
}

// RelayStats is the listener side of the relay as seen by the health check
type RelayStats interface {
	Stats() (uint64, time.Time)
	Running() bool
}

// BusConn reports the bus connection state; *nats.Conn satisfies it.
type BusConn interface {
	IsConnected() bool
}

type HealthChecker struct {
	relay     RelayStats
	store     HealthStore
	bus       BusConn
	threshold time.Duration // How long without events before unhealthy
}

func NewHealthChecker(relay RelayStats, store HealthStore, bus BusConn, threshold time.Duration) *HealthChecker {
	return &HealthChecker{
		relay:     relay,
		store:     store,
		bus:       bus,
		threshold: threshold,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	status.EventsProcessed, status.LastEventTime = h.relay.Stats()

	if err := h.store.Ping(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	if h.bus != nil {
		status.BusConnected = h.bus.IsConnected()
		if !status.BusConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "bus disconnected")
		}
	}

	status.ListenerActive = h.relay.Running()
	if !status.ListenerActive {
		status.Healthy = false
		status.Errors = append(status.Errors, "listener not active")
	}

	if status.DatabaseConnected {
		pending, err := h.store.CountUnsent(ctx)
		if err != nil {
			status.Errors = append(status.Errors, fmt.Sprintf("failed to count pending events: %v", err))
		} else {
			status.PendingEvents = pending
			if pending > pendingAlertThreshold {
				status.Errors = append(status.Errors, fmt.Sprintf("high pending event count: %d", pending))
			}
		}
	}

	// a stale relay only matters while there is a backlog
	if status.PendingEvents > 0 && !status.LastEventTime.IsZero() {
		since := time.Since(status.LastEventTime)
		if since > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no events processed for %s", since))
		}
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to write health response")
	}
}
