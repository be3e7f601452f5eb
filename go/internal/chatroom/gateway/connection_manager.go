package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dice-talk/dicetalk/go/internal/chatroom/events"
	"github.com/dice-talk/dicetalk/go/internal/metrics"
)

// ConnectionManager manages websocket connections per room
type ConnectionManager struct {
	// Connection pools organized by room ID
	roomConnections map[uuid.UUID]map[*Connection]bool
	total           int
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	metrics  *metrics.Metrics

	broadcastCh chan BroadcastMessage
}

// Connection represents a websocket connection to a room member
type Connection struct {
	ID       string
	MemberID string
	RoomID   uuid.UUID
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for websocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	BroadcastBuffer int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is one event queued for a room
type BroadcastMessage struct {
	RoomID uuid.UUID
	Event  *RoomEvent
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		BroadcastBuffer: 1000,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig, m *metrics.Metrics) *ConnectionManager {
	return &ConnectionManager{
		roomConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		metrics:     m,
		broadcastCh: make(chan BroadcastMessage, config.BroadcastBuffer),
	}
}

// Start processes broadcast messages until ctx is done
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a websocket bound to roomID.
// On failure the upgrader has already written the HTTP error.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, memberID string, roomID uuid.UUID) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		MemberID:    memberID,
		RoomID:      roomID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("member_id", memberID).
		Str("room_id", roomID.String()).
		Msg("websocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.roomConnections[conn.RoomID] == nil {
		cm.roomConnections[conn.RoomID] = make(map[*Connection]bool)
	}
	cm.roomConnections[conn.RoomID][conn] = true
	cm.total++
	cm.metrics.SetConnections(cm.total)

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_id", conn.RoomID.String()).
		Int("room_connections", len(cm.roomConnections[conn.RoomID])).
		Msg("connection registered")
}

// unregisterConnection is safe to call more than once for the same connection.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.roomConnections[conn.RoomID]
	if !exists {
		return
	}
	if _, exists := connections[conn]; !exists {
		return
	}

	delete(connections, conn)
	close(conn.Send)
	if len(connections) == 0 {
		delete(cm.roomConnections, conn.RoomID)
	}
	cm.total--
	cm.metrics.SetConnections(cm.total)

	log.Info().
		Str("connection_id", conn.ID).
		Str("member_id", conn.MemberID).
		Str("room_id", conn.RoomID.String()).
		Msg("connection unregistered")
}

// BroadcastToRoom queues an event for every connection in a room.
// The event is dropped when the broadcast channel is full.
func (cm *ConnectionManager) BroadcastToRoom(roomID uuid.UUID, event *RoomEvent) {
	select {
	case cm.broadcastCh <- BroadcastMessage{RoomID: roomID, Event: event}:
	default:
		cm.metrics.RecordBroadcastDropped()
		log.Warn().
			Str("room_id", roomID.String()).
			Str("event_type", event.Type).
			Msg("broadcast channel full, dropping message")
	}
}

// BroadcastTimerTick pushes a countdown tick to the room's members
func (cm *ConnectionManager) BroadcastTimerTick(roomID uuid.UUID, tick events.TimerTickPayload) {
	data, err := json.Marshal(tick)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to marshal timer tick")
		return
	}
	cm.BroadcastToRoom(roomID, &RoomEvent{
		ID:        uuid.New().String(),
		RoomID:    roomID.String(),
		Type:      events.TypeTimerTick,
		Timestamp: tick.ServerTime,
		Data:      data,
	})
}

// HandleEnvelope routes a bus or outbox envelope to the room's members.
// Unknown event types and malformed room IDs are reported as ErrUnroutable.
func (cm *ConnectionManager) HandleEnvelope(ctx context.Context, env events.Envelope) error {
	roomID, err := uuid.Parse(env.RoomID)
	if err != nil {
		return fmt.Errorf("%w: parse room ID %q: %v", ErrUnroutable, env.RoomID, err)
	}
	if !knownEventType(env.EventType) {
		return fmt.Errorf("%w: unknown event type %q", ErrUnroutable, env.EventType)
	}

	cm.BroadcastToRoom(roomID, &RoomEvent{
		ID:        env.EventID,
		RoomID:    env.RoomID,
		Type:      env.EventType,
		Timestamp: env.Timestamp,
		Data:      env.Payload,
	})
	return nil
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Sends never block, so they can happen under the read lock. Slow
	// connections are collected and dropped once the lock is released.
	var slow []*Connection
	cm.mu.RLock()
	connections := cm.roomConnections[message.RoomID]
	delivered := 0
	for conn := range connections {
		select {
		case conn.Send <- eventData:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("member_id", conn.MemberID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	if delivered > 0 {
		log.Debug().
			Str("event_type", message.Event.Type).
			Str("room_id", message.RoomID.String()).
			Int("connections", delivered).
			Msg("event broadcasted")
	}
}

// ConnectionStats summarizes open connections
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		TotalConnections: cm.total,
		ActiveRooms:      len(cm.roomConnections),
		RoomConnections:  make(map[string]int, len(cm.roomConnections)),
	}
	for roomID, connections := range cm.roomConnections {
		stats.RoomConnections[roomID.String()] = len(connections)
	}
	return stats
}

// RoomConnectionCount returns the number of connections open for a room
func (cm *ConnectionManager) RoomConnectionCount(roomID uuid.UUID) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.roomConnections[roomID])
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump keeps the read deadline alive and notices when the client goes away.
// Clients have nothing to say to the server yet; their frames are logged and dropped.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close error")
			}
			return
		}

		log.Debug().
			Str("connection_id", c.ID).
			Str("member_id", c.MemberID).
			Int("bytes", len(message)).
			Msg("ignoring client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
