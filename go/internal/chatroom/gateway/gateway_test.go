package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dice-talk/dicetalk/go/internal/chatroom/events"
	"github.com/dice-talk/dicetalk/go/internal/metrics"
)

type gatewayEnv struct {
	cm       *ConnectionManager
	metrics  *metrics.Metrics
	server   *httptest.Server
	verifier *TokenVerifier
}

func newGatewayEnv(t *testing.T, secret string) *gatewayEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	m := metrics.New()
	cm := NewConnectionManager(DefaultConnectionConfig(), m)
	go cm.Start(ctx)

	verifier := NewTokenVerifier(secret)
	router := mux.NewRouter()
	NewWebSocketHandler(cm, verifier).RegisterRoutes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &gatewayEnv{cm: cm, metrics: m, server: server, verifier: verifier}
}

func (e *gatewayEnv) dial(roomID uuid.UUID, token string) (*websocket.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws/rooms?room_id=" + roomID.String()
	if token != "" {
		url += "&token=" + token
	}
	return websocket.DefaultDialer.Dial(url, nil)
}

func readEvent(t *testing.T, conn *websocket.Conn) RoomEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev RoomEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestWebSocket_ReceivesRoomEvents(t *testing.T) {
	env := newGatewayEnv(t, "")
	roomID := uuid.New()

	conn, _, err := env.dial(roomID, "")
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.cm.RoomConnectionCount(roomID) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.ConnectionsActive))

	// another room's tick must not reach this member
	env.cm.BroadcastTimerTick(uuid.New(), events.TimerTickPayload{Countdown: "00:00:01"})
	env.cm.BroadcastTimerTick(roomID, events.TimerTickPayload{
		RoomID:    roomID.String(),
		Phase:     "CUPID_MAIN",
		Countdown: "00:10:00",
	})

	ev := readEvent(t, conn)
	assert.Equal(t, events.TypeTimerTick, ev.Type)
	assert.Equal(t, roomID.String(), ev.RoomID)
	var tick events.TimerTickPayload
	require.NoError(t, json.Unmarshal(ev.Data, &tick))
	assert.Equal(t, "00:10:00", tick.Countdown)
	assert.Equal(t, "CUPID_MAIN", tick.Phase)

	require.NoError(t, env.cm.HandleEnvelope(context.Background(), events.Envelope{
		EventID:   "evt-1",
		EventType: events.TypeRoomClosed,
		RoomID:    roomID.String(),
		Payload:   json.RawMessage(`{"room_id":"x"}`),
	}))
	ev = readEvent(t, conn)
	assert.Equal(t, "evt-1", ev.ID)
	assert.Equal(t, events.TypeRoomClosed, ev.Type)
	assert.JSONEq(t, `{"room_id":"x"}`, string(ev.Data))
}

func TestWebSocket_DisconnectUnregisters(t *testing.T) {
	env := newGatewayEnv(t, "")
	roomID := uuid.New()

	conn, _, err := env.dial(roomID, "")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return env.cm.RoomConnectionCount(roomID) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return env.cm.RoomConnectionCount(roomID) == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, env.cm.Stats().ActiveRooms)
}

func TestWebSocket_Auth(t *testing.T) {
	env := newGatewayEnv(t, "s3cret")
	roomID := uuid.New()

	_, resp, err := env.dial(roomID, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	forged, err := NewTokenVerifier("other").Issue("member-1", time.Now(), time.Hour)
	require.NoError(t, err)
	_, resp, err = env.dial(roomID, forged)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := env.verifier.Issue("member-1", time.Now(), time.Hour)
	require.NoError(t, err)
	conn, _, err := env.dial(roomID, token)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return env.cm.RoomConnectionCount(roomID) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketHandler_BadRequests(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), nil)
	router := mux.NewRouter()
	NewWebSocketHandler(cm, NewTokenVerifier("")).RegisterRoutes(router)

	tests := []struct {
		name string
		path string
		code int
	}{
		{"missing room", "/ws/rooms", http.StatusBadRequest},
		{"bad room", "/ws/rooms?room_id=nope", http.StatusBadRequest},
		{"not a websocket", "/ws/rooms?room_id=" + uuid.NewString(), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.code, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total_connections":0,"active_rooms":0,"room_connections":{}}`, rec.Body.String())
}

func TestTokenVerifier(t *testing.T) {
	verifier := NewTokenVerifier("s3cret")
	now := time.Now()

	valid, err := verifier.Issue("member-7", now, time.Hour)
	require.NoError(t, err)
	expired, err := verifier.Issue("member-7", now.Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)
	noSubject, err := verifier.Issue("", now, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name     string
		verifier *TokenVerifier
		token    string
		want     string
		wantErr  error
	}{
		{"disabled", NewTokenVerifier(""), "", AnonymousMember, nil},
		{"valid", verifier, valid, "member-7", nil},
		{"missing", verifier, "", "", ErrMissingToken},
		{"expired", verifier, expired, "", ErrExpiredToken},
		{"garbage", verifier, "not.a.jwt", "", ErrInvalidToken},
		{"no subject", verifier, noSubject, "", ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.verifier.Verify(tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandleEnvelope_Unroutable(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), nil)

	err := cm.HandleEnvelope(context.Background(), events.Envelope{EventType: events.TypeRoomClosed, RoomID: "nope"})
	assert.ErrorIs(t, err, ErrUnroutable)

	err = cm.HandleEnvelope(context.Background(), events.Envelope{EventType: "PickMade", RoomID: uuid.NewString()})
	assert.ErrorIs(t, err, ErrUnroutable)

	require.NoError(t, cm.HandleEnvelope(context.Background(), events.Envelope{EventType: events.TypePhaseChanged, RoomID: uuid.NewString()}))
	assert.Len(t, cm.broadcastCh, 1)
}

func TestBroadcastToRoom_DropsWhenFull(t *testing.T) {
	m := metrics.New()
	cfg := DefaultConnectionConfig()
	cfg.BroadcastBuffer = 1
	cm := NewConnectionManager(cfg, m)
	roomID := uuid.New()

	cm.BroadcastTimerTick(roomID, events.TimerTickPayload{})
	cm.BroadcastTimerTick(roomID, events.TimerTickPayload{})

	assert.Len(t, cm.broadcastCh, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BroadcastDroppedTotal))
}

type envelopeRecorder struct {
	envelopes []events.Envelope
}

func (r *envelopeRecorder) HandleEnvelope(ctx context.Context, env events.Envelope) error {
	r.envelopes = append(r.envelopes, env)
	return nil
}

func TestEventConsumer_ProcessMessage(t *testing.T) {
	recorder := &envelopeRecorder{}
	ec := &EventConsumer{handler: recorder, config: DefaultJetStreamConsumerConfig()}

	err := ec.processMessage(context.Background(), []byte(`{"eventId":`))
	assert.ErrorIs(t, err, ErrUnroutable)
	assert.Empty(t, recorder.envelopes)

	roomID := uuid.NewString()
	data := `{"eventId":"e1","eventType":"PhaseChanged","roomId":"` + roomID + `","timestamp":"2025-03-14T12:00:00Z","payload":{"to_phase":"CLOSED"}}`
	require.NoError(t, ec.processMessage(context.Background(), []byte(data)))
	require.Len(t, recorder.envelopes, 1)
	assert.Equal(t, "e1", recorder.envelopes[0].EventID)
	assert.Equal(t, roomID, recorder.envelopes[0].RoomID)
	assert.Equal(t, time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC), recorder.envelopes[0].Timestamp)
}
