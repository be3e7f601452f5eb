package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles websocket upgrade requests for room members
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	verifier          *TokenVerifier
}

func NewWebSocketHandler(cm *ConnectionManager, verifier *TokenVerifier) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		verifier:          verifier,
	}
}

// HandleRoomConnection upgrades /ws/rooms?room_id=<uuid>&token=<jwt>
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	roomIDStr := r.URL.Query().Get("room_id")
	if roomIDStr == "" {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}

	roomID, err := uuid.Parse(roomIDStr)
	if err != nil {
		http.Error(w, "invalid room_id format", http.StatusBadRequest)
		return
	}

	memberID, err := h.verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		log.Warn().
			Err(err).
			Str("room_id", roomID.String()).
			Msg("rejected websocket connection")
		msg := "invalid token"
		if errors.Is(err, ErrMissingToken) || errors.Is(err, ErrExpiredToken) {
			msg = err.Error()
		}
		http.Error(w, msg, http.StatusUnauthorized)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, memberID, roomID); err != nil {
		log.Error().
			Err(err).
			Str("room_id", roomID.String()).
			Str("member_id", memberID).
			Msg("failed to upgrade websocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}

func (h *WebSocketHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws/rooms", h.HandleRoomConnection).Methods(http.MethodGet)
	r.HandleFunc("/ws/stats", h.HandleConnectionStats).Methods(http.MethodGet)
}
