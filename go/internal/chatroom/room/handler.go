package room

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/dice-talk/dicetalk/go/internal/models"
)

// RoomApp defines what the HTTP and Connect layers need from the room application
type RoomApp interface {
	CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.ChatRoom, error)
	GetRoom(ctx context.Context, id uuid.UUID) (*models.ChatRoom, error)
	GetTimeline(ctx context.Context, id uuid.UUID) (*TimelineView, error)
	ListOpenRooms(ctx context.Context) ([]*models.ChatRoom, error)
	Now() time.Time
}

var _ RoomApp = (*App)(nil)

// Handler serves the room REST API
type Handler struct {
	app RoomApp
}

// NewHandler creates a new room REST handler
func NewHandler(app RoomApp) *Handler {
	return &Handler{app: app}
}

// RegisterRoutes registers the room endpoints on r
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/time", h.GetTime).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms", h.CreateRoom).Methods(http.MethodPost)
	r.HandleFunc("/api/rooms", h.ListOpenRooms).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms/{id}", h.GetRoom).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms/{id}/timeline", h.GetTimeline).Methods(http.MethodGet)
}

type timeResponse struct {
	ServerTime time.Time `json:"server_time"`
	UnixMillis int64     `json:"unix_ms"`
}

// GetTime returns the server clock so clients can estimate their skew
func (h *Handler) GetTime(w http.ResponseWriter, r *http.Request) {
	now := h.app.Now()
	writeJSON(w, http.StatusOK, timeResponse{ServerTime: now, UnixMillis: now.UnixMilli()})
}

// CreateRoom opens a new room
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	room, err := h.app.CreateRoom(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

// ListOpenRooms returns every open room
func (h *Handler) ListOpenRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.app.ListOpenRooms(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if rooms == nil {
		rooms = []*models.ChatRoom{}
	}
	writeJSON(w, http.StatusOK, rooms)
}

// GetRoom returns a single room
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := roomID(w, r)
	if !ok {
		return
	}

	room, err := h.app.GetRoom(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// GetTimeline returns the room's phase and countdowns at the current server time
func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	id, ok := roomID(w, r)
	if !ok {
		return
	}

	view, err := h.app.GetTimeline(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func roomID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid room id format", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		http.Error(w, "room not found", http.StatusNotFound)
	case errors.Is(err, ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Error().Err(err).Msg("room request failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
