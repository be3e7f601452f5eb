package room

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dice-talk/dicetalk/go/internal/chatroom/timeline"
	"github.com/dice-talk/dicetalk/go/internal/models"
)

func newTestRouter(t *testing.T) (*mux.Router, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	r := mux.NewRouter()
	NewHandler(env.app).RegisterRoutes(r)
	return r, env
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandler_CreateAndGetTimeline(t *testing.T) {
	r, env := newTestRouter(t)

	rec := serve(r, http.MethodPost, "/api/rooms", `{"room_type":"COUPLE","theme":"jazz"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var room models.ChatRoom
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &room))
	assert.Equal(t, models.RoomTypeCouple, room.RoomType)

	env.clock.Advance(1100 * time.Second)

	rec = serve(r, http.MethodGet, "/api/rooms/"+room.ID.String()+"/timeline", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view TimelineView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, timeline.PhaseCupidMain, view.State.Phase)
	assert.Equal(t, timeline.PhasePostCupid, view.State.NextPhase)
	assert.Equal(t, int64(340), view.State.PhaseRemainingSec)
	assert.Equal(t, timeline.ScreenCupidSelectionModal, view.Screen)
	assert.Equal(t, "00:11:40", view.Countdown)
}

func TestHandler_Errors(t *testing.T) {
	r, _ := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"malformed body", http.MethodPost, "/api/rooms", `{`, http.StatusBadRequest},
		{"invalid room type", http.MethodPost, "/api/rooms", `{"room_type":"SOLO"}`, http.StatusBadRequest},
		{"invalid id", http.MethodGet, "/api/rooms/abc", "", http.StatusBadRequest},
		{"unknown room", http.MethodGet, "/api/rooms/" + uuid.NewString(), "", http.StatusNotFound},
		{"unknown room timeline", http.MethodGet, "/api/rooms/" + uuid.NewString() + "/timeline", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestHandler_ListOpenRooms(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := serve(r, http.MethodGet, "/api/rooms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	serve(r, http.MethodPost, "/api/rooms", `{"room_type":"GROUP"}`)
	serve(r, http.MethodPost, "/api/rooms", `{"room_type":"GROUP","max_members":3}`)

	rec = serve(r, http.MethodGet, "/api/rooms", "")
	var rooms []models.ChatRoom
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rooms))
	assert.Len(t, rooms, 2)
}

func TestHandler_GetTime(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := serve(r, http.MethodGet, "/api/time", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp timeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.ServerTime.Equal(epoch))
	assert.Equal(t, epoch.UnixMilli(), resp.UnixMillis)
}
