package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// TimelineServiceName is the fully-qualified name of the TimelineService.
	TimelineServiceName = "dicetalk.chatroom.v1.TimelineService"

	// TimelineServiceGetTimelineProcedure takes a room ID and returns the room's TimelineView as a Struct.
	TimelineServiceGetTimelineProcedure = "/dicetalk.chatroom.v1.TimelineService/GetTimeline"

	// TimelineServiceServerTimeProcedure returns the server clock.
	TimelineServiceServerTimeProcedure = "/dicetalk.chatroom.v1.TimelineService/ServerTime"
)

// Service implements the TimelineService Connect API
type Service struct {
	app RoomApp
}

// NewService creates a new timeline Connect service
func NewService(app RoomApp) *Service {
	return &Service{app: app}
}

// NewTimelineServiceHandler builds an HTTP handler for the service and the
// path prefix to mount it on.
func NewTimelineServiceHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	getTimelineHandler := connect.NewUnaryHandler(
		TimelineServiceGetTimelineProcedure,
		svc.GetTimeline,
		opts...,
	)
	serverTimeHandler := connect.NewUnaryHandler(
		TimelineServiceServerTimeProcedure,
		svc.ServerTime,
		opts...,
	)
	return "/" + TimelineServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case TimelineServiceGetTimelineProcedure:
			getTimelineHandler.ServeHTTP(w, r)
		case TimelineServiceServerTimeProcedure:
			serverTimeHandler.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// GetTimeline evaluates a room's timeline
func (s *Service) GetTimeline(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[structpb.Struct], error) {
	id, err := uuid.Parse(req.Msg.GetValue())
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	view, err := s.app.GetTimeline(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return nil, connect.NewError(connect.CodeNotFound, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	msg, err := viewToStruct(view)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// ServerTime returns the server clock
func (s *Service) ServerTime(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[timestamppb.Timestamp], error) {
	return connect.NewResponse(timestamppb.New(s.app.Now())), nil
}

func viewToStruct(view *TimelineView) (*structpb.Struct, error) {
	raw, err := json.Marshal(view)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal timeline view: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal timeline view: %w", err)
	}
	return structpb.NewStruct(fields)
}

func structToView(msg *structpb.Struct) (*TimelineView, error) {
	raw, err := json.Marshal(msg.AsMap())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal timeline struct: %w", err)
	}
	var view TimelineView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, fmt.Errorf("failed to decode timeline view: %w", err)
	}
	return &view, nil
}
