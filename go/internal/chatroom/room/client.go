package room

import (
	"context"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// TimelineClient calls the TimelineService over Connect
type TimelineClient struct {
	getTimeline *connect.Client[wrapperspb.StringValue, structpb.Struct]
	serverTime  *connect.Client[emptypb.Empty, timestamppb.Timestamp]
}

// NewTimelineClient creates a client for the API at baseURL, e.g. http://localhost:8080
func NewTimelineClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *TimelineClient {
	baseURL = strings.TrimRight(baseURL, "/")
	return &TimelineClient{
		getTimeline: connect.NewClient[wrapperspb.StringValue, structpb.Struct](
			httpClient,
			baseURL+TimelineServiceGetTimelineProcedure,
			opts...,
		),
		serverTime: connect.NewClient[emptypb.Empty, timestamppb.Timestamp](
			httpClient,
			baseURL+TimelineServiceServerTimeProcedure,
			opts...,
		),
	}
}

// GetTimeline fetches a room's timeline as evaluated by the server
func (c *TimelineClient) GetTimeline(ctx context.Context, roomID uuid.UUID) (*TimelineView, error) {
	resp, err := c.getTimeline.CallUnary(ctx, connect.NewRequest(wrapperspb.String(roomID.String())))
	if err != nil {
		return nil, err
	}
	return structToView(resp.Msg)
}

// ServerTime fetches the server clock
func (c *TimelineClient) ServerTime(ctx context.Context) (time.Time, error) {
	resp, err := c.serverTime.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return time.Time{}, err
	}
	return resp.Msg.AsTime(), nil
}
