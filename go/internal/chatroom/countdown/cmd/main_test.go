package main

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/dice-talk/dicetalk/go/internal/chatroom/room"
	"github.com/dice-talk/dicetalk/go/internal/chatroom/timeline"
	"github.com/dice-talk/dicetalk/go/internal/models"
)

func TestCheckServerLifetime(t *testing.T) {
	created := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	closesAt := created.Add(30 * time.Minute)
	kst := time.FixedZone("KST", 9*60*60)

	viewFor := func(createdAt string, closesAt *time.Time) *room.TimelineView {
		return &room.TimelineView{
			Room:     &models.ChatRoom{ID: uuid.New(), CreatedAt: createdAt},
			ClosesAt: closesAt,
		}
	}

	tests := []struct {
		name    string
		tl      *timeline.Timeline
		view    *room.TimelineView
		wantErr string
	}{
		{
			name: "same profile",
			tl:   timeline.MustNew(timeline.DefaultConfig()),
			view: viewFor("2025-03-14T12:00:00Z", &closesAt),
		},
		{
			name: "same instant in another offset",
			tl:   timeline.MustNew(timeline.DefaultConfig()),
			view: viewFor("2025-03-14T21:00:00+09:00", &closesAt),
		},
		{
			name:    "shorter local profile",
			tl:      timeline.MustNew(timeline.NewConfig(360, 360, 360, 360, 60)),
			view:    viewFor("2025-03-14T12:00:00Z", &closesAt),
			wantErr: "local room lifetime 25m0s, server closes the room after 30m0s",
		},
		{
			name:    "zoneless created_at read in another zone",
			tl:      timeline.MustNew(timeline.DefaultConfig(), timeline.WithLocation(kst)),
			view:    viewFor("2025-03-14 12:00:00", &closesAt),
			wantErr: "server closes the room after 9h30m0s",
		},
		{
			name:    "missing closes_at",
			tl:      timeline.MustNew(timeline.DefaultConfig()),
			view:    viewFor("2025-03-14T12:00:00Z", nil),
			wantErr: "server did not report closes_at",
		},
		{
			name:    "unreadable created_at",
			tl:      timeline.MustNew(timeline.DefaultConfig()),
			view:    viewFor("yesterday", &closesAt),
			wantErr: "invalid room timestamp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkServerLifetime(tt.tl, tt.view)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
