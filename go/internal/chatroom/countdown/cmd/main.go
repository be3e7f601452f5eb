// Command roomwatch prints a room's phase and countdown once a second,
// evaluated locally against a clock kept in step with the API server.
//
//	roomwatch <room-id>
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dice-talk/dicetalk/go/internal/chatroom/clocksync"
	"github.com/dice-talk/dicetalk/go/internal/chatroom/room"
	"github.com/dice-talk/dicetalk/go/internal/chatroom/timeline"
)

type watchConfig struct {
	APIURL          string        `envconfig:"API_URL" default:"http://localhost:8080"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"warn"`
	TimelineProfile string        `envconfig:"TIMELINE_PROFILE"`
	TimestampZone   string        `envconfig:"TIMESTAMP_ZONE" default:"UTC"`
	ResyncInterval  time.Duration `envconfig:"RESYNC_INTERVAL" default:"1m"`
	MaxRTT          time.Duration `envconfig:"MAX_RTT" default:"2s"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var cfg watchConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: roomwatch <room-id>")
		os.Exit(2)
	}
	roomID, err := uuid.Parse(os.Args[1])
	if err != nil {
		log.Fatal().Err(err).Msg("invalid room id")
	}

	tlCfg, err := timeline.LoadConfig(cfg.TimelineProfile)
	if err != nil {
		log.Fatal().Err(err).Msg("load timeline profile")
	}
	loc, err := time.LoadLocation(cfg.TimestampZone)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid TIMESTAMP_ZONE")
	}
	tl := timeline.MustNew(tlCfg, timeline.WithLocation(loc))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := room.NewTimelineClient(&http.Client{Timeout: 10 * time.Second}, cfg.APIURL)

	view, err := client.GetTimeline(ctx, roomID)
	if err != nil {
		log.Fatal().Err(err).Str("room_id", roomID.String()).Msg("fetch room timeline")
	}
	if view.Degraded {
		log.Fatal().Str("room_id", roomID.String()).Msg("room has an unreadable created_at")
	}
	if err := checkServerLifetime(tl, view); err != nil {
		log.Fatal().Err(err).Str("room_id", roomID.String()).Msg("TIMELINE_PROFILE does not match the server")
	}

	local := clockwork.NewRealClock()
	skew := clocksync.New(local, client, cfg.MaxRTT)
	go func() {
		if err := skew.Run(ctx, cfg.ResyncInterval); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("clock sync stopped")
		}
	}()

	if err := watch(ctx, local, skew, tl, view.Room.CreatedAt); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("watch room")
	}
}

// checkServerLifetime refuses a local timeline whose closing instant for the
// room differs from the one the server reported. A mismatch means the local
// profile or TIMESTAMP_ZONE is not the server's.
func checkServerLifetime(tl *timeline.Timeline, view *room.TimelineView) error {
	if view.Room == nil || view.ClosesAt == nil {
		return errors.New("server did not report closes_at")
	}
	createdAt, err := tl.ParseCreatedAt(view.Room.CreatedAt)
	if err != nil {
		return err
	}
	if local := tl.ClosesAt(createdAt); !local.Equal(*view.ClosesAt) {
		return fmt.Errorf("local room lifetime %s, server closes the room after %s",
			tl.Config().RoomLifetime(), view.ClosesAt.Sub(createdAt))
	}
	return nil
}

// watch prints one line per second until the room closes or ctx ends.
func watch(ctx context.Context, local clockwork.Clock, skew *clocksync.SkewClock, tl *timeline.Timeline, createdAt string) error {
	ticker := local.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		state, err := tl.Evaluate(createdAt, skew.Now())
		if err != nil {
			return err
		}
		fmt.Printf("%-16s %-26s phase %s  room %s\n",
			state.Phase,
			timeline.ScreenFor(state.Phase),
			timeline.FormatCountdown(state.PhaseRemainingSec),
			timeline.FormatCountdown(state.RoomRemainingSec),
		)
		if state.Closed() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		}
	}
}
