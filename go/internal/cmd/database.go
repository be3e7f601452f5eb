package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/dice-talk/dicetalk/go/internal/chatroom/outbox"
	"github.com/dice-talk/dicetalk/go/internal/chatroom/room"
	"github.com/dice-talk/dicetalk/go/internal/config"
	"github.com/dice-talk/dicetalk/go/internal/dbconfig"
)

// Stores holds the storage handles picked by STORE_DRIVER. The outbox table
// only exists on Postgres; with SQLite OutboxRepo is nil.
type Stores struct {
	Rooms      room.RoomRepository
	OutboxRepo *outbox.Repository
	DSN        string

	closers []func()
}

func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func setupStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	if cfg.StoreDriver == config.StoreDriverSQLite {
		repo, err := room.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("using sqlite room store")
		return &Stores{
			Rooms:   repo,
			closers: []func(){func() { repo.Close() }},
		}, nil
	}

	dbCfg, err := dbconfig.NewConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load database config: %w", err)
	}
	dsn := dbCfg.DSN()
	stores := &Stores{DSN: dsn}

	roomRepo, err := room.NewPostgresRepository(ctx, dsn)
	if err != nil {
		return nil, err
	}
	stores.closers = append(stores.closers, roomRepo.Close)
	if err := roomRepo.Migrate(ctx); err != nil {
		stores.Close()
		return nil, err
	}
	stores.Rooms = roomRepo

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	stores.closers = append(stores.closers, func() { db.Close() })
	if err := db.PingContext(ctx); err != nil {
		stores.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	outboxRepo := outbox.NewRepository(db, outbox.DefaultNotifyChannel)
	if err := outboxRepo.Migrate(ctx); err != nil {
		stores.Close()
		return nil, err
	}
	stores.OutboxRepo = outboxRepo

	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Database).
		Msg("connected to database")
	return stores, nil
}
