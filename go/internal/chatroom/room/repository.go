package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dice-talk/dicetalk/go/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS chat_rooms (
	id          UUID PRIMARY KEY,
	room_type   TEXT NOT NULL,
	status      TEXT NOT NULL,
	theme       TEXT NOT NULL DEFAULT '',
	max_members INTEGER NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	closed_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS chat_rooms_status_idx ON chat_rooms (status);
`

// PostgresRepository stores rooms in Postgres through a pgx pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects a pgx pool to dsn.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

// Migrate creates the chat_rooms table if needed.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to migrate chat_rooms: %w", err)
	}
	return nil
}

// Close releases the pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
}

// CreateRoom inserts room. CreatedAt must be RFC 3339; it is stored as TIMESTAMPTZ.
func (r *PostgresRepository) CreateRoom(ctx context.Context, room *models.ChatRoom) error {
	createdAt, err := time.Parse(time.RFC3339Nano, room.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to parse created_at: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO chat_rooms (id, room_type, status, theme, max_members, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		room.ID, string(room.RoomType), string(room.Status), room.Theme, room.MaxMembers, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

// GetRoom loads a room by ID, returning ErrRoomNotFound when it does not exist.
// Timestamps come back as UTC RFC 3339 strings.
func (r *PostgresRepository) GetRoom(ctx context.Context, id uuid.UUID) (*models.ChatRoom, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, room_type, status, theme, max_members, created_at, closed_at
		 FROM chat_rooms WHERE id = $1`, id)

	room, err := scanPostgresRoom(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

// ListOpenRooms returns every OPEN room, oldest first.
func (r *PostgresRepository) ListOpenRooms(ctx context.Context) ([]*models.ChatRoom, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, room_type, status, theme, max_members, created_at, closed_at
		 FROM chat_rooms WHERE status = $1 ORDER BY created_at`, string(models.RoomStatusOpen))
	if err != nil {
		return nil, fmt.Errorf("failed to list open rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*models.ChatRoom
	for rows.Next() {
		room, err := scanPostgresRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rooms: %w", err)
	}
	return rooms, nil
}

// CloseRoom marks a room CLOSED at closedAt. Closing an already closed room
// keeps the first closed_at; a missing room is ErrRoomNotFound.
func (r *PostgresRepository) CloseRoom(ctx context.Context, id uuid.UUID, closedAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE chat_rooms SET status = $2, closed_at = $3 WHERE id = $1 AND status <> $2`,
		id, string(models.RoomStatusClosed), closedAt)
	if err != nil {
		return fmt.Errorf("failed to close room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// already closed is fine, missing is not
		if _, err := r.GetRoom(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func scanPostgresRoom(row pgx.Row) (*models.ChatRoom, error) {
	var (
		room      models.ChatRoom
		roomType  string
		status    string
		createdAt time.Time
		closedAt  *time.Time
	)
	if err := row.Scan(&room.ID, &roomType, &status, &room.Theme, &room.MaxMembers, &createdAt, &closedAt); err != nil {
		return nil, err
	}
	room.RoomType = models.RoomType(roomType)
	room.Status = models.RoomStatus(status)
	room.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
	if closedAt != nil {
		s := closedAt.UTC().Format(time.RFC3339Nano)
		room.ClosedAt = &s
	}
	return &room, nil
}
