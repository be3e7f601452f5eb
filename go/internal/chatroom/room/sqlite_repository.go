package room

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/dice-talk/dicetalk/go/internal/models"
	"github.com/dice-talk/dicetalk/go/internal/sqlutil"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chat_rooms (
	id          TEXT PRIMARY KEY,
	room_type   TEXT NOT NULL,
	status      TEXT NOT NULL,
	theme       TEXT NOT NULL DEFAULT '',
	max_members INTEGER NOT NULL,
	created_at  TEXT NOT NULL,
	closed_at   TEXT
);
CREATE INDEX IF NOT EXISTS chat_rooms_status_idx ON chat_rooms (status);
`

// SQLiteRepository stores rooms in a local SQLite file. created_at is kept
// verbatim as TEXT, the same opaque string clients receive.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// one connection keeps ":memory:" databases alive and serialises writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// DB exposes the underlying handle.
func (r *SQLiteRepository) DB() *sql.DB {
	return r.db
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// CreateRoom inserts room with created_at stored as given.
func (r *SQLiteRepository) CreateRoom(ctx context.Context, room *models.ChatRoom) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_rooms (id, room_type, status, theme, max_members, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		room.ID.String(), string(room.RoomType), string(room.Status), room.Theme, room.MaxMembers, room.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

// GetRoom loads a room by ID, returning ErrRoomNotFound when it does not exist.
func (r *SQLiteRepository) GetRoom(ctx context.Context, id uuid.UUID) (*models.ChatRoom, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, room_type, status, theme, max_members, created_at, closed_at
		 FROM chat_rooms WHERE id = ?`, id.String())

	room, err := scanSQLiteRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

// ListOpenRooms returns every OPEN room.
func (r *SQLiteRepository) ListOpenRooms(ctx context.Context) ([]*models.ChatRoom, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, room_type, status, theme, max_members, created_at, closed_at
		 FROM chat_rooms WHERE status = ? ORDER BY created_at`, string(models.RoomStatusOpen))
	if err != nil {
		return nil, fmt.Errorf("failed to list open rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*models.ChatRoom
	for rows.Next() {
		room, err := scanSQLiteRoom(rows)
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

// CloseRoom marks a room CLOSED; closing twice is not an error.
func (r *SQLiteRepository) CloseRoom(ctx context.Context, id uuid.UUID, closedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chat_rooms SET status = ?, closed_at = ? WHERE id = ? AND status <> ?`,
		string(models.RoomStatusClosed), closedAt.UTC().Format(time.RFC3339Nano), id.String(), string(models.RoomStatusClosed))
	if err != nil {
		return fmt.Errorf("failed to close room: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := r.GetRoom(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRoom(row rowScanner) (*models.ChatRoom, error) {
	var (
		room     models.ChatRoom
		id       string
		roomType string
		status   string
		closedAt sql.NullString
	)
	if err := row.Scan(&id, &roomType, &status, &room.Theme, &room.MaxMembers, &room.CreatedAt, &closedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid room id %q: %w", id, err)
	}
	room.ID = parsed
	room.RoomType = models.RoomType(roomType)
	room.Status = models.RoomStatus(status)
	room.ClosedAt = sqlutil.FromSqlStringPtr(closedAt)
	return &room, nil
}
