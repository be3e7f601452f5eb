package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/dice-talk/dicetalk/go/internal/sqlutil"
)

// DefaultNotifyChannel is the Postgres channel new outbox rows are announced on.
const DefaultNotifyChannel = "room_outbox_events"

// ErrEventNotFound is returned when an outbox event does not exist or was already sent.
var ErrEventNotFound = errors.New("outbox event not found or already sent")

const schema = `
CREATE TABLE IF NOT EXISTS room_outbox (
	id         UUID PRIMARY KEY,
	room_id    UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload    JSONB NOT NULL,
	metadata   JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	sent_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS room_outbox_unsent_idx ON room_outbox (created_at) WHERE sent_at IS NULL;
`

type queries struct {
	db sqlutil.DBTX
}

func newQueries(db sqlutil.DBTX) *queries {
	return &queries{db: db}
}

func (q *queries) insertEvent(ctx context.Context, event OutboxEvent) error {
	metadata := pqtype.NullRawMessage{RawMessage: event.Metadata, Valid: len(event.Metadata) > 0}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO room_outbox (id, room_id, event_type, payload, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.RoomID, event.EventType, []byte(event.Payload), metadata, event.CreatedAt)
	return err
}

func (q *queries) notify(ctx context.Context, channel string, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, channel, id.String())
	return err
}

// Repository stores outbox events in Postgres
type Repository struct {
	db            *sql.DB
	notifyChannel string
}

// NewRepository creates a new outbox repository
func NewRepository(db *sql.DB, notifyChannel string) *Repository {
	if notifyChannel == "" {
		notifyChannel = DefaultNotifyChannel
	}
	return &Repository{
		db:            db,
		notifyChannel: notifyChannel,
	}
}

// Migrate creates the outbox table if it does not exist
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate outbox schema: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// InsertEvent stores the event and announces its ID in the same transaction,
// so listeners are only notified once the row is visible.
func (r *Repository) InsertEvent(ctx context.Context, event OutboxEvent) error {
	err := sqlutil.Run(ctx, r.db, newQueries, func(q *queries) error {
		if err := q.insertEvent(ctx, event); err != nil {
			return err
		}
		return q.notify(ctx, r.notifyChannel, event.ID)
	})
	if err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", event.EventType, err)
	}
	return nil
}

// FetchOutboxByID fetches an unsent event
func (r *Repository) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, room_id, event_type, payload, metadata, created_at, sent_at
		 FROM room_outbox WHERE id = $1 AND sent_at IS NULL`, id)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
		}
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	return event, nil
}

// FetchUnsentOutbox returns up to limit unsent events, oldest first
func (r *Repository) FetchUnsentOutbox(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, room_id, event_type, payload, metadata, created_at, sent_at
		 FROM room_outbox WHERE sent_at IS NULL ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var events []OutboxEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox events: %w", err)
	}
	return events, nil
}

// MarkOutboxSent stamps sent_at on an event
func (r *Repository) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE room_outbox SET sent_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

// CountUnsent returns the number of events waiting to be published
func (r *Repository) CountUnsent(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM room_outbox WHERE sent_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count unsent outbox events: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*OutboxEvent, error) {
	var (
		event    OutboxEvent
		payload  []byte
		metadata pqtype.NullRawMessage
		sentAt   sql.NullTime
	)
	if err := row.Scan(&event.ID, &event.RoomID, &event.EventType, &payload, &metadata, &event.CreatedAt, &sentAt); err != nil {
		return nil, err
	}
	event.Payload = payload
	if metadata.Valid {
		event.Metadata = metadata.RawMessage
	}
	event.SentAt = sqlutil.FromSqlTimePtr(sentAt)
	return &event, nil
}
