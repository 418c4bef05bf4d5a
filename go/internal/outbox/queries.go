package outbox

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/overlaykit/overlaykit/go/internal/sqlutil"
)

const (
	fetchByIDQuery = `
SELECT id, user_hash, overlay_type, payload, created_at, sent_at
FROM settings_outbox
WHERE id = $1`

	fetchUnsentQuery = `
SELECT id, user_hash, overlay_type, payload, created_at, sent_at
FROM settings_outbox
WHERE sent_at IS NULL
ORDER BY created_at
LIMIT $1`

	markSentQuery = `
UPDATE settings_outbox SET sent_at = now() WHERE id = $1`
)

// Queries is the outbox data access layer over database/sql, which the
// pq LISTEN/NOTIFY connection also rides on.
type Queries struct {
	db *sql.DB
}

// New creates the outbox query layer.
func New(db *sql.DB) *Queries {
	return &Queries{db: db}
}

func scanEvent(row interface{ Scan(...any) error }) (Event, error) {
	var (
		ev      Event
		payload pqtype.NullRawMessage
		sentAt  sql.NullTime
	)
	if err := row.Scan(&ev.ID, &ev.UserHash, &ev.OverlayType, &payload, &ev.CreatedAt, &sentAt); err != nil {
		return Event{}, err
	}
	ev.Payload = sqlutil.FromNullRawMessage(payload)
	ev.SentAt = sqlutil.FromSqlTime(sentAt)
	return ev, nil
}

// FetchByID loads one outbox event.
func (q *Queries) FetchByID(ctx context.Context, id uuid.UUID) (Event, error) {
	ev, err := scanEvent(q.db.QueryRowContext(ctx, fetchByIDQuery, id))
	if err != nil {
		return Event{}, fmt.Errorf("failed to fetch outbox event: %w", err)
	}
	return ev, nil
}

// FetchUnsent loads up to limit events never relayed, oldest first.
func (q *Queries) FetchUnsent(ctx context.Context, limit int32) ([]Event, error) {
	rows, err := q.db.QueryContext(ctx, fetchUnsentQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// MarkSent stamps an event as relayed.
func (q *Queries) MarkSent(ctx context.Context, id uuid.UUID) error {
	if _, err := q.db.ExecContext(ctx, markSentQuery, id); err != nil {
		return fmt.Errorf("failed to mark outbox event sent: %w", err)
	}
	return nil
}
