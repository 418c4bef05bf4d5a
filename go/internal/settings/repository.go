package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates a tenant has no stored value for an overlay type.
var ErrNotFound = errors.New("settings not found")

const (
	getSettingsQuery = `
SELECT value FROM overlay_settings
WHERE user_hash = $1 AND overlay_type = $2`

	upsertSettingsQuery = `
INSERT INTO overlay_settings (user_hash, overlay_type, value, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (user_hash, overlay_type)
DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

	insertOutboxQuery = `
INSERT INTO settings_outbox (id, user_hash, overlay_type, payload, created_at)
VALUES ($1, $2, $3, $4, now())`

	notifyOutboxQuery = `SELECT pg_notify('overlay_settings_outbox', $1)`
)

// Repository implements settings data access over Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new settings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetValue fetches the stored raw value for a tenant and overlay type.
// The caller merges it over defaults; this layer does not interpret it.
func (r *Repository) GetValue(ctx context.Context, userHash string, t OverlayType) (json.RawMessage, error) {
	var value json.RawMessage
	err := r.pool.QueryRow(ctx, getSettingsQuery, userHash, string(t)).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return value, nil
}

// UpsertValue stores a tenant's settings value and records a settings-updated
// outbox event in the same transaction, so live overlays are told to refetch.
func (r *Repository) UpsertValue(ctx context.Context, userHash string, t OverlayType, value json.RawMessage) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin settings upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, upsertSettingsQuery, userHash, string(t), value); err != nil {
		return fmt.Errorf("failed to upsert settings: %w", err)
	}

	eventID := uuid.New()
	payload, err := json.Marshal(map[string]string{
		"key":      string(t),
		"userHash": userHash,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	if _, err := tx.Exec(ctx, insertOutboxQuery, eventID, userHash, string(t), payload); err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	if _, err := tx.Exec(ctx, notifyOutboxQuery, eventID.String()); err != nil {
		return fmt.Errorf("failed to notify outbox listener: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit settings upsert: %w", err)
	}
	return nil
}
