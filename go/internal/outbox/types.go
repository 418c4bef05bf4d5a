package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is one settings-updated notification waiting in the outbox table.
// It is written in the same transaction as the settings upsert and relayed
// to the message bus by the Listener.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	UserHash    string          `json:"user_hash"`
	OverlayType string          `json:"overlay_type"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	SentAt      *time.Time      `json:"sent_at,omitempty"`
}
