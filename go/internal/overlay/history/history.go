// Package history keeps a bounded list of recent LiveEvents per overlay
// room, replayed to freshly joined overlay pages so they are not blank when
// a stream has been quiet.
package history

import (
	"context"

	"github.com/overlaykit/overlaykit/go/internal/overlay/events"
)

// DefaultCap matches the chat overlay's message buffer capacity.
const DefaultCap = 50

// Store is implemented by the redis store and the in-memory store.
type Store interface {
	Append(ctx context.Context, userHash string, ev events.LiveEvent) error
	Recent(ctx context.Context, userHash string, limit int) ([]events.LiveEvent, error)
	Close() error
}
