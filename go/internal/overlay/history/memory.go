package history

import (
	"context"
	"sync"

	"github.com/overlaykit/overlaykit/go/internal/overlay/events"
)

// MemoryStore is a single-process history store for development and tests.
type MemoryStore struct {
	mu    sync.Mutex
	cap   int
	rooms map[string][]events.LiveEvent
}

// NewMemoryStore creates an in-memory store with the given capacity per room.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &MemoryStore{
		cap:   capacity,
		rooms: make(map[string][]events.LiveEvent),
	}
}

// Append records an event for a room, evicting the oldest past capacity.
func (s *MemoryStore) Append(_ context.Context, userHash string, ev events.LiveEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.rooms[userHash], ev)
	if len(list) > s.cap {
		list = list[len(list)-s.cap:]
	}
	s.rooms[userHash] = list
	return nil
}

// Recent returns up to limit events, oldest first.
func (s *MemoryStore) Recent(_ context.Context, userHash string, limit int) ([]events.LiveEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.rooms[userHash]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	out := make([]events.LiveEvent, len(list))
	copy(out, list)
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
