package history

import (
	"context"
	"fmt"
	"testing"

	"github.com/overlaykit/overlaykit/go/internal/overlay/events"
)

func TestMemoryStoreBoundedAndOrdered(t *testing.T) {
	s := NewMemoryStore(5)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		ev := events.LiveEvent{Type: events.TypeChat, Message: fmt.Sprintf("m%d", i)}
		if err := s.Append(ctx, "abc123", ev); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}

	recent, err := s.Recent(ctx, "abc123", 0)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(recent) != 5 {
		t.Fatalf("len=%d want=5", len(recent))
	}
	// Oldest first, holding the most recent five.
	for i, ev := range recent {
		want := fmt.Sprintf("m%d", 7+i)
		if ev.Message != want {
			t.Fatalf("recent[%d]=%q want=%q", i, ev.Message, want)
		}
	}
}

func TestMemoryStoreRoomsIsolated(t *testing.T) {
	s := NewMemoryStore(5)
	ctx := context.Background()

	s.Append(ctx, "room-a", events.LiveEvent{Message: "a"})
	s.Append(ctx, "room-b", events.LiveEvent{Message: "b"})

	recent, err := s.Recent(ctx, "room-a", 0)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(recent) != 1 || recent[0].Message != "a" {
		t.Fatalf("room-a history polluted: %v", recent)
	}
}
