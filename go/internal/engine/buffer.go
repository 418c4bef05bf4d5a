// Package engine implements the overlay sync engine: the client-side state
// machine every overlay page runs. It keeps a merged settings object fresh,
// feeds live events into a bounded message buffer, injects demo events when
// the stream is idle, and derives the render state the view binds to.
//
// The socket connection and clock are injected so every transition is
// testable without a real server.
package engine

import (
	"sync"

	"github.com/overlaykit/overlaykit/go/internal/overlay/events"
	"github.com/overlaykit/overlaykit/go/internal/settings"
)

// SampleCap bounds how many synthetic demo events the buffer holds.
const SampleCap = 4

// BufferCap returns the message buffer capacity for an overlay type. The
// chat overlay scrolls, so it keeps the most; emoji overlays only animate a
// handful at once.
func BufferCap(t settings.OverlayType) int {
	switch t {
	case settings.OverlayChat:
		return 50
	case settings.OverlayEmoji:
		return 8
	case settings.OverlaySubtitle:
		return 5
	default:
		return 10
	}
}

// Buffer is a bounded, ordered sequence of live events. Appends preserve
// arrival order; once full, the oldest entry is evicted. Each mounted
// overlay owns its buffer exclusively.
type Buffer struct {
	mu    sync.Mutex
	cap   int
	items []events.LiveEvent
}

// NewBuffer creates a buffer with the given capacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{cap: capacity, items: make([]events.LiveEvent, 0, capacity)}
}

// Append adds an event, evicting the oldest when over capacity. Synthetic
// events are bounded by SampleCap instead so demo mode never fills the
// screen.
func (b *Buffer) Append(ev events.LiveEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append(b.items, ev)

	if ev.IsSample {
		if n := b.sampleCountLocked(); n > SampleCap {
			b.evictOldestSampleLocked()
		}
	}
	if len(b.items) > b.cap {
		b.items = b.items[len(b.items)-b.cap:]
	}
}

// Items returns a snapshot in arrival order.
func (b *Buffer) Items() []events.LiveEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]events.LiveEvent, len(b.items))
	copy(out, b.items)
	return out
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Clear drops everything.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = b.items[:0]
}

// ClearSamples drops synthetic events, keeping real ones. Called when a real
// event arrives while demo mode is showing.
func (b *Buffer) ClearSamples() {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.items[:0]
	for _, ev := range b.items {
		if !ev.IsSample {
			kept = append(kept, ev)
		}
	}
	b.items = kept
}

func (b *Buffer) sampleCountLocked() int {
	n := 0
	for _, ev := range b.items {
		if ev.IsSample {
			n++
		}
	}
	return n
}

func (b *Buffer) evictOldestSampleLocked() {
	for i, ev := range b.items {
		if ev.IsSample {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return
		}
	}
}
