package engine

import (
	"fmt"
	"testing"

	"github.com/overlaykit/overlaykit/go/internal/overlay/events"
	"github.com/overlaykit/overlaykit/go/internal/settings"
)

func TestBufferEvictsOldestBeyondCapacity(t *testing.T) {
	b := NewBuffer(BufferCap(settings.OverlayChat))

	for i := 0; i < 60; i++ {
		b.Append(events.LiveEvent{ID: fmt.Sprintf("ev-%d", i), Type: events.TypeChat})
	}

	items := b.Items()
	if len(items) != 50 {
		t.Fatalf("expected 50 buffered events, got %d", len(items))
	}
	if items[0].ID != "ev-10" {
		t.Errorf("expected oldest survivor ev-10, got %s", items[0].ID)
	}
	for i, ev := range items {
		if want := fmt.Sprintf("ev-%d", i+10); ev.ID != want {
			t.Fatalf("arrival order broken at index %d: got %s, want %s", i, ev.ID, want)
		}
	}
}

func TestBufferBoundsSamplesSeparately(t *testing.T) {
	b := NewBuffer(50)

	for i := 0; i < SampleCap+3; i++ {
		b.Append(events.LiveEvent{ID: fmt.Sprintf("sample-%d", i), Type: events.TypeChat, IsSample: true})
	}

	items := b.Items()
	if len(items) != SampleCap {
		t.Fatalf("expected %d samples, got %d", SampleCap, len(items))
	}
	if items[0].ID != "sample-3" {
		t.Errorf("expected oldest samples evicted first, got %s at front", items[0].ID)
	}
}

func TestBufferClearSamplesKeepsRealEvents(t *testing.T) {
	b := NewBuffer(10)
	b.Append(events.LiveEvent{ID: "s1", IsSample: true})
	b.Append(events.LiveEvent{ID: "r1"})
	b.Append(events.LiveEvent{ID: "s2", IsSample: true})
	b.Append(events.LiveEvent{ID: "r2"})

	b.ClearSamples()

	items := b.Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 real events, got %d", len(items))
	}
	if items[0].ID != "r1" || items[1].ID != "r2" {
		t.Errorf("real events out of order: %s, %s", items[0].ID, items[1].ID)
	}
}

func TestBufferCapPerOverlayType(t *testing.T) {
	tests := []struct {
		typ  settings.OverlayType
		want int
	}{
		{settings.OverlayChat, 50},
		{settings.OverlayEmoji, 8},
		{settings.OverlaySubtitle, 5},
		{settings.OverlayRoulette, 10},
	}
	for _, tt := range tests {
		if got := BufferCap(tt.typ); got != tt.want {
			t.Errorf("BufferCap(%s) = %d, want %d", tt.typ, got, tt.want)
		}
	}
}
