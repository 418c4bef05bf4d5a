package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/overlaykit/overlaykit/go/internal/overlay/events"
)

// gatewayRecorder is a minimal in-test gateway: it upgrades connections and
// records every envelope a client emits.
type gatewayRecorder struct {
	upgrader websocket.Upgrader

	mu       sync.Mutex
	received []events.Envelope
	conns    []*websocket.Conn
}

func newGatewayRecorder() *gatewayRecorder {
	return &gatewayRecorder{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

func (g *gatewayRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	g.mu.Lock()
	g.conns = append(g.conns, conn)
	g.mu.Unlock()

	for {
		var env events.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		g.mu.Lock()
		g.received = append(g.received, env)
		g.mu.Unlock()
	}
}

func (g *gatewayRecorder) envelopes() []events.Envelope {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]events.Envelope(nil), g.received...)
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func dialTest(t *testing.T, g *gatewayRecorder) *Channel {
	t.Helper()
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ch, err := Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return ch
}

func countEvents(envs []events.Envelope, name string) int {
	n := 0
	for _, env := range envs {
		if env.Event == name {
			n++
		}
	}
	return n
}

func TestChannelJoinLeaveLifecycle(t *testing.T) {
	g := newGatewayRecorder()
	ch := dialTest(t, g)

	if err := ch.Join("abc123"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if ch.State() != StateSubscribed {
		t.Errorf("state = %s, want subscribed", ch.State())
	}

	// Joining the same room again must not emit a second join.
	if err := ch.Join("abc123"); err != nil {
		t.Fatalf("repeat join failed: %v", err)
	}

	if err := ch.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if ch.State() != StateDisconnected {
		t.Errorf("state after close = %s, want disconnected", ch.State())
	}

	waitFor(t, func() bool {
		envs := g.envelopes()
		return countEvents(envs, events.EventJoinOverlay) == 1 &&
			countEvents(envs, events.EventLeaveOverlay) == 1
	})

	for _, env := range g.envelopes() {
		if env.Event != events.EventJoinOverlay && env.Event != events.EventLeaveOverlay {
			continue
		}
		var p events.JoinPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			t.Fatalf("bad payload for %s: %v", env.Event, err)
		}
		if p.UserHash != "abc123" {
			t.Errorf("%s userHash = %s, want abc123", env.Event, p.UserHash)
		}
	}
}

func TestChannelSwitchingRoomsLeavesPrevious(t *testing.T) {
	g := newGatewayRecorder()
	ch := dialTest(t, g)
	defer ch.Close()

	if err := ch.Join("room-a"); err != nil {
		t.Fatalf("join room-a: %v", err)
	}
	if err := ch.Join("room-b"); err != nil {
		t.Fatalf("join room-b: %v", err)
	}

	waitFor(t, func() bool {
		envs := g.envelopes()
		return countEvents(envs, events.EventJoinOverlay) == 2 &&
			countEvents(envs, events.EventLeaveOverlay) == 1
	})

	var left events.JoinPayload
	for _, env := range g.envelopes() {
		if env.Event == events.EventLeaveOverlay {
			json.Unmarshal(env.Data, &left)
		}
	}
	if left.UserHash != "room-a" {
		t.Errorf("left room %s, want room-a", left.UserHash)
	}
}

func TestChannelCloseRemovesAllHandlers(t *testing.T) {
	g := newGatewayRecorder()
	ch := dialTest(t, g)

	ch.On(events.EventNewEvent, func(json.RawMessage) {})
	ch.On(events.EventNewEvent, func(json.RawMessage) {})
	ch.On(events.EventSettingsUpdated, func(json.RawMessage) {})
	if ch.HandlerCount() != 3 {
		t.Fatalf("handler count = %d, want 3", ch.HandlerCount())
	}

	ch.Close()
	if ch.HandlerCount() != 0 {
		t.Errorf("handlers leaked across close: %d remain", ch.HandlerCount())
	}

	// A second close is a no-op.
	if err := ch.Close(); err != nil {
		t.Errorf("repeat close returned %v", err)
	}
}

func TestChannelDispatchesIncomingEnvelopes(t *testing.T) {
	g := newGatewayRecorder()
	ch := dialTest(t, g)
	defer ch.Close()

	got := make(chan events.LiveEvent, 1)
	ch.On(events.EventNewEvent, func(data json.RawMessage) {
		var ev events.LiveEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Errorf("bad new-event payload: %v", err)
			return
		}
		got <- ev
	})

	waitFor(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return len(g.conns) == 1
	})

	g.mu.Lock()
	conn := g.conns[0]
	g.mu.Unlock()
	env := events.NewEnvelope(events.EventNewEvent, events.LiveEvent{
		ID: "ev-1", Type: events.TypeChat, Sender: "mochi", Message: "hi",
	})
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("server write failed: %v", err)
	}

	select {
	case ev := <-got:
		if ev.Sender != "mochi" || ev.Message != "hi" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never received the event")
	}
}

func TestChannelDoneClosesWhenConnectionDrops(t *testing.T) {
	g := newGatewayRecorder()
	ch := dialTest(t, g)

	waitFor(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return len(g.conns) == 1
	})

	g.mu.Lock()
	g.conns[0].Close()
	g.mu.Unlock()

	select {
	case <-ch.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("done channel never closed after server dropped the connection")
	}
}
