package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/overlaykit/overlaykit/go/internal/overlay/events"
)

// ChannelState tracks where a connection is in its lifecycle.
type ChannelState int

const (
	StateDisconnected ChannelState = iota
	StateJoining
	StateSubscribed
	StateLeaving
)

func (s ChannelState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateJoining:
		return "joining"
	case StateSubscribed:
		return "subscribed"
	case StateLeaving:
		return "leaving"
	}
	return "unknown"
}

// Handler receives the raw payload of a named socket event.
type Handler func(data json.RawMessage)

// Channel is one overlay page's connection to the gateway. It is constructed
// explicitly and injected wherever it is needed; there is no package-level
// singleton, so tests run against a fake server and pages cannot couple
// through a hidden shared connection.
//
// Lifecycle: Disconnected -> Joining (join-overlay emitted) -> Subscribed ->
// Leaving (leave-overlay emitted, handlers removed) -> Disconnected. Close is
// the only way out; reconnection is the caller's concern, as is the
// underlying client's retry policy.
type Channel struct {
	conn *websocket.Conn

	mu       sync.Mutex
	writeMu  sync.Mutex
	state    ChannelState
	userHash string
	handlers map[string][]Handler

	done     chan struct{}
	doneOnce sync.Once
}

// Dial connects to a gateway URL (ws:// or wss://) and starts the read loop.
func Dial(ctx context.Context, url string) (*Channel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial overlay gateway: %w", err)
	}
	return NewChannel(conn), nil
}

// NewChannel wraps an established connection. The read loop starts
// immediately.
func NewChannel(conn *websocket.Conn) *Channel {
	c := &Channel{
		conn:     conn,
		state:    StateDisconnected,
		handlers: make(map[string][]Handler),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// State returns the current lifecycle state.
func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HandlerCount reports how many handlers are registered, across all events.
func (c *Channel) HandlerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, hs := range c.handlers {
		n += len(hs)
	}
	return n
}

// On registers a handler for a named event.
func (c *Channel) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// Emit sends a named event to the gateway.
func (c *Channel) Emit(event string, data any) error {
	env := events.NewEnvelope(event, data)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// Join subscribes this connection to a tenant's room. Exactly one
// join-overlay is emitted per successful call; joining while already
// subscribed to another hash leaves that room first.
func (c *Channel) Join(userHash string) error {
	c.mu.Lock()
	if c.state == StateSubscribed && c.userHash == userHash {
		c.mu.Unlock()
		return nil
	}
	prev := c.userHash
	needLeave := c.state == StateSubscribed && prev != ""
	c.state = StateJoining
	c.mu.Unlock()

	if needLeave {
		if err := c.Emit(events.EventLeaveOverlay, events.JoinPayload{UserHash: prev}); err != nil {
			log.Error().Err(err).Str("user_hash", prev).Msg("failed to leave previous overlay room")
		}
	}

	if err := c.Emit(events.EventJoinOverlay, events.JoinPayload{UserHash: userHash}); err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.userHash = userHash
	c.state = StateSubscribed
	c.mu.Unlock()

	log.Debug().Str("user_hash", userHash).Msg("joined overlay room")
	return nil
}

// Close leaves the room, removes every handler, and closes the connection.
// Safe to call more than once; the page unmount path must always land here
// so no listeners leak across navigations.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.state == StateDisconnected && c.handlers == nil {
		c.mu.Unlock()
		return nil
	}
	hash := c.userHash
	subscribed := c.state == StateSubscribed
	c.state = StateLeaving
	c.mu.Unlock()

	if subscribed && hash != "" {
		if err := c.Emit(events.EventLeaveOverlay, events.JoinPayload{UserHash: hash}); err != nil {
			log.Debug().Err(err).Msg("leave-overlay emit failed during close")
		}
	}

	c.mu.Lock()
	c.handlers = nil
	c.state = StateDisconnected
	c.userHash = ""
	c.mu.Unlock()

	err := c.conn.Close()
	c.doneOnce.Do(func() { close(c.done) })
	return err
}

// Done is closed when the read loop exits.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// readLoop dispatches incoming envelopes to registered handlers until the
// connection drops.
func (c *Channel) readLoop() {
	defer func() {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.doneOnce.Do(func() { close(c.done) })
	}()

	for {
		var env events.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}

		c.mu.Lock()
		hs := append([]Handler(nil), c.handlers[env.Event]...)
		c.mu.Unlock()

		for _, h := range hs {
			h(env.Data)
		}
	}
}
