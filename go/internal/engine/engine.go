package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/overlaykit/overlaykit/go/internal/overlay/events"
	"github.com/overlaykit/overlaykit/go/internal/settings"
)

// Engine drives one mounted overlay: it consumes socket events, keeps
// settings fresh, manages the message buffer, and runs the idle demo feed.
// All time-based behavior goes through the injected clock.
type Engine struct {
	typ      settings.OverlayType
	userHash string
	store    *Store
	buffer   *Buffer
	clock    clockwork.Clock

	mu           sync.Mutex
	paused       bool
	lastReal     time.Time
	sampler      samplerState
	sampleIdx    int
	nextSampleAt time.Time
}

// New creates an engine for one overlay type and tenant.
func New(typ settings.OverlayType, userHash string, store *Store, clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		typ:      typ,
		userHash: userHash,
		store:    store,
		buffer:   NewBuffer(BufferCap(typ)),
		clock:    clock,
		lastReal: clock.Now(),
	}
}

// Apply folds one live event into the buffer. A real event always refreshes
// the idle timestamp and ends demo mode, even while paused; pause gates only
// the append, so a paused overlay on a live stream never keeps stale demo
// messages showing.
func (e *Engine) Apply(ev events.LiveEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !ev.IsSample {
		e.lastReal = e.clock.Now()
		if e.sampler == samplerActive {
			e.stopSamplingLocked()
		}
	}

	if e.paused {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.clock.Now()
	}
	e.buffer.Append(ev)
}

// HandleEnvelope routes a socket envelope into the engine. Settings change
// notices for other overlay types are ignored.
func (e *Engine) HandleEnvelope(ctx context.Context, env events.Envelope) {
	switch env.Event {
	case events.EventNewEvent:
		var ev events.LiveEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			log.Warn().Err(err).Msg("malformed new-event payload")
			return
		}
		e.Apply(ev)

	case events.EventSettingsUpdated:
		var p events.SettingsUpdatePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Warn().Err(err).Msg("malformed settings-updated payload")
			return
		}
		if p.Key != "" && p.Key != string(e.typ) {
			return
		}
		e.store.Refresh(ctx)
	}
}

// Attach registers this engine's handlers on a channel and joins the
// tenant's room. The channel outlives the engine only if the caller wants it
// to; closing the channel detaches everything.
func (e *Engine) Attach(ctx context.Context, ch *Channel) error {
	ch.On(events.EventNewEvent, func(data json.RawMessage) {
		e.HandleEnvelope(ctx, events.Envelope{Event: events.EventNewEvent, Data: data})
	})
	ch.On(events.EventSettingsUpdated, func(data json.RawMessage) {
		e.HandleEnvelope(ctx, events.Envelope{Event: events.EventSettingsUpdated, Data: data})
	})
	return ch.Join(e.userHash)
}

// Pause stops the overlay from accepting new events. Already-buffered
// events stay visible.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
}

// Resume re-enables event intake. The idle timer restarts from now so demo
// mode does not fire immediately after a long pause.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = false
	e.lastReal = e.clock.Now()
}

// Clear empties the buffer and resets demo mode.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffer.Clear()
	e.sampler = samplerIdle
	e.lastReal = e.clock.Now()
}

// Tick advances time-based behavior (the idle demo feed). Run calls this
// once per check interval; tests call it directly.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return
	}
	e.tickSampler(now)
}

// Run ticks the engine until the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := e.clock.NewTicker(sampleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.Chan():
			e.Tick(now)
		}
	}
}

// Render derives the current view state.
func (e *Engine) Render() RenderState {
	e.mu.Lock()
	paused := e.paused
	e.mu.Unlock()

	return Render(e.store.Current(), e.buffer.Items(), paused)
}

// Buffer exposes the underlying event buffer.
func (e *Engine) Buffer() *Buffer {
	return e.buffer
}
