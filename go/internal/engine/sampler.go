package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/overlaykit/overlaykit/go/internal/overlay/events"
)

// Sample rotation cadence: once demo mode is active, one synthetic event is
// added per rotation. The check tick is how often idleness is re-evaluated.
const (
	sampleRotateInterval = 3 * time.Second
	sampleCheckInterval  = time.Second
)

// samplePool is the canned demo feed shown while a stream is idle.
var samplePool = []events.LiveEvent{
	{Type: events.TypeChat, Sender: "mochi", Platform: events.PlatformSoop, Role: events.RoleFan, Message: "hello from the demo feed!"},
	{Type: events.TypeChat, Sender: "ddakji", Platform: events.PlatformChzzk, Role: events.RoleSubscriber, Message: "overlay looking clean today"},
	{Type: events.TypeChat, Sender: "pixel_cat", Platform: events.PlatformYouTube, Role: events.RoleRegular, Message: "first time here, nice stream"},
	{Type: events.TypeDonation, Sender: "bigfan99", Platform: events.PlatformTwitch, Role: events.RoleFan, Message: "keep it up!", Amount: 5000},
	{Type: events.TypeChat, Sender: "manager_kim", Platform: events.PlatformSoop, Role: events.RoleManager, Message: "welcome everyone, be nice"},
}

// samplerState is the demo-feed state machine: Idle until the buffer has
// been empty past the configured delay, SamplingActive until a real event
// arrives.
type samplerState int

const (
	samplerIdle samplerState = iota
	samplerActive
)

// tickSampler advances the sampler one check tick. Caller holds e.mu.
func (e *Engine) tickSampler(now time.Time) {
	st := e.store.Current()
	if !st.Bool("showSampleChat", false) {
		if e.sampler == samplerActive {
			e.stopSamplingLocked()
		}
		return
	}

	delay := time.Duration(st.SampleDelay()) * time.Second

	switch e.sampler {
	case samplerIdle:
		if e.buffer.Len() != 0 {
			return
		}
		if now.Sub(e.lastReal) < delay {
			return
		}
		// Threshold crossed: show one sample right away, rotate from there.
		e.sampler = samplerActive
		e.injectSampleLocked(now)
		e.nextSampleAt = now.Add(sampleRotateInterval)

	case samplerActive:
		if now.Before(e.nextSampleAt) {
			return
		}
		e.injectSampleLocked(now)
		e.nextSampleAt = now.Add(sampleRotateInterval)
	}
}

// injectSampleLocked appends the next canned event. Caller holds e.mu.
func (e *Engine) injectSampleLocked(now time.Time) {
	ev := samplePool[e.sampleIdx%len(samplePool)]
	e.sampleIdx++

	ev.ID = uuid.NewString()
	ev.Timestamp = now
	ev.IsSample = true
	e.buffer.Append(ev)
}

// stopSamplingLocked exits demo mode and drops synthetic events. Caller
// holds e.mu.
func (e *Engine) stopSamplingLocked() {
	e.sampler = samplerIdle
	e.buffer.ClearSamples()
}
