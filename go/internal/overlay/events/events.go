package events

import (
	"encoding/json"
	"time"
)

// Envelope is the wire format for every message crossing the overlay socket,
// in both directions. Data carries the event-specific payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewEnvelope marshals data into an Envelope. A payload that cannot be
// marshalled yields an envelope with empty data rather than an error; the
// payloads in this package are all plain JSON-able structs.
func NewEnvelope(event string, data any) Envelope {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = []byte("{}")
	}
	return Envelope{Event: event, Data: raw}
}

// Socket event names. Client-emitted names match what the overlay pages send;
// server-emitted names are what overlay pages subscribe to.
const (
	// Client -> server.
	EventJoinOverlay    = "join-overlay"
	EventLeaveOverlay   = "leave-overlay"
	EventSettingsUpdate = "settings-update"

	// Server -> client.
	EventNewEvent        = "new-event"
	EventSettingsUpdated = "settings-updated"

	// Test/trigger events, client-emitted and rebroadcast to the room.
	EventRouletteSpin  = "roulette-spin"
	EventPollStart     = "poll-start"
	EventPollVote      = "poll-vote"
	EventPollEnd       = "poll-end"
	EventEmojiReaction = "emoji-reaction"
	EventEmojiBurst    = "emoji-burst"
	EventBotMessage    = "bot-message"
	EventBotToggle     = "bot-toggle"
)

// EventType discriminates LiveEvent records.
type EventType string

const (
	TypeChat          EventType = "chat"
	TypeDonation      EventType = "donation"
	TypeSubscribe     EventType = "subscribe"
	TypeFollow        EventType = "follow"
	TypeRouletteSpin  EventType = "roulette-spin"
	TypePollStart     EventType = "poll-start"
	TypePollVote      EventType = "poll-vote"
	TypePollEnd       EventType = "poll-end"
	TypeEmojiReaction EventType = "emoji-reaction"
	TypeEmojiBurst    EventType = "emoji-burst"
	TypeBotMessage    EventType = "bot-message"
)

// Platform identifies which streaming platform an event originated from.
type Platform string

const (
	PlatformSoop    Platform = "soop"
	PlatformChzzk   Platform = "chzzk"
	PlatformYouTube Platform = "youtube"
	PlatformTwitch  Platform = "twitch"
)

// Role is the sender's standing in the channel. Unknown roles are rendered
// with the regular role's styling, never rejected.
type Role string

const (
	RoleStreamer   Role = "streamer"
	RoleManager    Role = "manager"
	RoleFan        Role = "fan"
	RoleSubscriber Role = "subscriber"
	RoleRegular    Role = "regular"
)

// LiveEvent is a single event pushed to overlay pages: a chat line, a
// donation, a poll vote, an emoji reaction. Synthetic demo events carry
// IsSample so real arrivals can evict them.
type LiveEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Sender    string    `json:"sender,omitempty"`
	Platform  Platform  `json:"platform,omitempty"`
	Role      Role      `json:"role,omitempty"`
	Message   string    `json:"message,omitempty"`
	Amount    int       `json:"amount,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	IsSample  bool      `json:"is_sample,omitempty"`
}

// JoinPayload is the payload for join-overlay and leave-overlay.
type JoinPayload struct {
	UserHash string `json:"userHash"`
}

// SettingsUpdatePayload is the payload for settings-update (client) and
// settings-updated (server). Key is the overlay type whose settings changed.
type SettingsUpdatePayload struct {
	Key      string `json:"key"`
	UserHash string `json:"userHash,omitempty"`
}

// RouletteSpinPayload announces a roulette spin with its winning segment.
type RouletteSpinPayload struct {
	Segments []string  `json:"segments"`
	Winner   int       `json:"winner"`
	SpunAt   time.Time `json:"spun_at"`
}

// PollStartPayload opens a vote with the given options.
type PollStartPayload struct {
	Question  string    `json:"question"`
	Options   []string  `json:"options"`
	StartedAt time.Time `json:"started_at"`
	Duration  int       `json:"duration_sec"`
}

// PollVotePayload records one vote for an option index.
type PollVotePayload struct {
	Option int    `json:"option"`
	Voter  string `json:"voter,omitempty"`
}

// PollEndPayload closes the vote and carries the final tally.
type PollEndPayload struct {
	Counts  []int     `json:"counts"`
	EndedAt time.Time `json:"ended_at"`
}

// EmojiPayload is shared by emoji-reaction (one emoji) and emoji-burst
// (Count copies released at once).
type EmojiPayload struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count,omitempty"`
}

// BotMessagePayload is an automated chat line from the stream bot.
type BotMessagePayload struct {
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

// ParseEventPayload parses an envelope's data into the matching payload
// struct. Unknown events return (nil, nil) so callers can ignore them.
func ParseEventPayload(env Envelope) (any, error) {
	switch env.Event {
	case EventJoinOverlay, EventLeaveOverlay:
		var p JoinPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil

	case EventSettingsUpdate, EventSettingsUpdated:
		var p SettingsUpdatePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil

	case EventNewEvent:
		var p LiveEvent
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil

	case EventRouletteSpin:
		var p RouletteSpinPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil

	case EventPollStart:
		var p PollStartPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil

	case EventPollVote:
		var p PollVotePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil

	case EventPollEnd:
		var p PollEndPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil

	case EventEmojiReaction, EventEmojiBurst:
		var p EmojiPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil

	case EventBotMessage:
		var p BotMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil

	default:
		return nil, nil
	}
}
