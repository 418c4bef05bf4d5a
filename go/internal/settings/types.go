package settings

import (
	"fmt"
)

// OverlayType identifies which overlay page a settings object belongs to.
type OverlayType string

const (
	OverlayChat     OverlayType = "chat"
	OverlaySubtitle OverlayType = "subtitle"
	OverlayRoulette OverlayType = "roulette"
	OverlayVoting   OverlayType = "voting"
	OverlayEmoji    OverlayType = "emoji"
	OverlayBot      OverlayType = "bot"
)

// AllOverlayTypes lists every known overlay type.
var AllOverlayTypes = []OverlayType{
	OverlayChat,
	OverlaySubtitle,
	OverlayRoulette,
	OverlayVoting,
	OverlayEmoji,
	OverlayBot,
}

// ParseOverlayType validates a settings key from the API or socket boundary.
func ParseOverlayType(s string) (OverlayType, error) {
	switch t := OverlayType(s); t {
	case OverlayChat, OverlaySubtitle, OverlayRoulette, OverlayVoting, OverlayEmoji, OverlayBot:
		return t, nil
	}
	return "", fmt.Errorf("unknown overlay type %q", s)
}

// Settings is a fully merged settings object for one overlay type. After
// Merge every key of the type's defaults is present; values the server never
// customized hold their default.
type Settings map[string]any

// Clone returns a deep copy. Merge never mutates its inputs, and callers
// hand Settings across goroutine boundaries.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		if nested, ok := v.(map[string]any); ok {
			inner := make(map[string]any, len(nested))
			for nk, nv := range nested {
				inner[nk] = nv
			}
			out[k] = inner
			continue
		}
		out[k] = v
	}
	return out
}

// String returns the string value for key, or fallback when the key is
// missing or not a string.
func (s Settings) String(key, fallback string) string {
	if v, ok := s[key].(string); ok {
		return v
	}
	return fallback
}

// Int returns the integer value for key. JSON numbers decode as float64, so
// both forms are accepted.
func (s Settings) Int(key string, fallback int) int {
	switch v := s[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

// Bool returns the boolean value for key.
func (s Settings) Bool(key string, fallback bool) bool {
	if v, ok := s[key].(bool); ok {
		return v
	}
	return fallback
}

// Nested returns the nested object under key, or nil when absent.
func (s Settings) Nested(key string) map[string]any {
	if v, ok := s[key].(map[string]any); ok {
		return v
	}
	return nil
}

// RoleColor looks up the color for a role under the "colors" object. A role
// the streamer never configured falls back to the regular role's color, so an
// unexpected role in an event payload can never break rendering.
func (s Settings) RoleColor(role string) string {
	colors := s.Nested("colors")
	if colors == nil {
		return ""
	}
	if c, ok := colors[role].(string); ok {
		return c
	}
	if c, ok := colors["regular"].(string); ok {
		return c
	}
	return ""
}

// SampleDelay returns the idle threshold in seconds before demo events start,
// clamped to the range the settings editor allows.
func (s Settings) SampleDelay() int {
	d := s.Int("sampleDelay", DefaultSampleDelaySec)
	if d < MinSampleDelaySec {
		return MinSampleDelaySec
	}
	if d > MaxSampleDelaySec {
		return MaxSampleDelaySec
	}
	return d
}
