package engine

import (
	"fmt"

	"github.com/overlaykit/overlaykit/go/internal/overlay/events"
	"github.com/overlaykit/overlaykit/go/internal/settings"
)

// RenderedMessage is one visual line/item: everything the view needs,
// already resolved against settings. Unknown roles and platforms resolve to
// safe fallbacks here so the view never has to defend itself.
type RenderedMessage struct {
	Sender        string
	Message       string
	Color         string
	PlatformBadge string
	FontSize      string
	IsSample      bool
}

// RenderState is the full derived view state for one overlay.
type RenderState struct {
	Theme     string
	Direction string
	Animation string
	Opacity   float64
	Paused    bool
	Messages  []RenderedMessage
}

// knownPlatforms gate the badge; anything else renders without one.
var knownPlatforms = map[events.Platform]bool{
	events.PlatformSoop:    true,
	events.PlatformChzzk:   true,
	events.PlatformYouTube: true,
	events.PlatformTwitch:  true,
}

// Render derives view state from settings, the buffered events, and local
// toggles. It is a pure function of its inputs.
func Render(st settings.Settings, items []events.LiveEvent, paused bool) RenderState {
	fontSize := fmt.Sprintf("%dpx", st.Int("fontSize", 24))
	showPlatform := st.Bool("showPlatform", true)

	messages := make([]RenderedMessage, 0, len(items))
	for _, ev := range items {
		badge := ""
		if showPlatform && knownPlatforms[ev.Platform] {
			badge = string(ev.Platform)
		}
		messages = append(messages, RenderedMessage{
			Sender:        ev.Sender,
			Message:       ev.Message,
			Color:         st.RoleColor(string(ev.Role)),
			PlatformBadge: badge,
			FontSize:      fontSize,
			IsSample:      ev.IsSample,
		})
	}

	transparency := st.Int("transparency", 0)
	if transparency < 0 {
		transparency = 0
	}
	if transparency > 100 {
		transparency = 100
	}

	return RenderState{
		Theme:     st.String("theme", "default"),
		Direction: st.String("direction", "bottom"),
		Animation: st.String("animation", "slide"),
		Opacity:   1 - float64(transparency)/100,
		Paused:    paused,
		Messages:  messages,
	}
}
