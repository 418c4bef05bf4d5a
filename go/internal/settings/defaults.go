package settings

// Sample delay bounds enforced by the settings editor.
const (
	DefaultSampleDelaySec = 30
	MinSampleDelaySec     = 5
	MaxSampleDelaySec     = 300
)

// Schema describes how one overlay type's settings merge. NestedKeys are the
// only keys merged shallow-recursively; any other object value from the
// server replaces the default wholesale.
type Schema struct {
	Type       OverlayType
	NestedKeys []string
}

var schemas = map[OverlayType]Schema{
	OverlayChat:     {Type: OverlayChat, NestedKeys: []string{"colors", "viewerCount", "notice"}},
	OverlaySubtitle: {Type: OverlaySubtitle, NestedKeys: []string{"colors"}},
	OverlayRoulette: {Type: OverlayRoulette, NestedKeys: []string{"colors", "timer"}},
	OverlayVoting:   {Type: OverlayVoting, NestedKeys: []string{"colors", "timer"}},
	OverlayEmoji:    {Type: OverlayEmoji, NestedKeys: []string{"colors"}},
	OverlayBot:      {Type: OverlayBot, NestedKeys: nil},
}

// SchemaFor returns the merge schema for an overlay type.
func SchemaFor(t OverlayType) Schema {
	return schemas[t]
}

// Defaults returns the hard-coded default settings for an overlay type.
// Every overlay page renders from these until the tenant customizes them.
func Defaults(t OverlayType) Settings {
	switch t {
	case OverlayChat:
		return Settings{
			"theme":          "default",
			"direction":      "bottom",
			"animation":      "slide",
			"fontSize":       24,
			"transparency":   0,
			"maxMessages":    50,
			"hideCommands":   true,
			"showPlatform":   true,
			"showSampleChat": true,
			"sampleDelay":    DefaultSampleDelaySec,
			"colors": map[string]any{
				"streamer":   "#f97316",
				"manager":    "#8b5cf6",
				"fan":        "#22c55e",
				"subscriber": "#eab308",
				"regular":    "#e5e7eb",
			},
			"viewerCount": map[string]any{
				"enabled":  false,
				"position": "top-right",
			},
			"notice": map[string]any{
				"enabled": false,
				"text":    "",
			},
		}
	case OverlaySubtitle:
		return Settings{
			"theme":     "default",
			"fontSize":  32,
			"position":  "bottom",
			"outline":   true,
			"colors": map[string]any{
				"regular": "#ffffff",
			},
		}
	case OverlayRoulette:
		return Settings{
			"theme":       "default",
			"spinSeconds": 6,
			"segments":    []any{"Win", "Lose"},
			"colors": map[string]any{
				"regular": "#e5e7eb",
				"wheel":   "#6366f1",
			},
			"timer": map[string]any{
				"enabled": false,
				"seconds": 60,
			},
		}
	case OverlayVoting:
		return Settings{
			"theme":       "default",
			"fontSize":    28,
			"showCounts":  true,
			"anonymous":   false,
			"colors": map[string]any{
				"regular": "#e5e7eb",
				"bar":     "#3b82f6",
			},
			"timer": map[string]any{
				"enabled": true,
				"seconds": 120,
			},
		}
	case OverlayEmoji:
		return Settings{
			"theme":       "default",
			"maxOnScreen": 8,
			"burstSize":   5,
			"floatTime":   4,
			"colors": map[string]any{
				"regular": "#e5e7eb",
			},
		}
	case OverlayBot:
		return Settings{
			"enabled":       false,
			"greeting":      "",
			"commandPrefix": "!",
			"cooldown":      10,
		}
	}
	return Settings{}
}
