package settings

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestMergeKeepsEveryDefaultKey(t *testing.T) {
	for _, typ := range AllOverlayTypes {
		defaults := Defaults(typ)
		merged, err := Merge(typ, json.RawMessage(`{"theme":"neon"}`))
		if err != nil {
			t.Fatalf("%s: merge failed: %v", typ, err)
		}
		for key := range defaults {
			if _, ok := merged[key]; !ok {
				t.Fatalf("%s: default key %q missing after merge", typ, key)
			}
		}
	}
}

func TestMergeServerValueWins(t *testing.T) {
	merged, err := Merge(OverlayChat, json.RawMessage(`{"fontSize":28,"theme":"dark"}`))
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if got := merged.Int("fontSize", 0); got != 28 {
		t.Fatalf("fontSize=%d want=28", got)
	}
	if got := merged.String("theme", ""); got != "dark" {
		t.Fatalf("theme=%q want=dark", got)
	}
	// Untouched keys keep their defaults.
	if got := merged.String("animation", ""); got != "slide" {
		t.Fatalf("animation=%q want=slide", got)
	}
}

func TestMergeNestedColorsShallowRecursive(t *testing.T) {
	merged, err := Merge(OverlayChat, json.RawMessage(`{"colors":{"streamer":"#ff0000"}}`))
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	colors := merged.Nested("colors")
	if colors == nil {
		t.Fatalf("colors object missing after merge")
	}
	if colors["streamer"] != "#ff0000" {
		t.Fatalf("streamer=%v want=#ff0000", colors["streamer"])
	}
	// Roles the server omitted keep their defaults instead of vanishing.
	if colors["regular"] != "#e5e7eb" {
		t.Fatalf("regular=%v want default", colors["regular"])
	}
	if colors["fan"] != "#22c55e" {
		t.Fatalf("fan=%v want default", colors["fan"])
	}
}

func TestMergeNonNestedObjectReplacedWholesale(t *testing.T) {
	// "segments" is not a schema nested key for roulette, so the server's
	// array replaces the default entirely.
	merged, err := Merge(OverlayRoulette, json.RawMessage(`{"segments":["A","B","C"]}`))
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	segs, ok := merged["segments"].([]any)
	if !ok || len(segs) != 3 {
		t.Fatalf("segments=%v want 3 entries", merged["segments"])
	}
}

func TestMergeIdempotent(t *testing.T) {
	raw := json.RawMessage(`{"fontSize":30,"colors":{"fan":"#123456"}}`)
	first, err := Merge(OverlayChat, raw)
	if err != nil {
		t.Fatalf("first merge failed: %v", err)
	}
	second, err := Merge(OverlayChat, raw)
	if err != nil {
		t.Fatalf("second merge failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("merge is not idempotent:\nfirst=%v\nsecond=%v", first, second)
	}
}

func TestMergeStringEncodedValue(t *testing.T) {
	merged, err := Merge(OverlayChat, json.RawMessage(`"{\"fontSize\":40}"`))
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if got := merged.Int("fontSize", 0); got != 40 {
		t.Fatalf("fontSize=%d want=40", got)
	}
}

func TestMergeEmptyValueMeansDefaults(t *testing.T) {
	for _, raw := range []json.RawMessage{nil, json.RawMessage(`{}`), json.RawMessage(`"{}"`), json.RawMessage(`""`)} {
		merged, err := Merge(OverlayChat, raw)
		if err != nil {
			t.Fatalf("merge of %q failed: %v", raw, err)
		}
		if !reflect.DeepEqual(merged, Defaults(OverlayChat)) {
			t.Fatalf("merge of %q should equal defaults", raw)
		}
	}
}

func TestMergeCorruptValueRetainsDefaults(t *testing.T) {
	merged, err := Merge(OverlayChat, json.RawMessage(`"{not json"`))
	if err == nil {
		t.Fatalf("expected decode error for corrupt value")
	}
	if !reflect.DeepEqual(merged, Defaults(OverlayChat)) {
		t.Fatalf("corrupt value must leave defaults untouched, got %v", merged)
	}
}

func TestRoleColorUnknownRoleFallsBack(t *testing.T) {
	merged, err := Merge(OverlayChat, nil)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	regular := merged.RoleColor("regular")
	if regular == "" {
		t.Fatalf("regular role must have a default color")
	}
	if got := merged.RoleColor("moderator-of-the-month"); got != regular {
		t.Fatalf("unknown role color=%q want regular fallback %q", got, regular)
	}
}

func TestSampleDelayClamped(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{`{"sampleDelay":1}`, MinSampleDelaySec},
		{`{"sampleDelay":45}`, 45},
		{`{"sampleDelay":9000}`, MaxSampleDelaySec},
		{`{}`, DefaultSampleDelaySec},
	}
	for _, tt := range tests {
		merged, err := Merge(OverlayChat, json.RawMessage(tt.raw))
		if err != nil {
			t.Fatalf("merge of %s failed: %v", tt.raw, err)
		}
		if got := merged.SampleDelay(); got != tt.want {
			t.Fatalf("sampleDelay for %s = %d want %d", tt.raw, got, tt.want)
		}
	}
}

func TestParseOverlayType(t *testing.T) {
	if _, err := ParseOverlayType("chat"); err != nil {
		t.Fatalf("chat should parse: %v", err)
	}
	if _, err := ParseOverlayType("dashboard"); err == nil {
		t.Fatalf("unknown overlay type should be rejected")
	}
}
