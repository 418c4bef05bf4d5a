package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/overlaykit/overlaykit/go/internal/settings"
)

func TestSettingsClientFetchMergesOverDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/overlay/abc123/settings/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"value":{"fontSize":30,"theme":"neon"}}`))
	}))
	defer srv.Close()

	c := NewSettingsClient(srv.URL, "")
	got, err := c.Fetch(context.Background(), settings.OverlayChat, "abc123")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if got.Int("fontSize", 0) != 30 {
		t.Errorf("fontSize = %d, want 30", got.Int("fontSize", 0))
	}
	if got.String("theme", "") != "neon" {
		t.Errorf("theme = %s, want neon", got.String("theme", ""))
	}
	// Keys the server never sent still carry defaults.
	if got.String("direction", "") != "bottom" {
		t.Errorf("direction = %s, want default bottom", got.String("direction", ""))
	}
	if got.RoleColor("streamer") != "#f97316" {
		t.Errorf("streamer color = %s, want default", got.RoleColor("streamer"))
	}
}

func TestSettingsClientFetchLegacyPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"value":{}}`))
	}))
	defer srv.Close()

	c := NewSettingsClient(srv.URL, "")
	if _, err := c.Fetch(context.Background(), settings.OverlayVoting, ""); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if gotPath != "/api/settings/voting" {
		t.Errorf("path = %s, want /api/settings/voting", gotPath)
	}
}

func TestSettingsClientSaveUsesBearerToken(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/user-settings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewSettingsClient(srv.URL, "secret-token")
	err := c.Save(context.Background(), settings.OverlayChat, "abc123", map[string]any{"fontSize": 28})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if gotAuth != "Bearer secret-token" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotBody["key"] != "chat" || gotBody["userHash"] != "abc123" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestStoreRefreshKeepsPreviousOnFailure(t *testing.T) {
	fail := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"value":{"theme":"neon"}}`))
	}))
	defer srv.Close()

	s := NewStore(NewSettingsClient(srv.URL, ""), settings.OverlayChat, "abc123")

	// Before the first fetch the store serves defaults.
	if got := s.Current().String("theme", ""); got != "default" {
		t.Fatalf("primed theme = %s, want default", got)
	}

	s.Refresh(context.Background())
	if got := s.Current().String("theme", ""); got != "default" {
		t.Errorf("failed refresh changed settings: theme = %s", got)
	}

	fail = false
	s.Refresh(context.Background())
	if got := s.Current().String("theme", ""); got != "neon" {
		t.Errorf("theme after refresh = %s, want neon", got)
	}
}

func TestStoreDiscardsStaleResponse(t *testing.T) {
	s := NewStore(NewSettingsClient("http://unused", ""), settings.OverlayChat, "abc123")

	newer := settings.Defaults(settings.OverlayChat)
	newer["theme"] = "neon"
	older := settings.Defaults(settings.OverlayChat)
	older["theme"] = "retro"

	// Fetch 2 lands before fetch 1.
	s.apply(2, newer)
	s.apply(1, older)

	if got := s.Current().String("theme", ""); got != "neon" {
		t.Errorf("stale response overwrote newer settings: theme = %s", got)
	}
}

func TestStoreQuickAdjustIsOptimistic(t *testing.T) {
	saved := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		saved <- body
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewStore(NewSettingsClient(srv.URL, "tok"), settings.OverlayChat, "abc123")
	s.QuickAdjust("fontSize", 32)

	if got := s.Current().Int("fontSize", 0); got != 32 {
		t.Errorf("fontSize not applied locally: %d", got)
	}

	body := <-saved
	value, ok := body["value"].(map[string]any)
	if !ok {
		t.Fatalf("save body missing value object: %v", body)
	}
	// The full merged object is persisted, not just the adjusted key.
	if value["fontSize"] != float64(32) {
		t.Errorf("saved fontSize = %v, want 32", value["fontSize"])
	}
	if _, ok := value["colors"]; !ok {
		t.Error("quick adjust dropped other settings from the saved object")
	}
}
