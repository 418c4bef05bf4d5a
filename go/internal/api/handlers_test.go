package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/overlaykit/overlaykit/go/internal/settings"
)

type fakeStore struct {
	values map[string]json.RawMessage
	saved  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: make(map[string]json.RawMessage)}
}

func storeKey(userHash string, t settings.OverlayType) string {
	return userHash + "/" + string(t)
}

func (f *fakeStore) GetValue(_ context.Context, userHash string, t settings.OverlayType) (json.RawMessage, error) {
	v, ok := f.values[storeKey(userHash, t)]
	if !ok {
		return nil, settings.ErrNotFound
	}
	return v, nil
}

func (f *fakeStore) UpsertValue(_ context.Context, userHash string, t settings.OverlayType, value json.RawMessage) error {
	key := storeKey(userHash, t)
	f.values[key] = value
	f.saved = append(f.saved, key)
	return nil
}

func setupMux(store *fakeStore, token string) *http.ServeMux {
	mux := http.NewServeMux()
	NewSettingsHandler(store, token).RegisterRoutes(mux)
	return mux
}

func TestGetSettingsLegacy(t *testing.T) {
	store := newFakeStore()
	store.values[storeKey("", settings.OverlayChat)] = json.RawMessage(`{"fontSize":28}`)
	mux := setupMux(store, "tok")

	req := httptest.NewRequest(http.MethodGet, "/api/settings/chat", nil)
	resp := httptest.NewRecorder()
	mux.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body struct {
		Value map[string]any `json:"value"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if body.Value["fontSize"] != float64(28) {
		t.Fatalf("fontSize=%v want=28", body.Value["fontSize"])
	}
}

func TestGetSettingsHashScoped(t *testing.T) {
	store := newFakeStore()
	store.values[storeKey("abc123", settings.OverlayEmoji)] = json.RawMessage(`{"burstSize":9}`)
	mux := setupMux(store, "tok")

	req := httptest.NewRequest(http.MethodGet, "/api/overlay/abc123/settings/emoji", nil)
	resp := httptest.NewRecorder()
	mux.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !bytes.Contains(resp.Body.Bytes(), []byte(`"burstSize":9`)) {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}
}

func TestGetSettingsMissingYieldsEmptyObject(t *testing.T) {
	mux := setupMux(newFakeStore(), "tok")

	req := httptest.NewRequest(http.MethodGet, "/api/overlay/abc123/settings/chat", nil)
	resp := httptest.NewRecorder()
	mux.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body struct {
		Value map[string]any `json:"value"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(body.Value) != 0 {
		t.Fatalf("expected empty value, got %v", body.Value)
	}
}

func TestGetSettingsUnknownType(t *testing.T) {
	mux := setupMux(newFakeStore(), "tok")

	req := httptest.NewRequest(http.MethodGet, "/api/settings/dashboard", nil)
	resp := httptest.NewRecorder()
	mux.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSaveSettings(t *testing.T) {
	store := newFakeStore()
	mux := setupMux(store, "tok")

	payload := []byte(`{"key":"chat","value":{"fontSize":30}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/settings", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	mux.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if len(store.saved) != 1 || store.saved[0] != storeKey("", settings.OverlayChat) {
		t.Fatalf("unexpected saves: %v", store.saved)
	}
}

func TestSaveUserSettingsRequiresBearerToken(t *testing.T) {
	store := newFakeStore()
	mux := setupMux(store, "secret-token")

	payload := []byte(`{"key":"voting","value":{"fontSize":20},"userHash":"abc123"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/user-settings", bytes.NewReader(payload))
	resp := httptest.NewRecorder()
	mux.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/user-settings", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer secret-token")
	resp = httptest.NewRecorder()
	mux.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.Code)
	}
	if len(store.saved) != 1 || store.saved[0] != storeKey("abc123", settings.OverlayVoting) {
		t.Fatalf("unexpected saves: %v", store.saved)
	}
}
