package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/overlaykit/overlaykit/go/internal/settings"
)

// SettingsStore is what the handlers need from the settings layer.
type SettingsStore interface {
	GetValue(ctx context.Context, userHash string, t settings.OverlayType) (json.RawMessage, error)
	UpsertValue(ctx context.Context, userHash string, t settings.OverlayType, value json.RawMessage) error
}

// SettingsHandler serves the settings REST surface consumed by overlay pages
// and the control panel. Two generations of paths exist: the legacy global
// form and the hash-scoped multi-tenant form.
type SettingsHandler struct {
	store SettingsStore

	// apiToken guards the authenticated POST /api/user-settings variant.
	apiToken string
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(store SettingsStore, apiToken string) *SettingsHandler {
	return &SettingsHandler{store: store, apiToken: apiToken}
}

// settingsResponse is the wire shape for GET responses. Value is always an
// object; a tenant with no custom settings gets an empty one.
type settingsResponse struct {
	Value json.RawMessage `json:"value"`
}

// saveRequest is the wire shape for POST bodies.
type saveRequest struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// HandleGetSettings handles GET /api/settings/{type} (legacy, default tenant).
func (h *SettingsHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	typeStr := strings.TrimPrefix(r.URL.Path, "/api/settings/")
	h.respondSettings(w, r, "", typeStr)
}

// HandleGetOverlaySettings handles GET /api/overlay/{hash}/settings/{type}.
func (h *SettingsHandler) HandleGetOverlaySettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hash, typeStr := extractOverlaySettingsPath(r.URL.Path)
	if hash == "" || typeStr == "" {
		http.NotFound(w, r)
		return
	}
	h.respondSettings(w, r, hash, typeStr)
}

func (h *SettingsHandler) respondSettings(w http.ResponseWriter, r *http.Request, userHash, typeStr string) {
	overlayType, err := settings.ParseOverlayType(typeStr)
	if err != nil {
		http.Error(w, "unknown overlay type", http.StatusBadRequest)
		return
	}

	value, err := h.store.GetValue(r.Context(), userHash, overlayType)
	if errors.Is(err, settings.ErrNotFound) {
		value = json.RawMessage(`{}`)
	} else if err != nil {
		log.Error().
			Err(err).
			Str("user_hash", userHash).
			Str("overlay_type", string(overlayType)).
			Msg("failed to load settings")
		http.Error(w, "failed to load settings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(settingsResponse{Value: value}); err != nil {
		log.Error().Err(err).Msg("failed to encode settings response")
	}
}

// HandleSaveSettings handles POST /api/settings (legacy, default tenant) with
// body {key, value}.
func (h *SettingsHandler) HandleSaveSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.saveSettings(w, r, "")
}

// HandleSaveUserSettings handles POST /api/user-settings, the authenticated
// variant. The tenant hash rides in the request body alongside key/value.
func (h *SettingsHandler) HandleSaveUserSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if h.apiToken == "" || token != h.apiToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var body struct {
		saveRequest
		UserHash string `json:"userHash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.persist(w, r, body.UserHash, body.saveRequest)
}

func (h *SettingsHandler) saveSettings(w http.ResponseWriter, r *http.Request, userHash string) {
	var body saveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.persist(w, r, userHash, body)
}

func (h *SettingsHandler) persist(w http.ResponseWriter, r *http.Request, userHash string, body saveRequest) {
	overlayType, err := settings.ParseOverlayType(body.Key)
	if err != nil {
		http.Error(w, "unknown overlay type", http.StatusBadRequest)
		return
	}

	value := body.Value
	if len(value) == 0 {
		value = json.RawMessage(`{}`)
	}

	if err := h.store.UpsertValue(r.Context(), userHash, overlayType, value); err != nil {
		log.Error().
			Err(err).
			Str("user_hash", userHash).
			Str("overlay_type", string(overlayType)).
			Msg("failed to save settings")
		http.Error(w, "failed to save settings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"ok":true}`))
}

// RegisterRoutes registers the settings REST routes.
func (h *SettingsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/settings", h.HandleSaveSettings)
	mux.HandleFunc("/api/settings/", h.HandleGetSettings)
	mux.HandleFunc("/api/user-settings", h.HandleSaveUserSettings)
	mux.HandleFunc("/api/overlay/", h.HandleGetOverlaySettings)
}

// extractOverlaySettingsPath splits /api/overlay/{hash}/settings/{type}.
func extractOverlaySettingsPath(path string) (hash, overlayType string) {
	const prefix = "/api/overlay/"
	if !strings.HasPrefix(path, prefix) {
		return "", ""
	}

	rest := strings.TrimPrefix(path, prefix)
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "settings" {
		return "", ""
	}
	return parts[0], parts[2]
}
