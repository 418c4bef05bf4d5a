package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/overlaykit/overlaykit/go/internal/settings"
)

// SettingsClient talks to the settings REST API. A userHash selects the
// hash-scoped endpoints; without one the legacy global endpoints are used.
type SettingsClient struct {
	BaseURL    string
	Token      string // bearer token for the authenticated save endpoint
	HTTPClient *http.Client
}

// NewSettingsClient creates a client with a sane request timeout.
func NewSettingsClient(baseURL, token string) *SettingsClient {
	return &SettingsClient{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch loads a tenant's raw settings value and merges it over defaults.
// The returned object always has every default key.
func (c *SettingsClient) Fetch(ctx context.Context, t settings.OverlayType, userHash string) (settings.Settings, error) {
	url := fmt.Sprintf("%s/api/settings/%s", c.BaseURL, t)
	if userHash != "" {
		url = fmt.Sprintf("%s/api/overlay/%s/settings/%s", c.BaseURL, userHash, t)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build settings request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch settings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch settings: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode settings response: %w", err)
	}

	merged, err := settings.Merge(t, body.Value)
	if err != nil {
		// Corrupt stored value; Merge already fell back to defaults.
		log.Warn().
			Err(err).
			Str("overlay_type", string(t)).
			Msg("stored settings value unreadable, using defaults")
	}
	return merged, nil
}

// Save persists a settings value. With a token the authenticated
// user-settings endpoint is used; otherwise the legacy one.
func (c *SettingsClient) Save(ctx context.Context, t settings.OverlayType, userHash string, value any) error {
	body := map[string]any{"key": string(t), "value": value}
	url := c.BaseURL + "/api/settings"
	if c.Token != "" {
		body["userHash"] = userHash
		url = c.BaseURL + "/api/user-settings"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal settings save: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build settings save: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("save settings: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Store holds the current merged settings for one mounted overlay and keeps
// them fresh. Refreshes carry a sequence number so a slow response from an
// earlier fetch can never overwrite a newer one (rapid theme switching used
// to race exactly this way).
type Store struct {
	client   *SettingsClient
	typ      settings.OverlayType
	userHash string

	mu      sync.Mutex
	current settings.Settings
	seq     uint64 // last issued fetch
	applied uint64 // fetch whose result is currently applied
}

// NewStore creates a store primed with the overlay type's defaults, so the
// overlay can render before the first fetch completes.
func NewStore(client *SettingsClient, t settings.OverlayType, userHash string) *Store {
	return &Store{
		client:   client,
		typ:      t,
		userHash: userHash,
		current:  settings.Defaults(t),
	}
}

// Current returns the active merged settings.
func (s *Store) Current() settings.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Refresh fetches and applies the latest settings. On any failure the
// previous settings are retained; the error is logged, never surfaced to the
// overlay page.
func (s *Store) Refresh(ctx context.Context) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	merged, err := s.client.Fetch(ctx, s.typ, s.userHash)
	if err != nil {
		log.Error().
			Err(err).
			Str("overlay_type", string(s.typ)).
			Msg("settings refresh failed, keeping previous settings")
		return
	}

	s.apply(seq, merged)
}

// apply installs a fetch result unless a later fetch already landed.
func (s *Store) apply(seq uint64, merged settings.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq < s.applied {
		log.Debug().
			Str("overlay_type", string(s.typ)).
			Msg("discarding stale settings response")
		return
	}
	s.applied = seq
	s.current = merged
}

// QuickAdjust optimistically applies a local edit (font size nudge, theme
// switch) and persists it fire-and-forget. A failed save is only logged;
// there is no rollback.
func (s *Store) QuickAdjust(key string, value any) {
	s.mu.Lock()
	next := s.current.Clone()
	next[key] = value
	s.current = next
	typ, hash := s.typ, s.userHash
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.client.Save(ctx, typ, hash, next); err != nil {
			log.Error().
				Err(err).
				Str("overlay_type", string(typ)).
				Str("key", key).
				Msg("failed to persist quick adjustment")
		}
	}()
}
