package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/overlaykit/overlaykit/go/internal/engine"
	"github.com/overlaykit/overlaykit/go/internal/settings"
)

// Headless overlay client: joins a room, runs the sync engine, and logs the
// render state whenever it changes. Handy for soak-testing a gateway without
// a browser.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	apiURL := getEnv("API_URL", "http://localhost:8080")
	gatewayURL := getEnv("GATEWAY_WS_URL", "ws://localhost:8080/ws/overlay")
	userHash := getEnv("USER_HASH", "demo")
	overlayType, err := settings.ParseOverlayType(getEnv("OVERLAY_TYPE", "chat"))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid OVERLAY_TYPE")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := engine.NewStore(engine.NewSettingsClient(apiURL, getEnv("API_TOKEN", "")), overlayType, userHash)
	store.Refresh(ctx)

	eng := engine.New(overlayType, userHash, store, nil)

	ch, err := engine.Dial(ctx, gatewayURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to dial gateway")
	}
	defer ch.Close()

	if err := eng.Attach(ctx, ch); err != nil {
		log.Fatal().Err(err).Msg("failed to join overlay room")
	}

	log.Info().
		Str("overlay_type", string(overlayType)).
		Str("user_hash", userHash).
		Msg("overlay engine attached")

	go eng.Run(ctx)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	lastCount := -1
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("overlay engine shutting down")
			return
		case <-ch.Done():
			log.Warn().Msg("gateway connection lost")
			return
		case <-ticker.C:
			rs := eng.Render()
			if len(rs.Messages) == lastCount {
				continue
			}
			lastCount = len(rs.Messages)
			for _, msg := range rs.Messages {
				log.Info().
					Str("sender", msg.Sender).
					Str("color", msg.Color).
					Str("platform", msg.PlatformBadge).
					Bool("sample", msg.IsSample).
					Msg(msg.Message)
			}
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
