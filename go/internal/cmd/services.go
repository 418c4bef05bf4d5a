package main

import (
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/overlaykit/overlaykit/go/internal/api"
	"github.com/overlaykit/overlaykit/go/internal/outbox"
	"github.com/overlaykit/overlaykit/go/internal/overlay/gateway"
	"github.com/overlaykit/overlaykit/go/internal/overlay/history"
	"github.com/overlaykit/overlaykit/go/internal/settings"
)

type Services struct {
	Settings *api.SettingsHandler
	Gateway  *gateway.Service
	Outbox   *outbox.Listener
	History  history.Store
}

func setupServices(pool *pgxpool.Pool, db *sql.DB, dsn string, config *Config) (*Services, error) {
	// Database layer → repository → HTTP handler
	settingsRepo := settings.NewRepository(pool)
	settingsHandler := api.NewSettingsHandler(settingsRepo, config.Server.APIToken)

	// Event history for join-time replay. Redis when configured so every
	// gateway instance replays the same events, in-memory otherwise.
	var hist history.Store
	if config.Redis.Address != "" {
		redisStore, err := history.NewRedisStore(history.RedisConfig{
			Address:  config.Redis.Address,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		}, "overlay:history")
		if err != nil {
			return nil, fmt.Errorf("failed to connect history store: %w", err)
		}
		hist = redisStore
	} else {
		log.Warn().Msg("REDIS_ADDR not set, using in-memory event history")
		hist = history.NewMemoryStore(history.DefaultCap)
	}

	// Gateway: WebSocket rooms fed by the JetStream consumer.
	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.JetStreamConfig.URL = config.NATS.URL
	gatewayService, err := gateway.NewService(gatewayConfig, hist)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway service: %w", err)
	}

	// Outbox relay: settings upserts → NOTIFY → JetStream → gateway.
	publisherConfig := outbox.DefaultJetStreamConfig()
	publisherConfig.URL = config.NATS.URL
	publisher, err := outbox.NewJetStreamPublisher(publisherConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create outbox publisher: %w", err)
	}

	listenerConfig := outbox.DefaultListenerConfig()
	listenerConfig.DatabaseURL = dsn
	listener, err := outbox.NewListener(db, publisher, listenerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create outbox listener: %w", err)
	}

	return &Services{
		Settings: settingsHandler,
		Gateway:  gatewayService,
		Outbox:   listener,
		History:  hist,
	}, nil
}
