package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/overlaykit/overlaykit/go/internal/overlay/events"
)

// JetStreamConsumerConfig holds configuration for the JetStream consumer.
type JetStreamConsumerConfig struct {
	URL           string
	StreamName    string
	ConsumerName  string
	SubjectFilter string        // e.g., "overlay.>"
	MaxDeliver    int           // Max delivery attempts
	AckWait       time.Duration // How long to wait for ack
	MaxAckPending int           // Max messages pending ack
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultJetStreamConsumerConfig returns default JetStream consumer configuration.
func DefaultJetStreamConsumerConfig() JetStreamConsumerConfig {
	return JetStreamConsumerConfig{
		URL:           nats.DefaultURL,
		StreamName:    "OVERLAY_EVENTS",
		ConsumerName:  "overlay-gateway",
		SubjectFilter: "overlay.>",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// EventConsumer consumes platform events and settings notifications from
// JetStream and broadcasts them to overlay rooms. Platform connectors
// (SOOP/Chzzk/YouTube/Twitch, external to this repo) publish LiveEvents to
// overlay.events.<hash>; the outbox relay publishes settings notifications to
// overlay.settings.<hash>.
type EventConsumer struct {
	connectionManager *ConnectionManager
	history           History
	nc                *nats.Conn
	js                jetstream.JetStream
	consumer          jetstream.Consumer
	config            JetStreamConsumerConfig
}

// NewEventConsumer creates a new JetStream event consumer.
func NewEventConsumer(cm *ConnectionManager, history History, config JetStreamConsumerConfig) (*EventConsumer, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	ec := &EventConsumer{
		connectionManager: cm,
		history:           history,
		nc:                nc,
		js:                js,
		config:            config,
	}

	if err := ec.ensureConsumer(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}

	return ec, nil
}

// ensureConsumer creates or gets the JetStream consumer.
func (ec *EventConsumer) ensureConsumer(ctx context.Context) error {
	stream, err := ec.js.Stream(ctx, ec.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:          ec.config.ConsumerName,
		Durable:       ec.config.ConsumerName,
		Description:   "Overlay gateway WebSocket consumer",
		FilterSubject: ec.config.SubjectFilter,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    ec.config.MaxDeliver,
		AckWait:       ec.config.AckWait,
		MaxAckPending: ec.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.Consumer(ctx, ec.config.ConsumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, consumerConfig)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		log.Info().
			Str("consumer", ec.config.ConsumerName).
			Str("stream", ec.config.StreamName).
			Msg("created JetStream consumer")
	} else {
		log.Info().
			Str("consumer", ec.config.ConsumerName).
			Str("stream", ec.config.StreamName).
			Msg("using existing JetStream consumer")
	}

	ec.consumer = consumer
	return nil
}

// Start begins consuming events from JetStream until ctx is cancelled.
func (ec *EventConsumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", ec.config.ConsumerName).
		Str("stream", ec.config.StreamName).
		Msg("starting JetStream event consumer")

	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := ec.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := ec.processMessage(ctx, msg); err != nil {
				log.Error().
					Err(err).
					Str("subject", msg.Subject()).
					Msg("failed to process message")
				if nakErr := msg.Nak(); nakErr != nil {
					log.Error().Err(nakErr).Msg("failed to NAK message")
				}
			} else {
				if ackErr := msg.Ack(); ackErr != nil {
					log.Error().Err(ackErr).Msg("failed to ACK message")
				}
			}
		}
	}
}

// Stop closes the NATS connection.
func (ec *EventConsumer) Stop() error {
	ec.nc.Close()
	return nil
}

// processMessage routes a single JetStream message by subject:
// overlay.events.<hash> carries LiveEvents, overlay.settings.<hash> carries
// settings-updated notifications.
func (ec *EventConsumer) processMessage(ctx context.Context, msg jetstream.Msg) error {
	subject := msg.Subject()
	hash := subjectHash(subject)
	if hash == "" {
		return fmt.Errorf("subject %q has no user hash", subject)
	}

	switch {
	case strings.HasPrefix(subject, "overlay.events."):
		var ev events.LiveEvent
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			return fmt.Errorf("unmarshal live event: %w", err)
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = time.Now()
		}

		if ec.history != nil {
			if err := ec.history.Append(ctx, hash, ev); err != nil {
				log.Error().Err(err).Str("user_hash", hash).Msg("failed to append room history")
			}
		}

		ec.connectionManager.BroadcastToRoom(hash, events.NewEnvelope(events.EventNewEvent, ev))

		log.Debug().
			Str("user_hash", hash).
			Str("event_type", string(ev.Type)).
			Msg("live event broadcasted")
		return nil

	case strings.HasPrefix(subject, "overlay.settings."):
		var payload events.SettingsUpdatePayload
		if err := json.Unmarshal(msg.Data(), &payload); err != nil {
			return fmt.Errorf("unmarshal settings notification: %w", err)
		}

		ec.connectionManager.BroadcastToRoom(hash, events.NewEnvelope(events.EventSettingsUpdated, events.SettingsUpdatePayload{Key: payload.Key}))

		log.Debug().
			Str("user_hash", hash).
			Str("key", payload.Key).
			Msg("settings notification broadcasted")
		return nil

	default:
		log.Warn().Str("subject", subject).Msg("unknown overlay subject - ignoring")
		return nil
	}
}

// subjectHash extracts the trailing user hash token from a subject like
// overlay.events.abc123.
func subjectHash(subject string) string {
	idx := strings.LastIndex(subject, ".")
	if idx < 0 || idx == len(subject)-1 {
		return ""
	}
	return subject[idx+1:]
}
