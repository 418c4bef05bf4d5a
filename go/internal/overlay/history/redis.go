package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/overlaykit/overlaykit/go/internal/overlay/events"
)

// RedisConfig holds connection settings for the history store.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// RedisStore keeps per-room event lists in Redis so every gateway instance
// sees the same replay history.
type RedisStore struct {
	client *redis.Client
	prefix string
	cap    int64
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
		cap:    DefaultCap,
		ttl:    24 * time.Hour,
	}, nil
}

func (s *RedisStore) key(userHash string) string {
	return fmt.Sprintf("%s:room:%s:events", s.prefix, userHash)
}

// Append pushes an event onto the room's list and trims it to capacity.
func (s *RedisStore) Append(ctx context.Context, userHash string, ev events.LiveEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := s.key(userHash)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, s.cap-1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append room history: %w", err)
	}
	return nil
}

// Recent returns up to limit events, oldest first.
func (s *RedisStore) Recent(ctx context.Context, userHash string, limit int) ([]events.LiveEvent, error) {
	if limit <= 0 || int64(limit) > s.cap {
		limit = int(s.cap)
	}

	raw, err := s.client.LRange(ctx, s.key(userHash), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read room history: %w", err)
	}

	// LPush stores newest first; replay wants arrival order.
	out := make([]events.LiveEvent, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var ev events.LiveEvent
		if err := json.Unmarshal([]byte(raw[i]), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// Close releases the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
