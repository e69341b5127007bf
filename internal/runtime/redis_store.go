package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"orderflow/internal/constants"
)

// RedisStore is the production variant of the idempotency store: keys are
// shared across consumer instances and expire after the configured TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

func (s *RedisStore) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, constants.RedisKeyPrefixIdempotency+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed for key %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Mark(ctx context.Context, key string) error {
	err := s.client.Set(ctx, constants.RedisKeyPrefixIdempotency+key, time.Now().Unix(), s.ttl).Err()
	if err != nil {
		return fmt.Errorf("redis set failed for key %s: %w", key, err)
	}
	return nil
}

// Len is not tracked for the Redis variant; the key count lives in Redis.
func (s *RedisStore) Len() int {
	return 0
}
