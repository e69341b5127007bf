package runtime

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"orderflow/internal/config"
)

// NewStore builds the configured idempotency store. The redis store needs
// a connected client; the bounded in-memory store is the default.
func NewStore(cfg config.RuntimeConfig, rdb *redis.Client) (IdempotencyStore, error) {
	switch cfg.IdempotencyStore {
	case "", "memory":
		return NewBoundedStore(cfg.IdempotencyCapacity), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis idempotency store requires a redis connection")
		}
		return NewRedisStore(rdb, cfg.IdempotencyTTL), nil
	default:
		return nil, fmt.Errorf("unknown idempotency store %q", cfg.IdempotencyStore)
	}
}
