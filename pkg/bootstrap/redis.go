package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"orderflow/internal/config"
	"orderflow/internal/logger"
)

// InitRedis connects the Redis client used by the redis-backed idempotency
// store. Only called when the runtime is configured for it.
func InitRedis(ctx context.Context, cfg config.RedisConfig, log logger.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	log.Infow("Redis connected successfully", "host", cfg.Host, "port", cfg.Port)
	return rdb, nil
}
