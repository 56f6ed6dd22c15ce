package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"campusrides/internal/config"
)

// NewRedisClient builds a Redis client from config. The caller decides how to
// degrade when the server is unreachable; everything downstream treats the
// client as optional.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// Ping verifies connectivity with a short timeout.
func Ping(ctx context.Context, client *redis.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return client.Ping(pingCtx).Err()
}
