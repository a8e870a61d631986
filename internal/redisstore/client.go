// Package redisstore holds the Redis-backed pieces of the relay: the room
// membership mirror and the connection helper shared with the history store.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jayramgit94/Zoom/internal/config"
	"github.com/redis/go-redis/v9"
)

// Connect opens a client and verifies the server answers PING.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
