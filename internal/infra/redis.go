package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg *Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// Heartbeat records liveness for a running job. The sweeper treats a job with
// no heartbeat key as abandoned once it passes the staleness threshold.
type Heartbeat struct {
	client *redis.Client
	ttl    time.Duration
}

func NewHeartbeat(client *redis.Client, ttl time.Duration) *Heartbeat {
	return &Heartbeat{client: client, ttl: ttl}
}

func heartbeatKey(jobID string) string {
	return "heartbeat:" + jobID
}

// Beat refreshes the heartbeat key for jobID.
func (h *Heartbeat) Beat(ctx context.Context, jobID string) error {
	return h.client.Set(ctx, heartbeatKey(jobID), time.Now().UTC().Format(time.RFC3339), h.ttl).Err()
}

// Alive reports whether a worker has recently beaten for jobID.
func (h *Heartbeat) Alive(ctx context.Context, jobID string) (bool, error) {
	n, err := h.client.Exists(ctx, heartbeatKey(jobID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Clear drops the heartbeat key once a job reaches a terminal status.
func (h *Heartbeat) Clear(ctx context.Context, jobID string) error {
	return h.client.Del(ctx, heartbeatKey(jobID)).Err()
}
