package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a shared TTL cache backed by Redis, used when multiple instances
// receive webhook deliveries behind a load balancer.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedis connects to the given Redis URL (redis://...). The connection is
// verified with a ping so a bad URL fails at startup, not on first event.
func NewRedis(ctx context.Context, url string, logger *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Redis{client: client, logger: logger}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		// Treat a broken cache as a miss; durable storage is the source of truth.
		r.logger.Warn("cache get failed", "key", key, "error", err)
		return "", false
	}
	return val, true
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// Ping checks the connection, for readiness probes.
func (r *Redis) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

// Close releases the underlying connection pool.
func (r *Redis) Close() error { return r.client.Close() }
