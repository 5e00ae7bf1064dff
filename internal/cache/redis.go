package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis backs the embedding cache with a Redis instance so cache hits
// survive restarts and are shared across replicas. Vectors are stored as
// JSON arrays with SETEX-style expiry.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedis wraps an existing Redis client.
func NewRedis(client *redis.Client, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, logger: logger}
}

// Dial connects to a Redis instance and verifies connectivity.
func Dial(ctx context.Context, addr, password string, db int, logger *slog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return NewRedis(client, logger), nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]float32, bool) {
	raw, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		r.logger.Warn("embedding cache read failed", "key", key, "error", err)
		return nil, false
	}

	var vector []float32
	if err := json.Unmarshal([]byte(raw), &vector); err != nil {
		r.logger.Warn("embedding cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	return vector, true
}

func (r *Redis) Set(ctx context.Context, key string, vector []float32, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(vector)
	if err != nil {
		r.logger.Warn("embedding cache encode failed", "key", key, "error", err)
		return
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		r.logger.Warn("embedding cache write failed", "key", key, "error", err)
	}
}

// Close releases the underlying Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
