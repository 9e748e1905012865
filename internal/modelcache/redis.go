package modelcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey stores the full entry map under one key.
const DefaultRedisKey = "lingogate:models"

// RedisBackend persists the cache in Redis, for deployments where several
// gateway instances should share one discovered-model view. The key carries
// its own expiry, so Cleanup is a no-op here.
type RedisBackend struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// RedisConfig holds connection settings for the Redis backend.
type RedisConfig struct {
	// URL is a redis connection URL, e.g. "redis://localhost:6379/0".
	URL string

	// Key overrides DefaultRedisKey.
	Key string

	// TTL overrides the cache TTL used for key expiry.
	TTL time.Duration
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	key := cfg.Key
	if key == "" {
		key = DefaultRedisKey
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	slog.Info("redis model cache connected", "key", key, "ttl", ttl)
	return &RedisBackend{client: client, key: key, ttl: ttl}, nil
}

// Load reads the entry map. A missing key is an empty cache.
func (b *RedisBackend) Load(ctx context.Context) (map[string]Entry, error) {
	data, err := b.client.Get(ctx, b.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return map[string]Entry{}, nil
		}
		return nil, fmt.Errorf("failed to get model cache from redis: %w", err)
	}

	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		slog.Warn("redis model cache is corrupt, treating as empty", "key", b.key, "error", err)
		return map[string]Entry{}, nil
	}
	return entries, nil
}

// Save replaces the entry map, refreshing the key expiry.
func (b *RedisBackend) Save(ctx context.Context, entries map[string]Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal model cache: %w", err)
	}
	if err := b.client.Set(ctx, b.key, data, b.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save model cache to redis: %w", err)
	}
	return nil
}

// Cleanup is a no-op: Redis expires the key on its own.
func (b *RedisBackend) Cleanup(context.Context, time.Duration) error { return nil }

// Close releases the connection.
func (b *RedisBackend) Close() error { return b.client.Close() }
