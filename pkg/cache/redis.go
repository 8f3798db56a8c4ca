package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCacheConfig holds Redis cache configuration
type RedisCacheConfig struct {
	// URL is either a redis:// URL or a plain host:port address.
	URL       string
	KeyPrefix string
}

// DefaultRedisCacheConfig returns default configuration
func DefaultRedisCacheConfig(url string) *RedisCacheConfig {
	return &RedisCacheConfig{
		URL:       url,
		KeyPrefix: "gateway:response:",
	}
}

// RedisCache is a ResponseCache backed by Redis, for deployments where
// multiple gateway replicas should share cached responses. TTL enforcement
// is delegated to Redis key expiry.
type RedisCache struct {
	client *redis.Client
	prefix string
	logger *slog.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(config *RedisCacheConfig, logger *slog.Logger) (*RedisCache, error) {
	if config == nil || config.URL == "" {
		return nil, fmt.Errorf("redis cache requires a URL")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := connect(config.URL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("Connected to Redis cache", "prefix", config.KeyPrefix)

	return &RedisCache{
		client: client,
		prefix: config.KeyPrefix,
		logger: logger,
	}, nil
}

// connect builds a Redis client from URL or host:port input. Supporting both
// formats keeps local/dev and container config paths simple.
func connect(url string) (*redis.Client, error) {
	if strings.HasPrefix(url, "redis://") {
		opt, parseErr := redis.ParseURL(url)
		if parseErr != nil {
			return nil, fmt.Errorf("parse redis url: %w", parseErr)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: url}), nil
}

// Get returns the cached value for key, or a miss if absent or expired
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.misses.Add(1)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	c.hits.Add(1)
	return raw, true, nil
}

// Set stores value under key for the given TTL. A non-positive TTL stores
// nothing.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Stats returns a snapshot of cache counters. Entry count lives in Redis and
// is not tracked here.
func (c *RedisCache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}

// Ping verifies the Redis connection, for readiness probes
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (c *RedisCache) Close() error {
	return c.client.Close()
}
