package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/core"
)

// SnapshotKeyPrefix namespaces snapshot keys in Redis
const SnapshotKeyPrefix = "bgc:snapshot:"

// RedisCache is a Redis implementation of the SnapshotRepository interface.
// Retention is enforced with key expiry, so Cleanup has nothing to do.
type RedisCache struct {
	client    *redis.Client
	logger    *zap.Logger
	retention time.Duration
	now       func() time.Time
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, address, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisCache creates a new Redis snapshot cache
func NewRedisCache(client *redis.Client, logger *zap.Logger, retention time.Duration) *RedisCache {
	return &RedisCache{
		client:    client,
		logger:    logger,
		retention: retention,
		now:       time.Now,
	}
}

// Get retrieves the snapshot stored under key
func (c *RedisCache) Get(ctx context.Context, key string) (*core.CacheEntry, error) {
	data, err := c.client.Get(ctx, SnapshotKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	return decodeEntry(data)
}

// Set stores a snapshot, replacing the previous one
func (c *RedisCache) Set(ctx context.Context, entry *core.CacheEntry) error {
	payload, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, SnapshotKeyPrefix+entry.Key, payload, c.expiration(entry)).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

// Delete removes a snapshot
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, SnapshotKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// Cleanup is a no-op; Redis expires keys on its own
func (c *RedisCache) Cleanup(ctx context.Context) error {
	return nil
}

// Stop closes the Redis client
func (c *RedisCache) Stop() {
	if err := c.client.Close(); err != nil {
		c.logger.Error("Failed to close Redis client", zap.Error(err))
	}
}

// expiration is the key TTL; zero would mean "never expire" to Redis, so an
// entry already past retention gets the shortest expiry instead
func (c *RedisCache) expiration(entry *core.CacheEntry) time.Duration {
	ttl := purgeAfter(entry, c.retention).Sub(c.now())
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}
