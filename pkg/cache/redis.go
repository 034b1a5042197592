package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseLock deletes KEYS[1] only while it still holds the token ARGV[1].
var releaseLock = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type redisConfig struct {
	opts   redis.Options
	prefix string
}

type RedisOption func(*redisConfig)

func WithRedisAddr(addr string) RedisOption {
	return func(c *redisConfig) { c.opts.Addr = addr }
}

func WithRedisPassword(password string) RedisOption {
	return func(c *redisConfig) { c.opts.Password = password }
}

func WithRedisDB(db int) RedisOption {
	return func(c *redisConfig) { c.opts.DB = db }
}

// RedisCache stores forecast responses under prefix and hands out locks
// that only the taker can release.
type RedisCache struct {
	client *redis.Client
	prefix string
	tokens sync.Map // lock key -> token
}

// NewRedisCache dials Redis and verifies the connection.
func NewRedisCache(opts ...RedisOption) (*RedisCache, error) {
	cfg := &redisConfig{
		opts: redis.Options{
			Addr:         "localhost:6379",
			PoolSize:     10,
			MinIdleConns: 2,
			PoolTimeout:  30 * time.Second,
		},
		prefix: "shrimpcast",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client := redis.NewClient(&cfg.opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.opts.Addr, err)
	}
	return NewRedisCacheFromClient(client, cfg.prefix), nil
}

func NewRedisCacheFromClient(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

// Client is shared with the recompute queue.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(key), data, expiration).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	return decode(data, dest)
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.client.Unlink(ctx, full...).Err()
}

// DeleteByPattern walks the keyspace with SCAN and unlinks in batches.
func (c *RedisCache) DeleteByPattern(ctx context.Context, pattern string) error {
	const batch = 200
	iter := c.client.Scan(ctx, 0, c.key(pattern), batch).Iterator()
	found := make([]string, 0, batch)
	for iter.Next(ctx) {
		found = append(found, iter.Val())
		if len(found) < batch {
			continue
		}
		if err := c.client.Unlink(ctx, found...).Err(); err != nil {
			return fmt.Errorf("redis unlink %s: %w", pattern, err)
		}
		found = found[:0]
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	if len(found) == 0 {
		return nil
	}
	return c.client.Unlink(ctx, found...).Err()
}

func (c *RedisCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	n, err := c.client.Exists(ctx, full...).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// TryLock sets key to a fresh token if nobody holds it.
func (c *RedisCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, c.key(key), token, ttl).Result()
	if err != nil || !ok {
		return false, err
	}
	c.tokens.Store(key, token)
	return true, nil
}

// Unlock is a no-op for locks this instance does not hold, including ones
// that expired and were taken by another replica.
func (c *RedisCache) Unlock(ctx context.Context, key string) error {
	token, ok := c.tokens.LoadAndDelete(key)
	if !ok {
		return nil
	}
	return releaseLock.Run(ctx, c.client, []string{c.key(key)}, token).Err()
}

func (c *RedisCache) key(k string) string {
	return c.prefix + ":" + k
}
