package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ShrimpCast/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

type LayeredOption func(*LayeredCache)

// WithLayeredMemorySize bounds the L1 LRU.
func WithLayeredMemorySize(size int) LayeredOption {
	return func(lc *LayeredCache) { lc.memSize = size }
}

// WithLayeredMemoryTTL caps how long L1 keeps a value.
func WithLayeredMemoryTTL(ttl time.Duration) LayeredOption {
	return func(lc *LayeredCache) {
		if ttl > 0 {
			lc.memTTL = ttl
		}
	}
}

func WithLayeredLogger(l *logger.Logger) LayeredOption {
	return func(lc *LayeredCache) { lc.log = l }
}

// invalidation tells the other replicas which L1 entries went stale.
type invalidation struct {
	Node    string   `json:"node"`
	Keys    []string `json:"keys,omitempty"`
	Pattern string   `json:"pattern,omitempty"`
}

// LayeredCache keeps a small LRU in front of Redis. Writes go to Redis
// first; every write or delete is announced on a pub/sub channel so peer
// replicas drop their L1 copy. Concurrent L1 misses on one key share a
// single Redis read.
type LayeredCache struct {
	mem     *MemoryCache
	redis   *RedisCache
	memSize int
	memTTL  time.Duration
	log     *logger.Logger

	node    string
	channel string
	reads   singleflight.Group
	sub     *redis.PubSub
	wg      sync.WaitGroup
	once    sync.Once
}

// NewLayeredCache subscribes to the invalidation channel before returning,
// so no announcement made after it returns is missed.
func NewLayeredCache(rc *RedisCache, opts ...LayeredOption) (*LayeredCache, error) {
	lc := &LayeredCache{
		redis:   rc,
		memSize: 1000,
		memTTL:  time.Minute,
		log:     logger.Nop(),
		node:    uuid.NewString(),
		channel: rc.key("invalidate"),
	}
	for _, opt := range opts {
		opt(lc)
	}
	lc.mem = NewMemoryCache(WithMemoryMaxSize(lc.memSize), WithMemoryTTL(lc.memTTL))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	lc.sub = rc.client.Subscribe(ctx, lc.channel)
	if _, err := lc.sub.Receive(ctx); err != nil {
		_ = lc.sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", lc.channel, err)
	}
	lc.wg.Add(1)
	go lc.listen()
	return lc, nil
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.redis.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	lc.announce(ctx, invalidation{Keys: []string{key}})
	return lc.mem.Set(ctx, key, value, lc.l1TTL(expiration))
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.mem.Get(ctx, key, dest); err == nil {
		return nil
	}
	v, err, _ := lc.reads.Do(key, func() (interface{}, error) {
		var raw []byte
		if err := lc.redis.Get(ctx, key, &raw); err != nil {
			return nil, err
		}
		_ = lc.mem.Set(ctx, key, raw, lc.memTTL)
		return raw, nil
	})
	if err != nil {
		return err
	}
	return decode(v.([]byte), dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.mem.Delete(ctx, keys...)
	if err := lc.redis.Delete(ctx, keys...); err != nil {
		return err
	}
	lc.announce(ctx, invalidation{Keys: keys})
	return nil
}

func (lc *LayeredCache) DeleteByPattern(ctx context.Context, pattern string) error {
	_ = lc.mem.DeleteByPattern(ctx, pattern)
	if err := lc.redis.DeleteByPattern(ctx, pattern); err != nil {
		return err
	}
	lc.announce(ctx, invalidation{Pattern: pattern})
	return nil
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	return lc.redis.Exists(ctx, keys...)
}

func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.redis.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.redis.Unlock(ctx, key)
}

// Close stops listening for invalidations and closes the Redis client. The
// queue shares that client, so it must be stopped first.
func (lc *LayeredCache) Close() error {
	var err error
	lc.once.Do(func() {
		_ = lc.sub.Close()
		lc.wg.Wait()
		err = lc.redis.Close()
	})
	return err
}

func (lc *LayeredCache) announce(ctx context.Context, inv invalidation) {
	inv.Node = lc.node
	body, err := json.Marshal(inv)
	if err == nil {
		err = lc.redis.client.Publish(ctx, lc.channel, body).Err()
	}
	if err != nil {
		lc.log.Warn("cache invalidation not announced", logger.Strings("keys", inv.Keys), logger.String("pattern", inv.Pattern), logger.Error(err))
	}
}

func (lc *LayeredCache) listen() {
	defer lc.wg.Done()
	ctx := context.Background()
	for msg := range lc.sub.Channel() {
		var inv invalidation
		if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
			lc.log.Warn("bad cache invalidation", logger.Error(err))
			continue
		}
		if inv.Node == lc.node {
			continue
		}
		_ = lc.mem.Delete(ctx, inv.Keys...)
		if inv.Pattern != "" {
			_ = lc.mem.DeleteByPattern(ctx, inv.Pattern)
		}
	}
}

func (lc *LayeredCache) l1TTL(expiration time.Duration) time.Duration {
	if expiration > 0 && expiration < lc.memTTL {
		return expiration
	}
	return lc.memTTL
}

var (
	_ Service = (*MemoryCache)(nil)
	_ Service = (*RedisCache)(nil)
	_ Service = (*LayeredCache)(nil)
)
