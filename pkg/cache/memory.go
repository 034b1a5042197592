package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const defaultMemoryTTL = 24 * time.Hour

type MemoryOption func(*MemoryCache)

// WithMemoryMaxSize bounds the number of cached values. Locks do not count.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(mc *MemoryCache) {
		if size > 0 {
			mc.maxSize = size
		}
	}
}

// WithMemoryTTL sets the expiry used when Set is given none.
func WithMemoryTTL(ttl time.Duration) MemoryOption {
	return func(mc *MemoryCache) {
		if ttl > 0 {
			mc.defaultTTL = ttl
		}
	}
}

type memoryEntry struct {
	key      string
	value    []byte
	expireAt time.Time
}

// MemoryCache is an in-process LRU with per-entry expiry. Expired entries
// are dropped when touched or when they reach the cold end of the list.
type MemoryCache struct {
	mu         sync.Mutex
	order      *list.List // front is most recently used
	items      map[string]*list.Element
	locks      map[string]time.Time
	maxSize    int
	defaultTTL time.Duration
	now        func() time.Time
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	mc := &MemoryCache{
		order:      list.New(),
		items:      make(map[string]*list.Element),
		locks:      make(map[string]time.Time),
		maxSize:    1000,
		defaultTTL: defaultMemoryTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(mc)
	}
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if expiration <= 0 {
		expiration = mc.defaultTTL
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	exp := mc.now().Add(expiration)
	if el, ok := mc.items[key]; ok {
		e := el.Value.(*memoryEntry)
		e.value, e.expireAt = data, exp
		mc.order.MoveToFront(el)
		return nil
	}
	mc.items[key] = mc.order.PushFront(&memoryEntry{key: key, value: data, expireAt: exp})
	for mc.order.Len() > mc.maxSize {
		mc.remove(mc.order.Back())
	}
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	el, ok := mc.items[key]
	if !ok {
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	e := el.Value.(*memoryEntry)
	if !mc.now().Before(e.expireAt) {
		mc.remove(el)
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	mc.order.MoveToFront(el)
	data := e.value
	mc.mu.Unlock()
	return decode(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		if el, ok := mc.items[key]; ok {
			mc.remove(el)
		}
		delete(mc.locks, key)
	}
	return nil
}

func (mc *MemoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for key, el := range mc.items {
		if matchPattern(pattern, key) {
			mc.remove(el)
		}
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	now := mc.now()
	for _, key := range keys {
		if el, ok := mc.items[key]; ok && now.Before(el.Value.(*memoryEntry).expireAt) {
			return true, nil
		}
		if until, ok := mc.locks[key]; ok && now.Before(until) {
			return true, nil
		}
	}
	return false, nil
}

// TryLock keeps locks apart from cached values so eviction never frees one.
func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	now := mc.now()
	if until, ok := mc.locks[key]; ok && now.Before(until) {
		return false, nil
	}
	mc.locks[key] = now.Add(ttl)
	return true, nil
}

func (mc *MemoryCache) Unlock(_ context.Context, key string) error {
	mc.mu.Lock()
	delete(mc.locks, key)
	mc.mu.Unlock()
	return nil
}

// Len reports how many values are held, expired ones not yet dropped included.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.order.Len()
}

func (mc *MemoryCache) Close() error { return nil }

// remove must be called with mu held.
func (mc *MemoryCache) remove(el *list.Element) {
	e := mc.order.Remove(el).(*memoryEntry)
	delete(mc.items, e.key)
}
