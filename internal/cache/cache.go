package cache

import (
	"context"
	"sync"
	"time"
)

// Cache stores values of one record kind keyed by normalized city.
// Get returns (value, true, nil) on hit and (zero, false, nil) on miss or expiry.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool, error)
	Set(ctx context.Context, key string, value T, ttl time.Duration) error
}

// Backend names accepted by configuration.
const (
	BackendInMemory  = "in_memory"
	BackendMemcached = "memcached"
	BackendNone      = "none"
)

// InMemoryCache implements Cache using a map with TTL-based expiration.
// Expired entries are removed on access. Safe for concurrent use.
type InMemoryCache[T any] struct {
	mu   sync.Mutex
	data map[string]cacheEntry[T]
	now  func() time.Time
}

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func NewInMemoryCache[T any]() *InMemoryCache[T] {
	return &InMemoryCache[T]{
		data: make(map[string]cacheEntry[T]),
		now:  time.Now,
	}
}

func (c *InMemoryCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return zero, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.data, key)
		return zero, false, nil
	}
	return entry.value, true, nil
}

func (c *InMemoryCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry[T]{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Len reports the number of stored entries, including expired ones not yet evicted.
func (c *InMemoryCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// NoopCache never stores anything; every Get is a miss.
type NoopCache[T any] struct{}

func (NoopCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	return zero, false, nil
}

func (NoopCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	return nil
}
