package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// maxRelativeExp is memcached's limit for relative expirations (30 days).
const maxRelativeExp = 30 * 24 * 60 * 60

// MemcachedCache implements Cache using memcached with JSON-encoded values.
// Keys are namespaced by prefix so several record kinds can share one server.
type MemcachedCache[T any] struct {
	client *memcache.Client
	prefix string
}

// NewMemcachedClient creates a memcache client. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// use package defaults if zero.
func NewMemcachedClient(addrs string, timeout time.Duration, maxIdleConns int) *memcache.Client {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return client
}

// NewMemcachedCache wraps client, storing keys as prefix + ":" + key.
func NewMemcachedCache[T any](client *memcache.Client, prefix string) *MemcachedCache[T] {
	return &MemcachedCache[T]{client: client, prefix: prefix}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// key builds a memcached-safe key; memcached rejects spaces and control characters.
func (c *MemcachedCache[T]) key(k string) string {
	return c.prefix + ":" + strings.ReplaceAll(k, " ", "_")
}

func (c *MemcachedCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if ctx.Err() != nil {
		return zero, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return zero, false, nil
		}
		return zero, false, err
	}
	var value T
	if err := json.Unmarshal(item.Value, &value); err != nil {
		return zero, false, err
	}
	return value, true, nil
}

func (c *MemcachedCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expirationSeconds(ttl),
	})
}

func expirationSeconds(ttl time.Duration) int32 {
	sec := int32(ttl.Seconds())
	if sec <= 0 || sec > maxRelativeExp {
		return 3600
	}
	return sec
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache[T]) Ping() error {
	return c.client.Ping()
}
