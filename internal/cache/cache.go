package cache

import (
	"time"

	goCache "github.com/patrickmn/go-cache"
)

const (
	defaultExpiration      = 10 * time.Minute
	defaultCleanupInterval = 30 * time.Minute
)

// Cache is a process-local TTL cache.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V, ttl time.Duration)
	Delete(key string)
	Flush()
}

type ttlCache[V any] struct {
	backend *goCache.Cache
}

// NewTTLCache returns an in-memory TTL cache with background eviction.
func NewTTLCache[V any]() Cache[V] {
	return &ttlCache[V]{
		backend: goCache.New(defaultExpiration, defaultCleanupInterval),
	}
}

func (c *ttlCache[V]) Get(key string) (V, bool) {
	var zero V
	raw, ok := c.backend.Get(key)
	if !ok {
		return zero, false
	}
	value, ok := raw.(V)
	if !ok {
		return zero, false
	}
	return value, true
}

func (c *ttlCache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultExpiration
	}
	c.backend.Set(key, value, ttl)
}

func (c *ttlCache[V]) Delete(key string) {
	c.backend.Delete(key)
}

func (c *ttlCache[V]) Flush() {
	c.backend.Flush()
}
