package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shelfmatch/backend/internal/domain"
)

type cacheItem struct {
	value      []byte
	expiration time.Time
}

// ByteCache is a thread-safe in-memory byte cache with TTL support. It backs
// visual signature memoization when Redis is not configured.
type ByteCache struct {
	mu   sync.RWMutex
	data map[string]cacheItem
}

// NewByteCache creates a byte cache and starts its expiry sweep.
func NewByteCache() *ByteCache {
	c := &ByteCache{data: make(map[string]cacheItem)}
	go c.cleanupExpired()
	return c
}

// Get returns the cached value or domain.ErrCacheMiss.
func (c *ByteCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.data[key]
	if !ok || time.Now().After(item.expiration) {
		return nil, domain.ErrCacheMiss
	}
	return item.value, nil
}

// Set stores a value with a TTL.
func (c *ByteCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := make([]byte, len(value))
	copy(copied, value)
	c.data[key] = cacheItem{
		value:      copied,
		expiration: time.Now().Add(ttl),
	}
	return nil
}

// Size returns the current number of entries, expired or not.
func (c *ByteCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

func (c *ByteCache) cleanupExpired() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		now := time.Now()
		for key, item := range c.data {
			if now.After(item.expiration) {
				delete(c.data, key)
			}
		}
		c.mu.Unlock()
	}
}
