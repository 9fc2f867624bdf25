package store

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// InMemoryCache implements Cache on a size-bounded expiring LRU
type InMemoryCache struct {
	lru        *expirable.LRU[string, *cacheItem]
	defaultTTL time.Duration
	logger     *zap.Logger
}

type cacheItem struct {
	value     interface{}
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache. Entries never outlive
// defaultTTL even if Set asks for longer.
func NewInMemoryCache(maxSize int, defaultTTL time.Duration, logger *zap.Logger) *InMemoryCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &InMemoryCache{
		lru:        expirable.NewLRU[string, *cacheItem](maxSize, nil, defaultTTL),
		defaultTTL: defaultTTL,
		logger:     logger,
	}
}

// Get retrieves a value from cache
func (c *InMemoryCache) Get(ctx context.Context, key string) (interface{}, error) {
	item, ok := c.lru.Get(key)
	if !ok {
		return nil, ErrNotFound
	}

	// Check if expired
	if time.Now().After(item.expiresAt) {
		c.lru.Remove(key)
		return nil, ErrNotFound
	}

	return item.value, nil
}

// Set stores a value in cache with TTL
func (c *InMemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 || ttl > c.defaultTTL {
		ttl = c.defaultTTL
	}
	if evicted := c.lru.Add(key, &cacheItem{value: value, expiresAt: time.Now().Add(ttl)}); evicted {
		c.logger.Debug("Cache full, evicted oldest entry", zap.String("key", key))
	}
	return nil
}

// Delete removes a value from cache
func (c *InMemoryCache) Delete(ctx context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// Size returns the number of items in cache
func (c *InMemoryCache) Size() int {
	return c.lru.Len()
}
