package cache

import (
	"context"
	"sync"
	"time"

	errbuilder "github.com/ZanzyTHEbar/errbuilder-go"
)

// InMemoryCache provides a simple thread-safe in-memory cache with TTL
// expiry. It satisfies the pitwall.Cache interface.
type InMemoryCache struct {
	store  map[string]cacheItem
	mutex  sync.RWMutex
	ttl    time.Duration
	logger Logger
}

type cacheItem struct {
	value      interface{}
	expiration int64
}

// CacheOption configures an InMemoryCache.
type CacheOption func(*InMemoryCache)

// WithLogger sets the cache's logger.
func WithLogger(logger Logger) CacheOption {
	return func(c *InMemoryCache) {
		c.logger = logger
	}
}

// NewInMemoryCache creates a new in-memory cache with a default TTL.
func NewInMemoryCache(defaultTTL time.Duration, options ...CacheOption) *InMemoryCache {
	c := &InMemoryCache{
		store:  make(map[string]cacheItem),
		ttl:    defaultTTL,
		logger: &StdLogger{},
	}
	for _, option := range options {
		option(c)
	}
	// Start a background cleanup goroutine
	go c.cleanupLoop(10 * time.Minute)
	return c
}

// lookup retrieves an item, reporting misses and expiry as errors.
func (c *InMemoryCache) lookup(ctx context.Context, key string) (interface{}, error) {
	// Check context cancellation first
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return nil, err
	}

	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, found := c.store[key]
	if !found {
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("cache item not found", nil))
	}

	if time.Now().UnixNano() > item.expiration {
		// Item expired (lazy cleanup)
		c.logger.Info("cache item expired", map[string]interface{}{"key": key})
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("cache item expired", nil))
	}

	return item.value, nil
}

// Get retrieves an item from the cache.
func (c *InMemoryCache) Get(ctx context.Context, key string) (interface{}, bool) {
	value, err := c.lookup(ctx, key)
	if err != nil {
		return nil, false
	}
	return value, true
}

// Set adds or updates an item in the cache.
func (c *InMemoryCache) Set(ctx context.Context, key string, value interface{}) {
	// Dropped silently when the context is already done
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	expiration := time.Now().Add(c.ttl).UnixNano()
	c.store[key] = cacheItem{
		value:      value,
		expiration: expiration,
	}
}

// cleanupLoop periodically removes expired items.
func (c *InMemoryCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		c.mutex.Lock()
		now := time.Now().UnixNano()
		for key, item := range c.store {
			if now > item.expiration {
				delete(c.store, key)
			}
		}
		c.mutex.Unlock()
	}
}
