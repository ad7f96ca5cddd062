package keystore

import (
	"context"
	"errors"
	"sync"

	"github.com/lightninglabs/neutrino/cache"
	"github.com/lightninglabs/neutrino/cache/lru"
)

// cachedValue is one cached item. Every entry counts as one unit against
// the cache capacity.
type cachedValue string

// Size implements cache.Value
func (cachedValue) Size() (uint64, error) {
	return 1, nil
}

// CachedStore is a read-through LRU decorator for remote backends.
//
// Device-only items never enter the cache: neither keys written through the
// decorator with that policy nor the keys named at construction.
type CachedStore struct {
	next  Store
	cache *lru.Cache[string, cachedValue]

	mu       sync.RWMutex
	uncached map[string]struct{}
}

// NewCachedStore wraps next with an LRU cache of the given capacity.
func NewCachedStore(next Store, capacity int, uncached ...string) *CachedStore {
	c := &CachedStore{
		next:     next,
		cache:    lru.NewCache[string, cachedValue](uint64(max(capacity, 1))),
		uncached: make(map[string]struct{}, len(uncached)),
	}
	for _, k := range uncached {
		c.uncached[k] = struct{}{}
	}
	return c
}

func (c *CachedStore) GetItem(ctx context.Context, key string) (string, error) {
	if value, err := c.cache.Get(key); err == nil {
		return string(value), nil
	}

	value, err := c.next.GetItem(ctx, key)
	if err != nil {
		return "", err
	}
	c.put(key, value)
	return value, nil
}

func (c *CachedStore) SetItem(ctx context.Context, key, value string, policy *AccessPolicy) error {
	if deviceOnly(policy) {
		c.mu.Lock()
		c.uncached[key] = struct{}{}
		c.mu.Unlock()
	}

	c.cache.Delete(key)
	if err := c.next.SetItem(ctx, key, value, policy); err != nil {
		return err
	}
	c.put(key, value)
	return nil
}

func (c *CachedStore) DeleteItem(ctx context.Context, key string) error {
	c.cache.Delete(key)
	err := c.next.DeleteItem(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// Cached reports whether key currently has a cached value.
func (c *CachedStore) Cached(key string) bool {
	_, err := c.cache.Get(key)
	return !errors.Is(err, cache.ErrElementNotFound)
}

// Len returns the number of cached items
func (c *CachedStore) Len() int {
	return c.cache.Len()
}

// ListKeys implements Lister when the wrapped store does
func (c *CachedStore) ListKeys(ctx context.Context) ([]string, error) {
	l, ok := c.next.(Lister)
	if !ok {
		return nil, errors.New("keystore: backend cannot list keys")
	}
	return l.ListKeys(ctx)
}

func (c *CachedStore) put(key, value string) {
	if !c.cacheable(key) {
		return
	}
	// an entry that cannot be inserted is simply not cached
	_, _ = c.cache.Put(key, cachedValue(value))
}

func (c *CachedStore) cacheable(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, skip := c.uncached[key]
	return !skip
}
