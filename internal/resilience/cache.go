package resilience

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultAvailabilityTTL bounds how stale a cached availability answer
// may be.
const DefaultAvailabilityTTL = 120 * time.Second

// AvailabilityCache stores serialized availability responses keyed by
// entity and stay terms. Implementations: in-process map, Redis.
type AvailabilityCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	InvalidateEntity(ctx context.Context, entityID string) error
}

// CacheKey builds the lookup key for one availability query.
func CacheKey(entityID, checkIn, checkOut, roomType string) string {
	return fmt.Sprintf("avail:%s:%s|%s|%s", entityID, checkIn, checkOut, roomType)
}

// entityPrefix returns the key prefix shared by all of an entity's
// cached queries.
func entityPrefix(entityID string) string {
	return "avail:" + entityID + ":"
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is the in-process AvailabilityCache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		delete(c.entries, key)
		CacheRequestsTotal.WithLabelValues("miss").Inc()
		return nil, false, nil
	}
	CacheRequestsTotal.WithLabelValues("hit").Inc()
	return e.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{value: value, expiresAt: c.now().Add(ttl)}
	return nil
}

// InvalidateEntity drops every cached query for one entity. Called after
// a booking succeeds, since inventory has changed.
func (c *MemoryCache) InvalidateEntity(_ context.Context, entityID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := entityPrefix(entityID)
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}
