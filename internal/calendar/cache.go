package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"calendar-mcp/internal/metrics"
)

// AvailabilityCache remembers availability answers until the calendar changes.
// Every answer belongs to a generation; Invalidate starts a new one, and an
// answer computed under an older generation is never served.
type AvailabilityCache interface {
	// Generation reports the current generation.
	Generation(ctx context.Context) (int64, error)
	Get(ctx context.Context, gen int64, start, end time.Time) (Availability, bool, error)
	// Set stores a for the range only while gen is still current.
	Set(ctx context.Context, gen int64, start, end time.Time, a Availability) error
	// Invalidate drops every cached answer.
	Invalidate(ctx context.Context) error
}

func rangeKey(start, end time.Time) string {
	return fmt.Sprintf("%d:%d", start.UnixNano(), end.UnixNano())
}

type cacheItem struct {
	value      Availability
	expiration time.Time
}

// MemoryCache is an in-memory TTL cache safe for concurrent access.
type MemoryCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	gen   int64
	items map[string]cacheItem
}

// NewMemoryCache constructs an empty MemoryCache whose entries live for ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, items: make(map[string]cacheItem)}
}

func (c *MemoryCache) Generation(context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen, nil
}

// Set stores the answer for a range unless the cache was invalidated after gen was read.
func (c *MemoryCache) Set(_ context.Context, gen int64, start, end time.Time, a Availability) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return nil
	}
	c.items[rangeKey(start, end)] = cacheItem{value: a, expiration: time.Now().Add(c.ttl)}
	return nil
}

// Get retrieves a non-expired answer, reporting false if missing, expired or
// from another generation.
func (c *MemoryCache) Get(_ context.Context, gen int64, start, end time.Time) (Availability, bool, error) {
	key := rangeKey(start, end)
	c.mu.RLock()
	it, ok := c.items[key]
	current := c.gen
	c.mu.RUnlock()
	if !ok || gen != current {
		return Availability{}, false, nil
	}
	if time.Now().After(it.expiration) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return Availability{}, false, nil
	}
	return it.value, true, nil
}

// Invalidate empties the cache and starts a new generation.
func (c *MemoryCache) Invalidate(context.Context) error {
	c.mu.Lock()
	c.gen++
	c.items = make(map[string]cacheItem)
	c.mu.Unlock()
	return nil
}

// CachedBackend answers availability from a cache and invalidates it on
// every mutation. Cache failures degrade to the underlying backend.
type CachedBackend struct {
	Backend
	cache AvailabilityCache
	log   *zap.Logger
}

// WithCache wraps b with cache.
func WithCache(b Backend, cache AvailabilityCache, log *zap.Logger) *CachedBackend {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedBackend{Backend: b, cache: cache, log: log}
}

func (c *CachedBackend) CheckAvailability(ctx context.Context, start, end time.Time) (Availability, error) {
	// The generation is read before the backend so that a mutation landing
	// mid-read leaves the answer unstored.
	gen, err := c.cache.Generation(ctx)
	if err != nil {
		metrics.AvailabilityCacheTotal.WithLabelValues("error").Inc()
		c.log.Warn("availability cache read failed", zap.Error(err))
		return c.Backend.CheckAvailability(ctx, start, end)
	}

	a, ok, err := c.cache.Get(ctx, gen, start, end)
	switch {
	case err != nil:
		metrics.AvailabilityCacheTotal.WithLabelValues("error").Inc()
		c.log.Warn("availability cache read failed", zap.Error(err))
	case ok:
		metrics.AvailabilityCacheTotal.WithLabelValues("hit").Inc()
		return a, nil
	default:
		metrics.AvailabilityCacheTotal.WithLabelValues("miss").Inc()
	}

	a, err = c.Backend.CheckAvailability(ctx, start, end)
	if err != nil {
		return Availability{}, err
	}
	if err := c.cache.Set(ctx, gen, start, end, a); err != nil {
		c.log.Warn("availability cache write failed", zap.Error(err))
	}
	return a, nil
}

func (c *CachedBackend) CreateEvent(ctx context.Context, in EventInput) (Event, error) {
	defer c.invalidate(ctx)
	return c.Backend.CreateEvent(ctx, in)
}

func (c *CachedBackend) UpdateEvent(ctx context.Context, id string, patch EventPatch) (Event, error) {
	defer c.invalidate(ctx)
	return c.Backend.UpdateEvent(ctx, id, patch)
}

func (c *CachedBackend) DeleteEvent(ctx context.Context, id string) error {
	defer c.invalidate(ctx)
	return c.Backend.DeleteEvent(ctx, id)
}

// invalidate runs even when the mutation failed: a remote calendar may have
// applied part of it.
func (c *CachedBackend) invalidate(ctx context.Context) {
	if err := c.cache.Invalidate(ctx); err != nil {
		c.log.Warn("availability cache invalidation failed", zap.Error(err))
	}
}
