package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Cache is a TTL cache of Catalog snapshots keyed by schema name. Reads are
// read-locked against an immutable snapshot; a refresh replaces the whole
// entry atomically so readers never observe a half-reflected schema.
// At most one reflection runs per key at a time.
type Cache struct {
	reflector Reflector
	ttl       time.Duration
	logger    zerolog.Logger

	mu      sync.RWMutex
	entries map[string]*cacheEntry

	// serializes reflection per schema so concurrent misses collapse into
	// one catalog query burst
	fillMu sync.Mutex
	fills  map[string]*fill
}

type cacheEntry struct {
	catalog   *Catalog
	expiresAt time.Time
}

type fill struct {
	done chan struct{}
	cat  *Catalog
	err  error
}

// NewCache creates a catalog cache with the given TTL.
func NewCache(reflector Reflector, ttl time.Duration, logger zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Cache{
		reflector: reflector,
		ttl:       ttl,
		logger:    logger,
		entries:   make(map[string]*cacheEntry),
		fills:     make(map[string]*fill),
	}
}

// Get returns the cached snapshot for schema, reflecting it on miss or
// expiry. Reflection errors are never cached.
func (c *Cache) Get(ctx context.Context, schema string) (*Catalog, error) {
	c.mu.RLock()
	entry, ok := c.entries[schema]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.catalog, nil
	}

	return c.refresh(ctx, schema)
}

// Peek returns the cached snapshot without triggering reflection.
func (c *Cache) Peek(schema string) (*Catalog, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[schema]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.catalog, true
}

func (c *Cache) refresh(ctx context.Context, schema string) (*Catalog, error) {
	c.fillMu.Lock()
	if f, ok := c.fills[schema]; ok {
		// another goroutine is already reflecting this schema
		c.fillMu.Unlock()
		select {
		case <-f.done:
			return f.cat, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f := &fill{done: make(chan struct{})}
	c.fills[schema] = f
	c.fillMu.Unlock()

	cat, err := c.reflector.Reflect(ctx, schema)
	f.cat, f.err = cat, err

	if err == nil {
		c.mu.Lock()
		c.entries[schema] = &cacheEntry{
			catalog:   cat,
			expiresAt: time.Now().Add(c.ttl),
		}
		c.mu.Unlock()
	}

	c.fillMu.Lock()
	delete(c.fills, schema)
	c.fillMu.Unlock()
	close(f.done)

	if err != nil {
		return nil, err
	}
	return cat, nil
}

// Invalidate clears every cached snapshot.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.logger.Info().Msg("catalog cache invalidated")
}

// InvalidateSchema clears the snapshot for one schema.
func (c *Cache) InvalidateSchema(schema string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, schema)
	c.logger.Info().Str("schema", schema).Msg("catalog cache entry invalidated")
}
