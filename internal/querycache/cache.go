package querycache

import (
	"strings"
	"sync"
	"time"

	"github.com/fibertrak/fibertrak-backend/internal/logger"
	"github.com/fibertrak/fibertrak-backend/internal/realtime/wsclient"
)

// Cache is the in-process query cache behind the bus's CacheInvalidator
// collaborator: results keyed by tuples like {"work-entries"} or
// {"work-entries", "detail", id}. Invalidation marks entries stale instead of
// evicting them so callers can keep showing the last known data while a
// refetch is in flight.
type Cache struct {
	mu      sync.Mutex
	log     *logger.Logger
	entries map[string]*entry
}

type entry struct {
	key       wsclient.QueryKey
	value     any
	stale     bool
	updatedAt time.Time
}

// Key segments never contain the separator: room and entity ids are uuids,
// key words are fixed strings.
const keySeparator = "\x1f"

func New(log *logger.Logger) *Cache {
	return &Cache{
		log:     log.With("component", "QueryCache"),
		entries: make(map[string]*entry),
	}
}

func encodeKey(key wsclient.QueryKey) string {
	return strings.Join(key, keySeparator)
}

// Get returns the cached value and whether it is fresh. A stale hit is still
// a hit; the second return tells the caller to refetch before trusting it.
func (c *Cache) Get(key wsclient.QueryKey) (value any, fresh bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[encodeKey(key)]
	if !ok {
		return nil, false, false
	}
	return e.value, !e.stale, true
}

func (c *Cache) Set(key wsclient.QueryKey, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[encodeKey(key)] = &entry{
		key:       key,
		value:     value,
		updatedAt: time.Now(),
	}
}

// Upsert implements the bus collaborator contract; a pushed copy replaces
// whatever was cached and counts as fresh.
func (c *Cache) Upsert(key wsclient.QueryKey, value any) {
	c.Set(key, value)
}

// Invalidate marks every entry whose key has one of the given keys as a
// prefix. Invalidating {"projects"} covers the list and every
// {"projects", "detail", id} entry.
func (c *Cache) Invalidate(keys ...wsclient.QueryKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		prefix := encodeKey(key)
		for encoded, e := range c.entries {
			if encoded == prefix || strings.HasPrefix(encoded, prefix+keySeparator) {
				e.stale = true
			}
		}
	}
}

func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		e.stale = true
	}
	c.log.Debug("Invalidated all cached queries", "entries", len(c.entries))
}

// Prune drops entries stale for longer than maxAge; the caller decides when.
func (c *Cache) Prune(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for encoded, e := range c.entries {
		if e.stale && e.updatedAt.Before(cutoff) {
			delete(c.entries, encoded)
			removed++
		}
	}
	return removed
}
