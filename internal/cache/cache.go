// Package cache implements the TTL + LRU verdict cache with deferred durable
// flush. The in-memory mirror is always the read-of-record; the KV store is
// only consulted once at load and written on the flush cadence.
package cache

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/feedsift/feedsift/internal/metrics"
	"github.com/feedsift/feedsift/internal/store"
	"github.com/feedsift/feedsift/internal/verdict"
)

// StoreKey is the KV key the cache persists itself under.
const StoreKey = "cache/verdicts"

// Cache maps content fingerprints to verdict records.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]verdict.Record
	capacity int
	ttl      time.Duration
	dirty    bool

	kv  store.KV
	log zerolog.Logger
	now func() time.Time
}

// New constructs a cache and restores any persisted entries from kv.
// kv may be nil for a purely in-memory cache.
func New(capacity int, ttl time.Duration, kv store.KV, log zerolog.Logger) *Cache {
	c := &Cache{
		entries:  make(map[string]verdict.Record),
		capacity: capacity,
		ttl:      ttl,
		kv:       kv,
		log:      log,
		now:      time.Now,
	}
	c.load()
	return c
}

func (c *Cache) load() {
	if c.kv == nil {
		return
	}
	raw, ok, err := c.kv.Get(context.Background(), StoreKey)
	if err != nil {
		c.log.Error().Err(err).Msg("cache restore failed")
		return
	}
	if !ok {
		return
	}
	var persisted map[string]verdict.Record
	if err := json.Unmarshal(raw, &persisted); err != nil {
		c.log.Error().Err(err).Msg("cache restore: malformed payload, starting empty")
		return
	}
	c.entries = persisted
	c.log.Info().Int("entries", len(persisted)).Msg("verdict cache restored")
}

// Get returns the record for fp, or ok=false on a miss. An expired entry is
// evicted as a side effect and reported as a miss.
func (c *Cache) Get(fp string) (verdict.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.entries[fp]
	if !ok {
		metrics.CacheMissesTotal.Inc()
		return verdict.Record{}, false
	}
	if c.now().Sub(rec.Timestamp) > c.ttl {
		delete(c.entries, fp)
		c.dirty = true
		metrics.CacheMissesTotal.Inc()
		return verdict.Record{}, false
	}
	metrics.CacheHitsTotal.Inc()
	return rec, true
}

// Put inserts or overwrites the record for fp. When the insert would exceed
// capacity, the oldest-timestamp entries are evicted first.
func (c *Cache) Put(fp string, rec verdict.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = c.now()
	}
	if _, exists := c.entries[fp]; !exists && len(c.entries) >= c.capacity {
		c.evictOldestLocked(len(c.entries) - c.capacity + 1)
	}
	c.entries[fp] = rec
	c.dirty = true
}

// evictOldestLocked removes the n entries with the smallest timestamps.
func (c *Cache) evictOldestLocked(n int) {
	type aged struct {
		fp string
		ts time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for fp, rec := range c.entries {
		all = append(all, aged{fp, rec.Timestamp})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ts.Before(all[j].ts) })
	if n > len(all) {
		n = len(all)
	}
	for _, a := range all[:n] {
		delete(c.entries, a.fp)
	}
}

// SweepExpired drops every expired entry and forces a durable flush. Called on
// pipeline activation and at day rollover.
func (c *Cache) SweepExpired(ctx context.Context) {
	c.mu.Lock()
	removed := 0
	cutoff := c.now().Add(-c.ttl)
	for fp, rec := range c.entries {
		if rec.Timestamp.Before(cutoff) {
			delete(c.entries, fp)
			removed++
		}
	}
	if removed > 0 {
		c.dirty = true
	}
	c.mu.Unlock()

	if removed > 0 {
		c.log.Info().Int("removed", removed).Msg("expired cache entries swept")
	}
	c.Flush(ctx)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Flush writes the cache to the KV store if dirty. Reads always go through
// the in-memory mirror, so flushing late never serves stale data.
func (c *Cache) Flush(ctx context.Context) {
	if c.kv == nil {
		return
	}
	c.mu.Lock()
	if !c.dirty {
		c.mu.Unlock()
		return
	}
	raw, err := json.Marshal(c.entries)
	c.dirty = false
	c.mu.Unlock()

	if err != nil {
		c.log.Error().Err(err).Msg("cache flush: marshal failed")
		return
	}
	if err := c.kv.Set(ctx, StoreKey, raw); err != nil {
		c.log.Error().Err(err).Msg("cache flush: store write failed")
		// last-writer-wins at flush granularity; next cadence retries
		c.mu.Lock()
		c.dirty = true
		c.mu.Unlock()
	}
}

// StartFlusher flushes on a fixed cadence until ctx is cancelled, with a final
// flush on shutdown.
func (c *Cache) StartFlusher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Flush(context.Background())
			return
		case <-ticker.C:
			c.Flush(ctx)
		}
	}
}
