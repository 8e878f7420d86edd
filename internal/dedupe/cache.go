package dedupe

import (
	"sync"
	"time"
)

type entry struct {
	id string
	ts time.Time
}

// Cache remembers which article IDs were already processed inside a TTL
// window, bounded by capacity. Re-delivered Kafka messages for the same
// article are skipped instead of re-running the pipeline.
type Cache struct {
	mu       sync.Mutex
	items    map[string]time.Time
	order    []entry
	capacity int
	ttl      time.Duration
}

// NewCache creates a cache with the provided capacity and ttl.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		items:    make(map[string]time.Time, capacity),
		order:    make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
	}
}

// Seen reports whether the article ID was processed inside the ttl window.
// It does not record the ID; use Mark after the article reaches a terminal
// state.
func (c *Cache) Seen(id string) bool {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if ts, ok := c.items[id]; ok {
		return now.Sub(ts) <= c.ttl
	}
	return false
}

// Mark records that an article has been processed.
func (c *Cache) Mark(id string) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[id] = now
	c.order = append(c.order, entry{id: id, ts: now})
	c.compact(now)
}

func (c *Cache) compact(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for len(c.order) > 0 && (len(c.items) > c.capacity || c.order[0].ts.Before(cutoff)) {
		oldest := c.order[0]
		c.order = c.order[1:]

		if ts, ok := c.items[oldest.id]; ok && ts == oldest.ts {
			delete(c.items, oldest.id)
		}
	}
}
