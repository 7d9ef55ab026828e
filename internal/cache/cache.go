// Package cache implements C2: a content-addressed response cache and a
// per-API daily quota ledger. The in-memory structures
// here hold short critical sections (one mutex per Cache and one per
// QuotaLedger) and optionally durable-write through a Persister so
// the ledger survives process restarts.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/littlebearapps/adops-intel/internal/clock"
)

// Key computes the content-address hash(endpoint, canonical_params).
// Params are sorted by key before hashing so the same logical call
// always hashes identically regardless of map iteration order.
func Key(endpoint string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	h.Write([]byte(endpoint))
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(params[k]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Persister is the durable-storage seam the cache writes through. A nil
// Persister means the cache is purely in-memory (e.g. for unit tests).
type Persister interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Put(ctx context.Context, key, endpoint string, value []byte, expiresAt time.Time) error
}

// EndpointStats tracks per-endpoint hit/miss counts.
type EndpointStats struct {
	Hits   int
	Misses int
}

// HitRate returns hits / (hits+misses), or 0 when there have been no calls.
func (s EndpointStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Cache is the content cache half of C2.
type Cache struct {
	clk       clock.Clock
	persister Persister

	mu      sync.Mutex
	entries map[string]entry
	stats   map[string]EndpointStats
}

// New returns an in-memory Cache. persister may be nil.
func New(clk clock.Clock, persister Persister) *Cache {
	return &Cache{
		clk:       clk,
		persister: persister,
		entries:   make(map[string]entry),
		stats:     make(map[string]EndpointStats),
	}
}

// Get looks up key, first in memory, then (on miss) through the
// persister. A persister read failure degrades to a miss, never an
// error.
func (c *Cache) Get(ctx context.Context, endpoint string, params map[string]string, out any) bool {
	key := Key(endpoint, params)

	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()

	if !ok && c.persister != nil {
		if raw, found := c.persister.Get(ctx, key); found {
			e = entry{value: raw}
			ok = true
			c.mu.Lock()
			c.entries[key] = e
			c.mu.Unlock()
		}
	}

	if ok && !e.expiresAt.IsZero() && c.clk.Now().After(e.expiresAt) {
		ok = false
	}

	c.mu.Lock()
	st := c.stats[endpoint]
	if ok {
		st.Hits++
	} else {
		st.Misses++
	}
	c.stats[endpoint] = st
	c.mu.Unlock()

	if !ok {
		return false
	}
	if out != nil {
		if err := json.Unmarshal(e.value, out); err != nil {
			return false
		}
	}
	return true
}

// Put stores value for (endpoint, params) with the given TTL, writing
// through to the persister if one is configured.
func (c *Cache) Put(ctx context.Context, endpoint string, params map[string]string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	key := Key(endpoint, params)
	expiresAt := c.clk.Now().Add(ttl)

	c.mu.Lock()
	c.entries[key] = entry{value: raw, expiresAt: expiresAt}
	c.mu.Unlock()

	if c.persister != nil {
		return c.persister.Put(ctx, key, endpoint, raw, expiresAt)
	}
	return nil
}

// Stats returns a snapshot of per-endpoint hit/miss counters.
func (c *Cache) Stats() map[string]EndpointStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]EndpointStats, len(c.stats))
	for k, v := range c.stats {
		out[k] = v
	}
	return out
}

// OverallHitRate aggregates hit rate across all endpoints, used for
// PlanSummary.cache_hit_rate.
func (c *Cache) OverallHitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var hits, total int
	for _, st := range c.stats {
		hits += st.Hits
		total += st.Hits + st.Misses
	}
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
