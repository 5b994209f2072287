// Package memo provides the bounded in-process cache used to memoize
// filesystem scans and recovered keys.
//
// A Cache holds at most its capacity in entries, each costing one unit.
// Admission follows ristretto's TinyLFU policy and eviction is sampled LFU,
// so a full cache may refuse a new entry rather than evict a frequently
// used one. Callers must treat every miss as "recompute".
package memo

import (
	"github.com/dgraph-io/ristretto"
)

type Cache[V any] struct {
	c *ristretto.Cache
}

// New creates a cache holding up to capacity entries. A capacity below one
// returns a disabled cache on which every lookup misses.
func New[V any](capacity int64) (*Cache[V], error) {
	if capacity < 1 {
		return &Cache[V]{}, nil
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: capacity * 10,
		MaxCost:     capacity,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache[V]{c: c}, nil
}

func (c *Cache[V]) Get(key string) (v V, ok bool) {
	if c == nil || c.c == nil {
		return v, false
	}
	value, ok := c.c.Get(key)
	if !ok {
		return v, false
	}
	v, ok = value.(V)
	return v, ok
}

// Set stores value under key and waits for the write to become visible.
func (c *Cache[V]) Set(key string, value V) {
	if c == nil || c.c == nil {
		return
	}
	if c.c.Set(key, value, 1) {
		c.c.Wait()
	}
}

func (c *Cache[V]) Del(key string) {
	if c == nil || c.c == nil {
		return
	}
	c.c.Del(key)
}

func (c *Cache[V]) Close() {
	if c == nil || c.c == nil {
		return
	}
	c.c.Close()
}
