package cinefusion

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// ResultCache is a bounded LRU cache of planner results whose entries
// expire a fixed time after insertion. Keys are spread over independently
// locked shards; recency is tracked per shard.
//
// Each shard holds a fixed share of the capacity, so a full shard evicts its
// least recently used entry even while the cache as a whole holds fewer than
// capacity entries. A single shard gives exact LRU order over all keys.
type ResultCache struct {
	shards      []*cacheShard
	capacity    int
	ttl         time.Duration
	clock       clock.Clock
	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   atomic.Uint64
	expirations atomic.Uint64
}

type cacheShard struct {
	mu  sync.Mutex
	lru *simplelru.LRU[string, *cacheEntry]
}

type cacheEntry struct {
	value          PlanResult
	insertedAt     time.Time
	lastAccessedAt time.Time
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Size        int     `json:"size"`
	Capacity    int     `json:"capacity"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Expirations uint64  `json:"expirations"`
	HitRate     float64 `json:"hit_rate"`
}

type CacheOption func(*cacheOptions)

type cacheOptions struct {
	shards int
	clock  clock.Clock
}

func CacheWithShards(n int) CacheOption {
	return func(o *cacheOptions) {
		if n > 0 {
			o.shards = n
		}
	}
}

func CacheWithClock(clk clock.Clock) CacheOption {
	return func(o *cacheOptions) {
		if clk != nil {
			o.clock = clk
		}
	}
}

// NewResultCache returns a cache holding at most capacity entries for ttl
// each.
func NewResultCache(capacity int, ttl time.Duration, opts ...CacheOption) *ResultCache {
	o := cacheOptions{shards: 16, clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}
	capacity = max(capacity, 1)
	n := min(o.shards, capacity)
	c := &ResultCache{
		shards:   make([]*cacheShard, n),
		capacity: capacity,
		ttl:      ttl,
		clock:    o.clock,
	}
	for i := range c.shards {
		size := capacity / n
		if i < capacity%n {
			size++
		}
		lru, err := simplelru.NewLRU[string, *cacheEntry](size, nil)
		if err != nil {
			panic(err) // size is always positive
		}
		c.shards[i] = &cacheShard{lru: lru}
	}
	return c
}

func (c *ResultCache) shard(key string) *cacheShard {
	return c.shards[xxhash.Sum64String(key)%uint64(len(c.shards))]
}

func (c *ResultCache) expired(e *cacheEntry, now time.Time) bool {
	return now.Sub(e.insertedAt) >= c.ttl
}

// Get returns the cached result for key. An expired entry is removed and
// reported as a miss.
func (c *ResultCache) Get(key string) (PlanResult, bool) {
	s := c.shard(key)
	now := c.clock.Now()
	s.mu.Lock()
	e, ok := s.lru.Get(key)
	if ok && c.expired(e, now) {
		s.lru.Remove(key)
		c.expirations.Add(1)
		ok = false
	}
	if !ok {
		s.mu.Unlock()
		c.misses.Add(1)
		return PlanResult{}, false
	}
	e.lastAccessedAt = now
	value := e.value
	s.mu.Unlock()
	c.hits.Add(1)
	return value, true
}

// Put stores value under key, evicting the least recently used entry of
// the shard when it is full.
func (c *ResultCache) Put(key string, value PlanResult) {
	s := c.shard(key)
	now := c.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.lru.Get(key); ok {
		e.value = value
		e.insertedAt = now
		e.lastAccessedAt = now
		return
	}
	if s.lru.Add(key, &cacheEntry{value: value, insertedAt: now, lastAccessedAt: now}) {
		c.evictions.Add(1)
	}
}

// Sweep drops every expired entry and returns how many were dropped.
func (c *ResultCache) Sweep() int {
	now := c.clock.Now()
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for _, key := range s.lru.Keys() {
			if e, ok := s.lru.Peek(key); ok && c.expired(e, now) {
				s.lru.Remove(key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	c.expirations.Add(uint64(removed))
	return removed
}

// Clear drops every entry. Counters are kept.
func (c *ResultCache) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.lru.Purge()
		s.mu.Unlock()
	}
}

func (c *ResultCache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += s.lru.Len()
		s.mu.Unlock()
	}
	return n
}

func (c *ResultCache) Stats() CacheStats {
	st := CacheStats{
		Size:        c.Len(),
		Capacity:    c.capacity,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
	}
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) / float64(total)
	}
	return st
}
