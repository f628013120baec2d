package cinefusion

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cespare/xxhash/v2"
)

const anonymousClient = "anonymous"

// Decision is the outcome of one admission check.
type Decision struct {
	Admitted  bool      `json:"admitted"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// RateLimiter admits at most limit requests per client in any trailing
// window. Each client keeps the instants of its admitted requests, never
// more than limit of them.
type RateLimiter struct {
	limit      int
	window     time.Duration
	staleAfter time.Duration
	clock      clock.Clock
	shards     []*limiterShard
	admitted   atomic.Uint64
	rejected   atomic.Uint64
}

type limiterShard struct {
	mu      sync.Mutex
	clients map[string]*slidingWindow
}

type slidingWindow struct {
	stamps   []time.Time
	lastSeen time.Time
}

// LimiterStats is a snapshot of limiter counters.
type LimiterStats struct {
	Limit    int           `json:"limit"`
	Window   time.Duration `json:"window"`
	Clients  int           `json:"clients"`
	Admitted uint64        `json:"admitted"`
	Rejected uint64        `json:"rejected"`
}

type LimiterOption func(*RateLimiter)

func LimiterWithClock(clk clock.Clock) LimiterOption {
	return func(rl *RateLimiter) {
		if clk != nil {
			rl.clock = clk
		}
	}
}

func LimiterWithShards(n int) LimiterOption {
	return func(rl *RateLimiter) {
		if n > 0 {
			rl.shards = make([]*limiterShard, n)
		}
	}
}

// LimiterWithStaleAfter sets how long a client must be idle before Sweep
// forgets it. It never goes below the window.
func LimiterWithStaleAfter(d time.Duration) LimiterOption {
	return func(rl *RateLimiter) {
		if d > 0 {
			rl.staleAfter = d
		}
	}
}

func NewRateLimiter(limit int, window time.Duration, opts ...LimiterOption) *RateLimiter {
	rl := &RateLimiter{
		limit:      limit,
		window:     window,
		staleAfter: 3 * window,
		clock:      clock.New(),
		shards:     make([]*limiterShard, 16),
	}
	for _, opt := range opts {
		opt(rl)
	}
	rl.staleAfter = max(rl.staleAfter, window)
	for i := range rl.shards {
		rl.shards[i] = &limiterShard{clients: make(map[string]*slidingWindow)}
	}
	return rl
}

func (rl *RateLimiter) shard(key string) *limiterShard {
	return rl.shards[xxhash.Sum64String(key)%uint64(len(rl.shards))]
}

// Allow records a request from clientKey if the client is under its limit.
// An empty key is treated as one shared anonymous client. A limiter with a
// non-positive limit admits everything.
func (rl *RateLimiter) Allow(clientKey string) Decision {
	if rl.limit <= 0 {
		rl.admitted.Add(1)
		return Decision{Admitted: true, Limit: rl.limit, Remaining: -1}
	}
	if clientKey == "" {
		clientKey = anonymousClient
	}
	now := rl.clock.Now()
	s := rl.shard(clientKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.clients[clientKey]
	if !ok {
		w = &slidingWindow{stamps: make([]time.Time, 0, rl.limit)}
		s.clients[clientKey] = w
	}
	w.lastSeen = now
	w.purge(now, rl.window)
	if len(w.stamps) >= rl.limit {
		rl.rejected.Add(1)
		return Decision{Admitted: false, Limit: rl.limit, Remaining: 0, ResetAt: w.stamps[0].Add(rl.window)}
	}
	w.stamps = append(w.stamps, now)
	rl.admitted.Add(1)
	return Decision{
		Admitted:  true,
		Limit:     rl.limit,
		Remaining: rl.limit - len(w.stamps),
		ResetAt:   w.stamps[0].Add(rl.window),
	}
}

// purge drops the instants that left the window ending at now.
func (w *slidingWindow) purge(now time.Time, window time.Duration) {
	i := 0
	for i < len(w.stamps) && now.Sub(w.stamps[i]) >= window {
		i++
	}
	if i > 0 {
		n := copy(w.stamps, w.stamps[i:])
		w.stamps = w.stamps[:n]
	}
}

// Sweep forgets clients idle for longer than the stale period and returns
// how many were dropped.
func (rl *RateLimiter) Sweep() int {
	now := rl.clock.Now()
	removed := 0
	for _, s := range rl.shards {
		s.mu.Lock()
		for key, w := range s.clients {
			if now.Sub(w.lastSeen) >= rl.staleAfter {
				delete(s.clients, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Clients is the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	n := 0
	for _, s := range rl.shards {
		s.mu.Lock()
		n += len(s.clients)
		s.mu.Unlock()
	}
	return n
}

func (rl *RateLimiter) Stats() LimiterStats {
	return LimiterStats{
		Limit:    rl.limit,
		Window:   rl.window,
		Clients:  rl.Clients(),
		Admitted: rl.admitted.Load(),
		Rejected: rl.rejected.Load(),
	}
}
