package cinefusion

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/oarkflow/xid"
	"go.uber.org/zap"

	"github.com/oarkflow/cinefusion/utils"
)

// Engine answers suggestion and search requests over an immutable record
// set. It is safe for concurrent use.
type Engine struct {
	cfg     Config
	log     *zap.SugaredLogger
	store   *Store
	idx     *indexes
	planner *Planner
	cache   *ResultCache
	limiter *RateLimiter
	monitor *PerformanceMonitor

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// SearchResult is the response to one Search call. A rejected request has
// Admitted false, no records and ResetAt set.
type SearchResult struct {
	RequestID  string        `json:"request_id"`
	Admitted   bool          `json:"admitted"`
	Query      Query         `json:"query"`
	Records    []Record      `json:"records"`
	TotalCount int           `json:"total_count"`
	Offset     int           `json:"offset"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    *time.Time    `json:"reset_at,omitempty"`
	Cached     bool          `json:"cached"`
	Strategy   string        `json:"strategy,omitempty"`
	Took       time.Duration `json:"took"`

	rateLimit int
}

// Err reports a rejected request as a *RateLimitedError.
func (r *SearchResult) Err() error {
	if r == nil || r.Admitted {
		return nil
	}
	e := &RateLimitedError{Limit: r.rateLimit}
	if r.ResetAt != nil {
		e.ResetAt = *r.ResetAt
	}
	return e
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Records     int                 `json:"records"`
	Genres      int                 `json:"genres"`
	Cache       CacheStats          `json:"cache"`
	RateLimiter LimiterStats        `json:"rate_limiter"`
	Index       IndexStats          `json:"index"`
	Performance PerformanceSnapshot `json:"performance"`
}

// New builds an engine over records.
func New(records []Record, opts ...Option) (*Engine, error) {
	return Build(context.Background(), records, opts...)
}

// Build validates records, builds every index and starts the background
// sweepers. Close stops them.
func Build(ctx context.Context, records []Record, opts ...Option) (*Engine, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.MaxLimit = max(cfg.MaxLimit, 1)
	cfg.DefaultLimit = utils.Clamp(cfg.DefaultLimit, 1, cfg.MaxLimit)
	cfg.MaxSuggestions = max(cfg.MaxSuggestions, 1)
	cfg.DefaultSuggestions = utils.Clamp(cfg.DefaultSuggestions, 1, cfg.MaxSuggestions)

	start := cfg.Clock.Now()
	store := NewStore(len(records))
	for i, r := range records {
		if err := store.Append(i, r); err != nil {
			return nil, err
		}
	}
	idx, err := buildIndexes(ctx, store, &cfg)
	if err != nil {
		return nil, fmt.Errorf("building indexes: %w", err)
	}
	e := &Engine{
		cfg:     cfg,
		log:     cfg.Logger,
		store:   store,
		idx:     idx,
		planner: newPlanner(store, idx, cfg.DefaultLimit, cfg.MaxLimit),
		monitor: NewPerformanceMonitor(),
		stop:    make(chan struct{}),
	}
	if cfg.CacheEnabled && cfg.CacheCapacity > 0 {
		e.cache = NewResultCache(cfg.CacheCapacity, cfg.CacheTTL,
			CacheWithShards(cfg.CacheShards), CacheWithClock(cfg.Clock))
		e.every(cfg.CacheSweepInterval, func() {
			if n := e.cache.Sweep(); n > 0 {
				e.log.Debugw("cache sweep", "expired", n)
			}
		})
	}
	if cfg.RateLimit > 0 {
		e.limiter = NewRateLimiter(cfg.RateLimit, cfg.RateWindow,
			LimiterWithShards(cfg.RateShards), LimiterWithClock(cfg.Clock), LimiterWithStaleAfter(cfg.RateStaleAfter))
		e.every(cfg.RateSweepInterval, func() {
			if n := e.limiter.Sweep(); n > 0 {
				e.log.Debugw("rate limiter sweep", "clients", n)
			}
		})
	}
	st := idx.stats()
	e.log.Infow("index built",
		"records", store.Len(),
		"trie_nodes", st.TrieNodes,
		"trie_keys", st.TrieKeys,
		"took", cfg.Clock.Since(start).String(),
	)
	return e, nil
}

// every runs fn on each tick of interval until Close.
func (e *Engine) every(interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	ticker := e.cfg.Clock.Ticker(interval)
	e.wg.Add(1)
	go func(t *clock.Ticker) {
		defer e.wg.Done()
		defer t.Stop()
		for {
			select {
			case <-e.stop:
				return
			case <-t.C:
				fn()
			}
		}
	}(ticker)
}

// Close stops the background sweepers. The engine still answers queries
// afterwards; expired cache entries are then only purged on access.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		close(e.stop)
		e.wg.Wait()
	})
	return nil
}

// Suggest returns up to limit titles for prefix, most popular first.
func (e *Engine) Suggest(prefix string, limit int) []string {
	if limit <= 0 {
		limit = e.cfg.DefaultSuggestions
	}
	limit = min(limit, e.cfg.MaxSuggestions)
	e.monitor.RecordSuggest()
	if utf8.RuneCountInString(strings.TrimSpace(prefix)) > e.cfg.MaxPrefixLength {
		return []string{}
	}
	return e.idx.titles.Suggest(prefix, limit)
}

// Search admits, validates and runs q on behalf of clientKey. Identical
// queries within the cache TTL are answered from the cache.
func (e *Engine) Search(ctx context.Context, q Query, clientKey string) (*SearchResult, error) {
	return e.search(ctx, clientKey, func() (Query, error) { return q, nil })
}

// SearchParams is Search over flat string parameters in the form ParseQuery
// accepts. Parameters are parsed after admission, so a malformed request
// counts against the client's quota like any other invalid query.
func (e *Engine) SearchParams(ctx context.Context, params map[string]string, clientKey string) (*SearchResult, error) {
	return e.search(ctx, clientKey, func() (Query, error) { return ParseQuery(params) })
}

func (e *Engine) search(ctx context.Context, clientKey string, parse func() (Query, error)) (*SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := e.cfg.Clock.Now()
	res := &SearchResult{RequestID: xid.New().String(), Admitted: true, Remaining: -1}
	if e.limiter != nil {
		d := e.limiter.Allow(clientKey)
		res.Remaining = d.Remaining
		if !d.Admitted {
			e.log.Debugw("rate limited", "client", clientKey, "reset_at", d.ResetAt)
			res.Admitted = false
			res.Records = []Record{}
			res.ResetAt = &d.ResetAt
			res.rateLimit = d.Limit
			return res, nil
		}
	}

	nq, err := parse()
	if err == nil {
		nq, err = nq.Normalize(e.cfg.DefaultLimit, e.cfg.MaxLimit)
	}
	if err != nil {
		e.monitor.RecordInvalid()
		e.log.Debugw("invalid query", "request_id", res.RequestID, "error", err)
		return nil, err
	}
	res.Query = nq
	res.Offset, res.Limit = nq.Offset, nq.Limit

	var key string
	if e.cache != nil {
		if key, err = nq.Signature(); err != nil {
			return nil, err
		}
	}
	plan, hit := PlanResult{}, false
	if e.cache != nil {
		plan, hit = e.cache.Get(key)
	}
	if !hit {
		plan, err = e.planner.execute(ctx, nq)
		if err != nil {
			return nil, err
		}
		// a cancelled request leaves no trace in the cache
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.cache != nil {
			e.cache.Put(key, plan)
		}
	}

	res.Cached = hit
	res.TotalCount = plan.Total
	res.Strategy = plan.Strategy
	res.Records = make([]Record, 0, len(plan.IDs))
	for _, id := range plan.IDs {
		if r, ok := e.store.Get(id); ok {
			res.Records = append(res.Records, r.Clone())
		}
	}
	res.Took = e.cfg.Clock.Since(start)
	e.monitor.RecordSearch(res.Took, hit)
	e.log.Debugw("search",
		"request_id", res.RequestID,
		"client", clientKey,
		"total", res.TotalCount,
		"cached", hit,
		"strategy", plan.Strategy,
		"took", res.Took.String(),
	)
	return res, nil
}

// Get returns the record with the given id.
func (e *Engine) Get(id uint32) (Record, bool) {
	r, ok := e.store.Get(id)
	if !ok {
		return Record{}, false
	}
	return r.Clone(), true
}

// Genres lists every distinct genre, sorted.
func (e *Engine) Genres() []string {
	seen := make(map[string]string)
	e.store.ForEach(func(r Record) bool {
		for _, g := range r.Genres {
			key := utils.Fold(g)
			if _, ok := seen[key]; !ok {
				seen[key] = g
			}
		}
		return true
	})
	out := make([]string, 0, len(seen))
	for _, g := range seen {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Directors lists up to limit distinct directors whose name contains
// search, sorted by name. An empty search lists all of them.
func (e *Engine) Directors(search string, limit int) []string {
	needle := utils.Fold(search)
	seen := make(map[string]struct{})
	var out []string
	for i := range e.store.records {
		d := e.store.records[i].Director
		f := e.store.folded[i].director
		if d == "" || !strings.Contains(f, needle) {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// YearRange returns the earliest and latest release year.
func (e *Engine) YearRange() (lo, hi int, ok bool) {
	tree := e.idx.numeric[SortYear]
	minYear, ok := tree.Min()
	if !ok {
		return 0, 0, false
	}
	maxYear, _ := tree.Max()
	return int(minYear), int(maxYear), true
}

// ClearCache drops every cached result.
func (e *Engine) ClearCache() {
	if e.cache != nil {
		e.cache.Clear()
		e.log.Infow("cache cleared")
	}
}

func (e *Engine) Stats() Stats {
	st := Stats{
		Records:     e.store.Len(),
		Genres:      len(e.Genres()),
		Index:       e.idx.stats(),
		Performance: e.monitor.Snapshot(),
	}
	if e.cache != nil {
		st.Cache = e.cache.Stats()
	}
	if e.limiter != nil {
		st.RateLimiter = e.limiter.Stats()
	}
	return st
}
