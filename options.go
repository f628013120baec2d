package cinefusion

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Config holds the engine settings. DefaultConfig returns the values used
// when no Option overrides them.
type Config struct {
	DefaultLimit       int
	MaxLimit           int
	DefaultSuggestions int
	MaxSuggestions     int
	MaxPrefixLength    int
	StopWords          []string

	CacheEnabled       bool
	CacheCapacity      int
	CacheTTL           time.Duration
	CacheShards        int
	CacheSweepInterval time.Duration

	RateLimit         int
	RateWindow        time.Duration
	RateShards        int
	RateSweepInterval time.Duration
	RateStaleAfter    time.Duration

	Scorer Scorer
	Logger *zap.SugaredLogger
	Clock  clock.Clock
}

func DefaultConfig() Config {
	return Config{
		DefaultLimit:       10,
		MaxLimit:           100,
		DefaultSuggestions: 10,
		MaxSuggestions:     20,
		MaxPrefixLength:    100,
		CacheEnabled:       true,
		CacheCapacity:      1000,
		CacheTTL:           5 * time.Minute,
		CacheShards:        16,
		CacheSweepInterval: time.Minute,
		RateLimit:          100,
		RateWindow:         time.Minute,
		RateShards:         16,
		RateSweepInterval:  time.Minute,
		Scorer:             PopularityScorer,
		Logger:             zap.NewNop().Sugar(),
		Clock:              clock.New(),
	}
}

type Option func(*Config)

func WithLimits(defaultLimit, maxLimit int) Option {
	return func(c *Config) {
		if maxLimit > 0 {
			c.MaxLimit = maxLimit
		}
		if defaultLimit > 0 {
			c.DefaultLimit = defaultLimit
		}
	}
}

func WithSuggestionLimits(defaultLimit, maxLimit int) Option {
	return func(c *Config) {
		if maxLimit > 0 {
			c.MaxSuggestions = maxLimit
		}
		if defaultLimit > 0 {
			c.DefaultSuggestions = defaultLimit
		}
	}
}

// WithMaxPrefixLength bounds suggestion prefixes, in runes. Longer prefixes
// return no suggestions.
func WithMaxPrefixLength(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxPrefixLength = n
		}
	}
}

// WithStopWords keeps mid-title words such as "the" out of the suggestion
// index. Full titles are always indexed.
func WithStopWords(words ...string) Option {
	return func(c *Config) {
		c.StopWords = words
	}
}

func WithCache(capacity int, ttl time.Duration) Option {
	return func(c *Config) {
		c.CacheEnabled = capacity > 0
		c.CacheCapacity = capacity
		if ttl > 0 {
			c.CacheTTL = ttl
		}
	}
}

func WithoutCache() Option {
	return func(c *Config) {
		c.CacheEnabled = false
	}
}

func WithCacheShards(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.CacheShards = n
		}
	}
}

func WithCacheSweepInterval(d time.Duration) Option {
	return func(c *Config) {
		c.CacheSweepInterval = d
	}
}

// WithRateLimit admits at most limit searches per client within window.
// A limit of zero or less disables rate limiting.
func WithRateLimit(limit int, window time.Duration) Option {
	return func(c *Config) {
		c.RateLimit = limit
		if window > 0 {
			c.RateWindow = window
		}
	}
}

func WithRateShards(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.RateShards = n
		}
	}
}

// WithRateSweep sets how often idle clients are dropped and how long a
// client must be idle to be dropped.
func WithRateSweep(interval, staleAfter time.Duration) Option {
	return func(c *Config) {
		c.RateSweepInterval = interval
		c.RateStaleAfter = staleAfter
	}
}

func WithScorer(s Scorer) Option {
	return func(c *Config) {
		if s != nil {
			c.Scorer = s
		}
	}
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(clk clock.Clock) Option {
	return func(c *Config) {
		if clk != nil {
			c.Clock = clk
		}
	}
}
