package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/oarkflow/cinefusion"
	"github.com/oarkflow/cinefusion/trie"
)

// Config holds all configuration of the cinefusion binary.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Data      DataConfig      `mapstructure:"data"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Search    SearchConfig    `mapstructure:"search"`
	Suggest   SuggestConfig   `mapstructure:"suggest"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type LogConfig struct {
	Level  string   `mapstructure:"level"`
	Output []string `mapstructure:"output"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DataConfig points at the dataset file. Format is inferred from the
// extension when empty.
type DataConfig struct {
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig is used instead of Data when Driver is set.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // mysql, postgres, sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Query    string `mapstructure:"query"`
}

type SearchConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

type SuggestConfig struct {
	DefaultLimit    int      `mapstructure:"default_limit"`
	MaxLimit        int      `mapstructure:"max_limit"`
	MaxPrefixLength int      `mapstructure:"max_prefix_length"`
	StopWords       []string `mapstructure:"stop_words"`

	// EnglishStopWords adds trie.EnglishStopWords to StopWords.
	EnglishStopWords bool `mapstructure:"english_stop_words"`
}

type CacheConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Capacity      int           `mapstructure:"capacity"`
	TTL           time.Duration `mapstructure:"ttl"`
	Shards        int           `mapstructure:"shards"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type RateLimitConfig struct {
	Requests      int           `mapstructure:"requests"`
	Window        time.Duration `mapstructure:"window"`
	Shards        int           `mapstructure:"shards"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
}

// Load reads path (yaml, json or toml) when set, then CINEFUSION_*
// environment variables, on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("cinefusion")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	d := cinefusion.DefaultConfig()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", []string{"stderr"})

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")

	v.SetDefault("data.path", "movie_metadata.csv")
	v.SetDefault("data.format", "")

	v.SetDefault("database.driver", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.username", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "")
	v.SetDefault("database.query", "SELECT * FROM movies")

	v.SetDefault("search.default_limit", d.DefaultLimit)
	v.SetDefault("search.max_limit", d.MaxLimit)

	v.SetDefault("suggest.default_limit", d.DefaultSuggestions)
	v.SetDefault("suggest.max_limit", d.MaxSuggestions)
	v.SetDefault("suggest.max_prefix_length", d.MaxPrefixLength)
	v.SetDefault("suggest.stop_words", []string{})
	v.SetDefault("suggest.english_stop_words", false)

	v.SetDefault("cache.enabled", d.CacheEnabled)
	v.SetDefault("cache.capacity", d.CacheCapacity)
	v.SetDefault("cache.ttl", d.CacheTTL)
	v.SetDefault("cache.shards", d.CacheShards)
	v.SetDefault("cache.sweep_interval", d.CacheSweepInterval)

	v.SetDefault("rate_limit.requests", d.RateLimit)
	v.SetDefault("rate_limit.window", d.RateWindow)
	v.SetDefault("rate_limit.shards", d.RateShards)
	v.SetDefault("rate_limit.sweep_interval", d.RateSweepInterval)
	v.SetDefault("rate_limit.stale_after", 3*d.RateWindow)
}

// EngineOptions maps the configuration onto engine options.
func (c *Config) EngineOptions() []cinefusion.Option {
	opts := []cinefusion.Option{
		cinefusion.WithLimits(c.Search.DefaultLimit, c.Search.MaxLimit),
		cinefusion.WithSuggestionLimits(c.Suggest.DefaultLimit, c.Suggest.MaxLimit),
		cinefusion.WithMaxPrefixLength(c.Suggest.MaxPrefixLength),
		cinefusion.WithRateLimit(c.RateLimit.Requests, c.RateLimit.Window),
		cinefusion.WithRateShards(c.RateLimit.Shards),
		cinefusion.WithRateSweep(c.RateLimit.SweepInterval, c.RateLimit.StaleAfter),
	}
	stopWords := c.Suggest.StopWords
	if c.Suggest.EnglishStopWords {
		stopWords = append(slices.Clone(stopWords), trie.EnglishStopWords...)
	}
	if len(stopWords) > 0 {
		opts = append(opts, cinefusion.WithStopWords(stopWords...))
	}
	if c.Cache.Enabled {
		opts = append(opts,
			cinefusion.WithCache(c.Cache.Capacity, c.Cache.TTL),
			cinefusion.WithCacheShards(c.Cache.Shards),
			cinefusion.WithCacheSweepInterval(c.Cache.SweepInterval),
		)
	} else {
		opts = append(opts, cinefusion.WithoutCache())
	}
	return opts
}
