package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oarkflow/cinefusion"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	d := cinefusion.DefaultConfig()
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "localhost:8000", cfg.Server.Addr())
	assert.Equal(t, d.DefaultLimit, cfg.Search.DefaultLimit)
	assert.Equal(t, d.MaxLimit, cfg.Search.MaxLimit)
	assert.Equal(t, d.MaxSuggestions, cfg.Suggest.MaxLimit)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 100, cfg.RateLimit.Requests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, "SELECT * FROM movies", cfg.Database.Query)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cinefusion.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
server:
  port: 9090
data:
  path: /data/movies.json
search:
  max_limit: 50
suggest:
  stop_words: [the, a, of]
cache:
  enabled: false
rate_limit:
  requests: 3
  window: 1s
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/data/movies.json", cfg.Data.Path)
	assert.Equal(t, 50, cfg.Search.MaxLimit)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, []string{"the", "a", "of"}, cfg.Suggest.StopWords)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 3, cfg.RateLimit.Requests)
	assert.Equal(t, time.Second, cfg.RateLimit.Window)

	e, err := cinefusion.New([]cinefusion.Record{{ID: 1, Title: "The Thing"}}, cfg.EngineOptions()...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	st := e.Stats()
	assert.Equal(t, 3, st.RateLimiter.Limit)
	assert.Zero(t, st.Cache.Capacity)
}

func TestEngineOptions_EnglishStopWords(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Suggest.EnglishStopWords = true

	e, err := cinefusion.New([]cinefusion.Record{
		{ID: 1, Title: "Return of the King"},
		{ID: 2, Title: "The Thing"},
	}, cfg.EngineOptions()...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	assert.Equal(t, []string{"The Thing"}, e.Suggest("the", 10))
	assert.Equal(t, []string{"Return of the King"}, e.Suggest("king", 10))
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("CINEFUSION_SERVER_PORT", "7070")
	t.Setenv("CINEFUSION_CACHE_CAPACITY", "42")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 42, cfg.Cache.Capacity)
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search: [unterminated"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
