package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/oarkflow/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oarkflow/cinefusion"
)

const dataset = `[
  {"id": 1, "title": "Avatar", "year": 2009, "genres": "Action|Sci-Fi", "rating": 7.9, "votes": 1000},
  {"id": 2, "title": "Avengers", "year": 2012, "genres": "Action", "rating": 8.1, "votes": 1500},
  {"id": 3, "title": "Batman Begins", "year": 2005, "genres": "Action|Crime", "rating": 8.2, "votes": 1200}
]`

func execute(t *testing.T, args ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "movies.json")
	require.NoError(t, os.WriteFile(path, []byte(dataset), 0o600))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--data", path, "--log-level", "error"}, args...))
	require.NoError(t, cmd.Execute(), out.String())
	return out.String()
}

func TestSuggestCommand(t *testing.T) {
	assert.Equal(t, "Avengers\nAvatar\n", execute(t, "suggest", "av"))
	assert.Equal(t, "Avengers\n", execute(t, "suggest", "-n", "1", "AV"))
}

func TestSearchCommand(t *testing.T) {
	out := execute(t, "search", "min_rating=8", "sort_by=rating", "sort_order=desc")

	var res cinefusion.SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Records, 2)
	assert.Equal(t, "Batman Begins", res.Records[0].Title)
	assert.Equal(t, "Avengers", res.Records[1].Title)
	assert.Equal(t, 2, res.TotalCount)
}

func TestStatsCommand(t *testing.T) {
	var st cinefusion.Stats
	require.NoError(t, json.Unmarshal([]byte(execute(t, "stats")), &st))
	assert.Equal(t, 3, st.Records)
	assert.Equal(t, 3, st.Genres)
}

func TestParseKV(t *testing.T) {
	params, err := parseKV([]string{"q=dark knight", "genre=Drama", "genre=Crime", "condition=votes > 10"})
	require.NoError(t, err)
	assert.Equal(t, "dark knight", params["q"])
	assert.Equal(t, "Drama,Crime", params["genre"])
	assert.Equal(t, "votes > 10", params["condition"])

	_, err = parseKV([]string{"oops"})
	assert.Error(t, err)
}
