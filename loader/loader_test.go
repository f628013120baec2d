package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const moviesJSON = `[
  {"id": 1, "title": "Avatar", "year": 2009, "genres": ["Action", "Sci-Fi"], "rating": 7.9, "director": "James Cameron", "cast": ["Sam Worthington"], "runtime": 178, "votes": 1000},
  {"id": "2", "title": "Avengers", "year": "2012", "genres": "Action|Adventure", "rating": "8.1", "director": "Joss Whedon", "runtime": 173, "votes": 1500, "overview": "Earth's mightiest heroes."}
]`

const imdbCSV = "\ufeffcolor,director_name,duration,actor_2_name,genres,actor_1_name,movie_title,num_voted_users,actor_3_name,plot_keywords,title_year,imdb_score\n" +
	"Color,Christopher Nolan,140,Michael Caine,Action|Adventure,Christian Bale,Batman Begins ,1200,Liam Neeson,batman|bruce wayne,2005,8.2\n" +
	"Color,Sofia Coppola,102,Scarlett Johansson,Drama,Bill Murray,Lost in Translation,900,,tokyo,2003,7.7\n"

func TestFromJSON(t *testing.T) {
	records, err := FromJSON(context.Background(), strings.NewReader(moviesJSON))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, uint32(1), records[0].ID)
	assert.Equal(t, []string{"Action", "Sci-Fi"}, records[0].Genres)
	assert.Equal(t, 7.9, records[0].Rating)
	assert.Equal(t, []string{"Sam Worthington"}, records[0].Cast)

	assert.Equal(t, uint32(2), records[1].ID)
	assert.Equal(t, 2012, records[1].Year)
	assert.Equal(t, 8.1, records[1].Rating)
	assert.Equal(t, []string{"Action", "Adventure"}, records[1].Genres)
	assert.Equal(t, "Earth's mightiest heroes.", records[1].Plot)
}

func TestFromJSON_NotAnArray(t *testing.T) {
	_, err := FromJSON(context.Background(), strings.NewReader(`{"title": "x"}`))
	assert.Error(t, err)
}

func TestFromCSV_IMDBColumns(t *testing.T) {
	records, err := FromCSV(context.Background(), strings.NewReader(imdbCSV))
	require.NoError(t, err)
	require.Len(t, records, 2)

	b := records[0]
	assert.Equal(t, uint32(0), b.ID)
	assert.Equal(t, "Batman Begins", b.Title)
	assert.Equal(t, 2005, b.Year)
	assert.Equal(t, 140, b.Runtime)
	assert.Equal(t, 1200, b.Votes)
	assert.Equal(t, 8.2, b.Rating)
	assert.Equal(t, "Christopher Nolan", b.Director)
	assert.Equal(t, []string{"Action", "Adventure"}, b.Genres)
	assert.Equal(t, []string{"Christian Bale", "Michael Caine", "Liam Neeson"}, b.Cast)
	assert.Equal(t, "batman, bruce wayne", b.Plot)

	assert.Equal(t, uint32(1), records[1].ID)
	assert.Equal(t, []string{"Bill Murray", "Scarlett Johansson"}, records[1].Cast)
}

func TestSkipInvalid(t *testing.T) {
	data := `[{"title": "Good", "year": 2000}, {"title": "", "year": 2001}, {"title": "Bad year", "year": "soon"}, {"title": "Also good"}]`

	_, err := FromJSON(context.Background(), strings.NewReader(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")

	core, logs := observer.New(zap.WarnLevel)
	records, err := FromJSON(context.Background(), strings.NewReader(data),
		WithSkipInvalid(true), WithLogger(zap.New(core).Sugar()))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Good", records[0].Title)
	assert.Equal(t, uint32(0), records[0].ID)
	assert.Equal(t, uint32(3), records[1].ID)
	assert.Equal(t, 2, logs.FilterMessage("skipping invalid row").Len())
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "movies.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(moviesJSON), 0o600))
	csvPath := filepath.Join(dir, "movie_metadata.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(imdbCSV), 0o600))

	records, err := File(context.Background(), jsonPath, "")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = File(context.Background(), csvPath, "")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = File(context.Background(), csvPath, "xml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = File(context.Background(), filepath.Join(dir, "missing.json"), "")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFromStructs(t *testing.T) {
	type movie struct {
		MovieID  int      `json:"movie_id"`
		Name     string   `json:"name"`
		Duration int      `json:"duration"`
		Actors   []string `json:"actors"`
	}
	records, err := FromStructs(context.Background(), []movie{
		{MovieID: 9, Name: "Heat", Duration: 170, Actors: []string{"Al Pacino", "Robert De Niro"}},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint32(9), records[0].ID)
	assert.Equal(t, "Heat", records[0].Title)
	assert.Equal(t, 170, records[0].Runtime)
	assert.Equal(t, []string{"Al Pacino", "Robert De Niro"}, records[0].Cast)

	_, err = FromStructs(context.Background(), movie{})
	assert.Error(t, err)
}

func TestFromMap_Errors(t *testing.T) {
	_, err := FromMap(map[string]any{"id": -1, "title": "x"}, 0)
	assert.Error(t, err)
	_, err = FromMap(map[string]any{"id": "abc", "title": "x"}, 0)
	assert.Error(t, err)
	_, err = FromMap(map[string]any{"title": "x", "rating": "great"}, 0)
	assert.Error(t, err)
	_, err = FromMap(map[string]any{"year": 2000}, 0)
	assert.Error(t, err)
}

func TestFromDatabase_RequiresInput(t *testing.T) {
	_, err := FromDatabase(context.Background(), nil, "SELECT 1")
	assert.Error(t, err)
}
