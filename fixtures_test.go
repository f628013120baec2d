package cinefusion

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/oarkflow/cinefusion/utils"
)

func movies() []Record {
	return []Record{
		{ID: 1, Title: "Avatar", Year: 2009, Genres: []string{"Action", "Sci-Fi"}, Rating: 7.9, Director: "James Cameron", Cast: []string{"Sam Worthington", "Zoe Saldana"}, Runtime: 178, Votes: 1000},
		{ID: 2, Title: "Avengers", Year: 2012, Genres: []string{"Action"}, Rating: 8.1, Director: "Joss Whedon", Cast: []string{"Robert Downey Jr.", "Chris Evans"}, Runtime: 173, Votes: 1500},
		{ID: 3, Title: "Batman Begins", Year: 2005, Genres: []string{"Action", "Crime"}, Rating: 8.2, Director: "Christopher Nolan", Cast: []string{"Christian Bale", "Michael Caine"}, Runtime: 140, Votes: 1200},
	}
}

var (
	titleWords = []string{"star", "dark", "night", "return", "the", "lost", "city", "river", "ghost", "iron", "amélie", "king", "empire", "storm", "silent", "garden"}
	genreNames = []string{"Action", "Drama", "Comedy", "Crime", "Sci-Fi", "Horror", "Romance"}
	directors  = []string{"Christopher Nolan", "Kathryn Bigelow", "Sofia Coppola", "Denis Villeneuve", "Greta Gerwig", "Bong Joon-ho"}
	actors     = []string{"Tilda Swinton", "Christian Bale", "Zoe Saldana", "Song Kang-ho", "Michael Caine", "Frances McDormand", "Oscar Isaac"}
)

// synthetic returns n reproducible records with ids 10, 20, 30, ...
func synthetic(n int, seed int64) []Record {
	rng := rand.New(rand.NewSource(seed))
	out := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		words := make([]string, 1+rng.Intn(3))
		for j := range words {
			words[j] = titleWords[rng.Intn(len(titleWords))]
		}
		title := strings.Join(words, " ")
		if rng.Intn(3) == 0 {
			title = strings.ToUpper(title[:1]) + title[1:]
		}
		rec := Record{
			ID:       uint32((i + 1) * 10),
			Title:    fmt.Sprintf("%s %d", title, i),
			Year:     1970 + rng.Intn(50),
			Rating:   float64(rng.Intn(101)) / 10,
			Director: directors[rng.Intn(len(directors))],
			Runtime:  80 + rng.Intn(100),
			Votes:    rng.Intn(5000),
		}
		for j := 0; j < 1+rng.Intn(2); j++ {
			rec.Genres = append(rec.Genres, genreNames[rng.Intn(len(genreNames))])
		}
		for j := 0; j < 2; j++ {
			rec.Cast = append(rec.Cast, actors[rng.Intn(len(actors))])
		}
		out = append(out, rec)
	}
	return out
}

func newTestEngine(t *testing.T, records []Record, opts ...Option) (*Engine, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	e, err := New(records, append([]Option{WithClock(mock)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, mock
}

// reference evaluates q by brute force over records.
func reference(t *testing.T, records []Record, q Query, defaultLimit, maxLimit int) ([]uint32, int) {
	t.Helper()
	nq, err := q.Normalize(defaultLimit, maxLimit)
	require.NoError(t, err)
	f := nq.Filters

	var hits []Record
	for _, r := range records {
		r = r.normalized()
		title := utils.Fold(r.Title)
		if nq.Text != "" {
			if nq.Mode == TextPrefix {
				ok := strings.HasPrefix(title, nq.Text)
				for _, ws := range utils.WordStarts(title) {
					ok = ok || strings.HasPrefix(title[ws:], nq.Text)
				}
				if !ok {
					continue
				}
			} else {
				fields := append([]string{r.Title, r.Director}, r.Cast...)
				fields = append(fields, r.Genres...)
				ok := false
				for _, s := range fields {
					ok = ok || strings.Contains(utils.Fold(s), nq.Text)
				}
				if !ok {
					continue
				}
			}
		}
		if !f.Rating.Contains(r.Rating) || !f.Year.Contains(r.Year) || !f.Runtime.Contains(r.Runtime) || !f.Votes.Contains(r.Votes) {
			continue
		}
		ok := true
		for _, g := range f.Genres {
			found := false
			for _, rg := range r.Genres {
				found = found || utils.Fold(rg) == g
			}
			ok = ok && found
		}
		if !ok {
			continue
		}
		if f.Director != "" && !strings.Contains(utils.Fold(r.Director), f.Director) {
			continue
		}
		if f.Actor != "" {
			found := false
			for _, c := range r.Cast {
				found = found || strings.Contains(utils.Fold(c), f.Actor)
			}
			if !found {
				continue
			}
		}
		hits = append(hits, r)
	}

	less := func(a, b Record) int {
		if nq.Sort == SortTitle {
			return strings.Compare(utils.Fold(a.Title), utils.Fold(b.Title))
		}
		ka, kb := numericKey(&a, nq.Sort), numericKey(&b, nq.Sort)
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		}
		return 0
	}
	sort.SliceStable(hits, func(i, j int) bool {
		c := less(hits[i], hits[j])
		if nq.Order == Desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		return hits[i].ID < hits[j].ID
	})

	ids := []uint32{}
	for i := nq.Offset; i < len(hits) && len(ids) < nq.Limit; i++ {
		ids = append(ids, hits[i].ID)
	}
	return ids, len(hits)
}

func titles(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Title
	}
	return out
}
