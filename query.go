package cinefusion

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/oarkflow/json"

	"github.com/oarkflow/cinefusion/utils"
)

type SortKey string

const (
	SortRating  SortKey = "rating"
	SortYear    SortKey = "year"
	SortRuntime SortKey = "runtime"
	SortVotes   SortKey = "votes"
	SortTitle   SortKey = "title"
)

// ParseSortKey accepts the sort keys by name. "duration" is kept as an
// alias of runtime; an empty string selects rating.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return SortRating, nil
	case SortRating, SortYear, SortRuntime, SortVotes, SortTitle:
		return k, nil
	case "duration":
		return SortRuntime, nil
	}
	return "", invalid("sort_by", s, "one of rating, year, runtime, votes, title")
}

type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return Desc, nil
	case Asc, Desc:
		return o, nil
	}
	return "", invalid("sort_order", s, "asc or desc")
}

// TextMode selects how Query.Text matches. Prefix matching uses the title
// index; contains matching scans title, director, cast and genres.
type TextMode string

const (
	TextPrefix   TextMode = "prefix"
	TextContains TextMode = "contains"
)

func ParseTextMode(s string) (TextMode, error) {
	switch m := TextMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return TextPrefix, nil
	case TextPrefix, TextContains:
		return m, nil
	}
	return "", invalid("mode", s, "prefix or contains")
}

// Range is an inclusive interval; a nil bound is open.
type Range[T int | float64] struct {
	Min *T `json:"min,omitempty"`
	Max *T `json:"max,omitempty"`
}

func AtLeast[T int | float64](v T) Range[T] { return Range[T]{Min: &v} }

func AtMost[T int | float64](v T) Range[T] { return Range[T]{Max: &v} }

func Between[T int | float64](lo, hi T) Range[T] { return Range[T]{Min: &lo, Max: &hi} }

func Exactly[T int | float64](v T) Range[T] { return Range[T]{Min: &v, Max: &v} }

func (r Range[T]) IsZero() bool { return r.Min == nil && r.Max == nil }

func (r Range[T]) Contains(v T) bool {
	return (r.Min == nil || v >= *r.Min) && (r.Max == nil || v <= *r.Max)
}

func (r Range[T]) check(field string) error {
	for _, b := range []*T{r.Min, r.Max} {
		if b != nil && math.IsNaN(float64(*b)) {
			return invalid(field, "NaN", "a number")
		}
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return invalid(field, fmt.Sprintf("[%v, %v]", *r.Min, *r.Max), "min not greater than max")
	}
	return nil
}

func (r Range[T]) float() Range[float64] {
	var out Range[float64]
	if r.Min != nil {
		v := float64(*r.Min)
		out.Min = &v
	}
	if r.Max != nil {
		v := float64(*r.Max)
		out.Max = &v
	}
	return out
}

// Filters is the closed set of record filters a Query may carry.
type Filters struct {
	Rating    Range[float64] `json:"rating"`
	Year      Range[int]     `json:"year"`
	Runtime   Range[int]     `json:"runtime"`
	Votes     Range[int]     `json:"votes"`
	Genres    []string       `json:"genres,omitempty"`
	Director  string         `json:"director,omitempty"`
	Actor     string         `json:"actor,omitempty"`
	Condition string         `json:"condition,omitempty"`
}

// ranges returns the numeric filters keyed by the sort key of the same
// attribute.
func (f Filters) ranges() map[SortKey]Range[float64] {
	out := make(map[SortKey]Range[float64], 4)
	if !f.Rating.IsZero() {
		out[SortRating] = f.Rating
	}
	if !f.Year.IsZero() {
		out[SortYear] = f.Year.float()
	}
	if !f.Runtime.IsZero() {
		out[SortRuntime] = f.Runtime.float()
	}
	if !f.Votes.IsZero() {
		out[SortVotes] = f.Votes.float()
	}
	return out
}

// exclusive lists parameter pairs that set the same field.
var exclusive = [][2]string{
	{"q", "query"},
	{"sort_by", "sort"},
	{"sort_order", "order"},
	{"year", "min_year"},
	{"year", "max_year"},
}

// checkParams rejects conflicting parameters and returns the keys in the
// order they are applied.
func checkParams(params map[string]string) ([]string, error) {
	for _, pair := range exclusive {
		_, a := params[pair[0]]
		_, b := params[pair[1]]
		if a && b {
			return nil, invalid(pair[0], nil, pair[0]+" or "+pair[1]+", not both")
		}
	}
	return slices.Sorted(maps.Keys(params)), nil
}

// ParseFilters builds Filters from string parameters such as URL query
// values. Unknown keys, malformed values and conflicting keys such as year
// with min_year are rejected.
func ParseFilters(params map[string]string) (Filters, error) {
	keys, err := checkParams(params)
	if err != nil {
		return Filters{}, err
	}
	var f Filters
	for _, key := range keys {
		if err := f.set(key, params[key]); err != nil {
			return Filters{}, err
		}
	}
	return f, nil
}

func (f *Filters) set(key, raw string) error {
	raw = strings.TrimSpace(raw)
	switch key {
	case "min_rating", "max_rating":
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) {
			return invalid(key, raw, "a number")
		}
		if key == "min_rating" {
			f.Rating.Min = &v
		} else {
			f.Rating.Max = &v
		}
	case "year", "min_year", "max_year", "min_runtime", "max_runtime", "min_votes", "max_votes":
		v, err := strconv.Atoi(raw)
		if err != nil {
			return invalid(key, raw, "an integer")
		}
		switch key {
		case "year":
			f.Year = Exactly(v)
		case "min_year":
			f.Year.Min = &v
		case "max_year":
			f.Year.Max = &v
		case "min_runtime":
			f.Runtime.Min = &v
		case "max_runtime":
			f.Runtime.Max = &v
		case "min_votes":
			f.Votes.Min = &v
		case "max_votes":
			f.Votes.Max = &v
		}
	case "genre", "genres":
		f.Genres = append(f.Genres, utils.SplitList(raw)...)
	case "director":
		f.Director = raw
	case "actor":
		f.Actor = raw
	case "condition":
		f.Condition = raw
	default:
		return invalid("filter", key, "a known filter name")
	}
	return nil
}

// Query is a structured search request.
type Query struct {
	Text    string    `json:"q"`
	Mode    TextMode  `json:"mode"`
	Filters Filters   `json:"filters"`
	Sort    SortKey   `json:"sort_by"`
	Order   SortOrder `json:"sort_order"`
	Offset  int       `json:"offset"`
	Limit   int       `json:"limit"`
}

// ParseQuery builds a Query from flat string parameters: q, mode, sort_by,
// sort_order, offset, limit and every key ParseFilters accepts. Aliases
// (query, sort, order) may not be combined with the names they stand for.
func ParseQuery(params map[string]string) (Query, error) {
	keys, err := checkParams(params)
	if err != nil {
		return Query{}, err
	}
	var q Query
	for _, key := range keys {
		raw := params[key]
		switch key {
		case "q", "query":
			q.Text = raw
		case "mode":
			q.Mode, err = ParseTextMode(raw)
		case "sort_by", "sort":
			q.Sort, err = ParseSortKey(raw)
		case "sort_order", "order":
			q.Order, err = ParseSortOrder(raw)
		case "offset", "limit":
			var v int
			v, err = strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				err = invalid(key, raw, "an integer")
			} else if key == "offset" {
				q.Offset = v
			} else {
				q.Limit = v
			}
		default:
			err = q.Filters.set(key, raw)
		}
		if err != nil {
			return Query{}, err
		}
	}
	return q, nil
}

// Normalize validates q and returns its canonical form: text and string
// filters folded, genres sorted and unique, defaults applied and
// pagination clamped.
func (q Query) Normalize(defaultLimit, maxLimit int) (Query, error) {
	var err error
	if q.Mode, err = ParseTextMode(string(q.Mode)); err != nil {
		return Query{}, err
	}
	if q.Sort, err = ParseSortKey(string(q.Sort)); err != nil {
		return Query{}, err
	}
	if q.Order, err = ParseSortOrder(string(q.Order)); err != nil {
		return Query{}, err
	}
	f := &q.Filters
	if err := f.Rating.check("rating"); err != nil {
		return Query{}, err
	}
	if err := f.Year.check("year"); err != nil {
		return Query{}, err
	}
	if err := f.Runtime.check("runtime"); err != nil {
		return Query{}, err
	}
	if err := f.Votes.check("votes"); err != nil {
		return Query{}, err
	}
	q.Text = utils.Fold(q.Text)
	f.Director = utils.Fold(f.Director)
	f.Actor = utils.Fold(f.Actor)
	f.Condition = strings.TrimSpace(f.Condition)
	genres := make([]string, 0, len(f.Genres))
	for _, g := range f.Genres {
		if g = utils.Fold(g); g != "" {
			genres = append(genres, g)
		}
	}
	slices.Sort(genres)
	f.Genres = slices.Compact(genres)
	if len(f.Genres) == 0 {
		f.Genres = nil
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	q.Limit = utils.Clamp(q.Limit, 1, maxLimit)
	return q, nil
}

// Signature is the cache key of a normalized query. Queries that differ
// only in parameter order, case or duplicate genres share a signature.
func (q Query) Signature() (string, error) {
	payload, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("marshaling canonical query: %w", err)
	}
	return string(payload), nil
}

// Checksum hashes the signature of a normalized query.
func (q Query) Checksum() (uint64, error) {
	sig, err := q.Signature()
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64String(sig), nil
}
