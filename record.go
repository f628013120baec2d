package cinefusion

import (
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/oarkflow/cinefusion/utils"
)

// GenericRecord is the loosely typed form of a Record, used by free-form
// conditions and by loaders.
type GenericRecord map[string]any

// Record is one movie. Records are immutable once handed to the engine.
type Record struct {
	ID       uint32   `json:"id"`
	Title    string   `json:"title"`
	Year     int      `json:"year"`
	Genres   []string `json:"genres"`
	Rating   float64  `json:"rating"`
	Director string   `json:"director"`
	Cast     []string `json:"cast"`
	Runtime  int      `json:"runtime"`
	Votes    int      `json:"votes"`
	Plot     string   `json:"plot,omitempty"`
}

// Clone returns a copy that shares no slices with r.
func (r Record) Clone() Record {
	r.Genres = slices.Clone(r.Genres)
	r.Cast = slices.Clone(r.Cast)
	return r
}

// Data returns r keyed by its JSON field names.
func (r Record) Data() GenericRecord {
	return GenericRecord{
		"id":       r.ID,
		"title":    r.Title,
		"year":     r.Year,
		"genres":   strings.Join(r.Genres, "|"),
		"rating":   r.Rating,
		"director": r.Director,
		"cast":     strings.Join(r.Cast, "|"),
		"runtime":  r.Runtime,
		"votes":    r.Votes,
		"plot":     r.Plot,
	}
}

func (r Record) validate() string {
	switch {
	case strings.TrimSpace(r.Title) == "":
		return "empty title"
	case math.IsNaN(r.Rating) || r.Rating < 0 || r.Rating > 10:
		return "rating outside [0, 10]"
	case r.Year < 0:
		return "negative year"
	case r.Runtime < 0:
		return "negative runtime"
	case r.Votes < 0:
		return "negative votes"
	}
	return ""
}

// normalized trims text fields and turns Genres into a sorted set.
func (r Record) normalized() Record {
	r = r.Clone()
	r.Title = strings.TrimSpace(r.Title)
	r.Director = strings.TrimSpace(r.Director)
	r.Genres = dedupe(r.Genres)
	cast := r.Cast[:0]
	for _, c := range r.Cast {
		if c = strings.TrimSpace(c); c != "" {
			cast = append(cast, c)
		}
	}
	r.Cast = cast
	return r
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := utils.Fold(s)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// folded holds the matching form of a record's text fields.
type folded struct {
	title    string
	director string
	genres   []string
	cast     []string
}

// Store is the append-only record set. It is read-only once the engine is
// built.
type Store struct {
	records []Record
	folded  []folded
	byID    map[uint32]int
}

func NewStore(capacity int) *Store {
	return &Store{
		records: make([]Record, 0, capacity),
		folded:  make([]folded, 0, capacity),
		byID:    make(map[uint32]int, capacity),
	}
}

// Append validates r and adds it. i is the position of r in the input, used
// in the returned BuildError.
func (s *Store) Append(i int, r Record) error {
	if reason := r.validate(); reason != "" {
		return &BuildError{Index: i, ID: r.ID, Reason: reason}
	}
	if _, dup := s.byID[r.ID]; dup {
		return &BuildError{Index: i, ID: r.ID, Reason: "duplicate id"}
	}
	r = r.normalized()
	f := folded{
		title:    utils.Fold(r.Title),
		director: utils.Fold(r.Director),
		genres:   make([]string, len(r.Genres)),
		cast:     make([]string, len(r.Cast)),
	}
	for j, g := range r.Genres {
		f.genres[j] = utils.Fold(g)
	}
	sort.Strings(f.genres)
	for j, c := range r.Cast {
		f.cast[j] = utils.Fold(c)
	}
	s.byID[r.ID] = len(s.records)
	s.records = append(s.records, r)
	s.folded = append(s.folded, f)
	return nil
}

func (s *Store) Len() int { return len(s.records) }

// Get returns the record with the given id. The returned value shares its
// slices with the store; callers that hand it out must Clone it.
func (s *Store) Get(id uint32) (Record, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Record{}, false
	}
	return s.records[i], true
}

func (s *Store) slot(id uint32) (int, bool) {
	i, ok := s.byID[id]
	return i, ok
}

// ForEach visits records in insertion order until fn returns false.
func (s *Store) ForEach(fn func(r Record) bool) {
	for _, r := range s.records {
		if !fn(r) {
			return
		}
	}
}
