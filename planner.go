package cinefusion

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/oarkflow/filters"

	"github.com/oarkflow/cinefusion/avl"
)

const (
	// cancelCheckEvery is how many ids a scan visits between context checks.
	cancelCheckEvery = 1024
	// candidateRatio: text matches at or below 1/candidateRatio of the store
	// are filtered and sorted directly instead of streaming the sort index.
	candidateRatio = 8
)

// PlanResult is one page of matching ids plus the number of matches before
// pagination.
type PlanResult struct {
	IDs      []uint32 `json:"ids"`
	Total    int      `json:"total"`
	Strategy string   `json:"strategy"`
}

// Planner turns a Query into an ordered page of record ids.
type Planner struct {
	store        *Store
	idx          *indexes
	defaultLimit int
	maxLimit     int
}

func newPlanner(store *Store, idx *indexes, defaultLimit, maxLimit int) *Planner {
	return &Planner{store: store, idx: idx, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// Plan normalizes q and executes it.
func (p *Planner) Plan(ctx context.Context, q Query) (PlanResult, error) {
	nq, err := q.Normalize(p.defaultLimit, p.maxLimit)
	if err != nil {
		return PlanResult{}, err
	}
	return p.execute(ctx, nq)
}

type predicate func(r *Record, f *folded) bool

type compiled struct {
	q          Query
	bounds     Range[float64]
	candidates *roaring.Bitmap
	preds      []predicate
}

// compile splits q into the range scanned on the sort index and the
// residual predicates, cheapest first.
func (p *Planner) compile(q Query) (*compiled, error) {
	c := &compiled{q: q}
	ranges := q.Filters.ranges()
	c.bounds = ranges[q.Sort]
	delete(ranges, q.Sort)

	if q.Text != "" && q.Mode == TextPrefix {
		c.candidates = p.idx.titles.Candidates(q.Text)
	}
	for _, k := range []SortKey{SortRating, SortYear, SortRuntime, SortVotes} {
		if r, ok := ranges[k]; ok {
			c.preds = append(c.preds, rangePredicate(k, r))
		}
	}
	if len(q.Filters.Genres) > 0 {
		want := q.Filters.Genres
		c.preds = append(c.preds, func(_ *Record, f *folded) bool {
			for _, g := range want {
				if !containsString(f.genres, g) {
					return false
				}
			}
			return true
		})
	}
	if d := q.Filters.Director; d != "" {
		c.preds = append(c.preds, func(_ *Record, f *folded) bool {
			return strings.Contains(f.director, d)
		})
	}
	if a := q.Filters.Actor; a != "" {
		c.preds = append(c.preds, func(_ *Record, f *folded) bool {
			for _, name := range f.cast {
				if strings.Contains(name, a) {
					return true
				}
			}
			return false
		})
	}
	if q.Text != "" && q.Mode == TextContains {
		text := q.Text
		c.preds = append(c.preds, func(_ *Record, f *folded) bool {
			return f.contains(text)
		})
	}
	if q.Filters.Condition != "" {
		rule, err := filters.ParseSQL(q.Filters.Condition)
		if err != nil {
			return nil, &ValidationError{Field: "condition", Provided: q.Filters.Condition, Expected: fmt.Sprintf("a valid condition (%v)", err)}
		}
		if rule != nil {
			c.preds = append(c.preds, func(r *Record, _ *folded) bool {
				return rule.Match(r.Data())
			})
		}
	}
	return c, nil
}

func rangePredicate(k SortKey, r Range[float64]) predicate {
	return func(rec *Record, _ *folded) bool {
		return r.Contains(numericKey(rec, k))
	}
}

func numericKey(r *Record, k SortKey) float64 {
	switch k {
	case SortYear:
		return float64(r.Year)
	case SortRuntime:
		return float64(r.Runtime)
	case SortVotes:
		return float64(r.Votes)
	default:
		return r.Rating
	}
}

func containsString(set []string, s string) bool {
	i := sort.SearchStrings(set, s)
	return i < len(set) && set[i] == s
}

func (f *folded) contains(text string) bool {
	if strings.Contains(f.title, text) || strings.Contains(f.director, text) {
		return true
	}
	for _, c := range f.cast {
		if strings.Contains(c, text) {
			return true
		}
	}
	for _, g := range f.genres {
		if strings.Contains(g, text) {
			return true
		}
	}
	return false
}

func (c *compiled) match(r *Record, f *folded) bool {
	for _, pred := range c.preds {
		if !pred(r, f) {
			return false
		}
	}
	return true
}

// execute runs a normalized query.
func (p *Planner) execute(ctx context.Context, q Query) (PlanResult, error) {
	if err := ctx.Err(); err != nil {
		return PlanResult{}, err
	}
	c, err := p.compile(q)
	if err != nil {
		return PlanResult{}, err
	}
	if c.candidates != nil {
		if c.candidates.IsEmpty() {
			return PlanResult{IDs: []uint32{}, Strategy: "empty"}, nil
		}
		if int(c.candidates.GetCardinality())*candidateRatio <= p.store.Len() {
			return p.byCandidates(ctx, c)
		}
	}
	return p.byIndex(ctx, c)
}

// byIndex streams the sort index over the filtered range and applies the
// residual predicates to each id.
func (p *Planner) byIndex(ctx context.Context, c *compiled) (PlanResult, error) {
	pg := newPage(c.q.Offset, c.q.Limit)
	next := p.scan(c.q.Sort, c.bounds, c.q.Order)
	for n := 0; ; n++ {
		if n%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return PlanResult{}, err
			}
		}
		id, ok := next()
		if !ok {
			break
		}
		if c.candidates != nil && !c.candidates.Contains(id) {
			continue
		}
		slot, ok := p.store.slot(id)
		if !ok {
			continue
		}
		if c.match(&p.store.records[slot], &p.store.folded[slot]) {
			pg.add(id)
		}
	}
	return pg.result("index:" + string(c.q.Sort)), nil
}

func (p *Planner) scan(k SortKey, bounds Range[float64], order SortOrder) func() (uint32, bool) {
	o := avl.Asc
	if order == Desc {
		o = avl.Desc
	}
	if k == SortTitle {
		it := p.idx.byTitle.Range(nil, nil, o)
		return func() (uint32, bool) {
			id, _, ok := it.Next()
			return id, ok
		}
	}
	it := p.idx.numeric[k].Range(bounds.Min, bounds.Max, o)
	return func() (uint32, bool) {
		id, _, ok := it.Next()
		return id, ok
	}
}

// byCandidates filters a small text match set directly and sorts it the
// way the sort index would have yielded it.
func (p *Planner) byCandidates(ctx context.Context, c *compiled) (PlanResult, error) {
	type hit struct {
		id    uint32
		num   float64
		title string
	}
	hits := make([]hit, 0, c.candidates.GetCardinality())
	it := c.candidates.Iterator()
	for n := 0; it.HasNext(); n++ {
		if n%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return PlanResult{}, err
			}
		}
		id := it.Next()
		slot, ok := p.store.slot(id)
		if !ok {
			continue
		}
		r, f := &p.store.records[slot], &p.store.folded[slot]
		if c.q.Sort != SortTitle && !c.bounds.Contains(numericKey(r, c.q.Sort)) {
			continue
		}
		if c.match(r, f) {
			hits = append(hits, hit{id: id, num: numericKey(r, c.q.Sort), title: f.title})
		}
	}
	desc := c.q.Order == Desc
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if c.q.Sort == SortTitle {
			if a.title != b.title {
				return (a.title < b.title) != desc
			}
		} else if a.num != b.num {
			return (a.num < b.num) != desc
		}
		return a.id < b.id
	})
	pg := newPage(c.q.Offset, c.q.Limit)
	for _, h := range hits {
		pg.add(h.id)
	}
	return pg.result("candidates"), nil
}

// page keeps the ids in [offset, offset+limit) of a match stream and
// counts the whole stream.
type page struct {
	offset int
	limit  int
	total  int
	ids    []uint32
}

func newPage(offset, limit int) *page {
	return &page{offset: offset, limit: limit, ids: make([]uint32, 0, limit)}
}

func (pg *page) add(id uint32) {
	if pg.total >= pg.offset && len(pg.ids) < pg.limit {
		pg.ids = append(pg.ids, id)
	}
	pg.total++
}

func (pg *page) result(strategy string) PlanResult {
	return PlanResult{IDs: pg.ids, Total: pg.total, Strategy: strategy}
}
