package trie

import (
	"sort"

	"github.com/RoaringBitmap/roaring"

	"github.com/oarkflow/cinefusion/utils"
)

const DefaultTopK = 32

// EnglishStopWords are short function words that rarely start a useful
// mid-title suggestion. Pass them to WithStopWords to keep "the" in "Return
// of the King" from surfacing every title that contains it.
var EnglishStopWords = []string{
	"a", "an", "and", "as", "at", "by", "for", "from", "in", "is",
	"it", "of", "on", "or", "the", "to", "with",
}

// Trie is a case-folded prefix index over titles. Nodes live in a single
// slice and reference each other by index; a child always has a larger
// index than its parent.
type Trie struct {
	nodes     []node
	entries   []entry
	byID      map[uint32]int32
	stopWords map[string]struct{}
	topK      int
	keys      int
	sealed    bool
}

type edge struct {
	r     rune
	child int32
}

type node struct {
	edges    []edge // sorted by rune
	postings []int32
	top      []int32
}

type entry struct {
	id     uint32
	label  string
	weight float64
}

// Option configures a Trie.
type Option func(*Trie)

// WithTopK sets how many suggestions each node keeps precomputed by Seal.
func WithTopK(k int) Option {
	return func(t *Trie) {
		if k > 0 {
			t.topK = k
		}
	}
}

// WithStopWords skips mid-title entry points that begin with one of words.
// Full titles are indexed regardless.
func WithStopWords(words ...string) Option {
	return func(t *Trie) {
		t.stopWords = make(map[string]struct{}, len(words))
		for _, w := range words {
			if w = utils.Fold(w); w != "" {
				t.stopWords[w] = struct{}{}
			}
		}
	}
}

func New(opts ...Option) *Trie {
	t := &Trie{
		nodes: make([]node, 1, 1024),
		byID:  make(map[uint32]int32),
		topK:  DefaultTopK,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Insert indexes title under its folded form and under every suffix that
// starts at a word boundary, so "Batman Begins" is reachable from "bat" and
// from "beg". Inserting the same id again leaves the index unchanged.
func (t *Trie) Insert(title string, id uint32, weight float64) {
	key := utils.Fold(title)
	if key == "" {
		return
	}
	e, ok := t.byID[id]
	if !ok {
		e = int32(len(t.entries))
		t.entries = append(t.entries, entry{id: id, label: title, weight: weight})
		t.byID[id] = e
	}
	t.insertKey(key, e)
	for _, start := range utils.WordStarts(key) {
		if t.isStopWord(key[start:]) {
			continue
		}
		t.insertKey(key[start:], e)
	}
	t.sealed = false
}

func (t *Trie) insertKey(key string, e int32) {
	cur := int32(0)
	for _, r := range key {
		next, ok := t.child(cur, r)
		if !ok {
			next = int32(len(t.nodes))
			t.nodes = append(t.nodes, node{})
			n := &t.nodes[cur]
			i := sort.Search(len(n.edges), func(i int) bool { return n.edges[i].r >= r })
			n.edges = append(n.edges, edge{})
			copy(n.edges[i+1:], n.edges[i:])
			n.edges[i] = edge{r: r, child: next}
		}
		cur = next
	}
	n := &t.nodes[cur]
	for _, p := range n.postings {
		if p == e {
			return
		}
	}
	if len(n.postings) == 0 {
		t.keys++
	}
	n.postings = append(n.postings, e)
}

func (t *Trie) isStopWord(suffix string) bool {
	if len(t.stopWords) == 0 {
		return false
	}
	end := len(suffix)
	for i, r := range suffix {
		if !utils.IsWordRune(r) && r != '\'' {
			end = i
			break
		}
	}
	_, ok := t.stopWords[suffix[:end]]
	return ok
}

func (t *Trie) child(n int32, r rune) (int32, bool) {
	edges := t.nodes[n].edges
	i := sort.Search(len(edges), func(i int) bool { return edges[i].r >= r })
	if i < len(edges) && edges[i].r == r {
		return edges[i].child, true
	}
	return 0, false
}

func (t *Trie) find(key string) (int32, bool) {
	cur := int32(0)
	for _, r := range key {
		next, ok := t.child(cur, r)
		if !ok {
			return 0, false
		}
		cur = next
	}
	return cur, true
}

// Seal precomputes the best topK distinct titles below every node. Call it
// once after the last Insert; Suggest then costs O(len(prefix) + limit).
func (t *Trie) Seal() {
	for i := len(t.nodes) - 1; i >= 0; i-- {
		n := &t.nodes[i]
		cand := make([]int32, 0, len(n.postings)+len(n.edges)*t.topK)
		cand = append(cand, n.postings...)
		for _, e := range n.edges {
			cand = append(cand, t.nodes[e.child].top...)
		}
		n.top = t.rank(cand, t.topK)
	}
	t.sealed = true
}

// Suggest returns up to limit distinct titles reachable from prefix, by
// descending weight and then title. An unknown or empty prefix yields an
// empty slice.
func (t *Trie) Suggest(prefix string, limit int) []string {
	key := utils.Fold(prefix)
	if key == "" || limit <= 0 {
		return []string{}
	}
	n, ok := t.find(key)
	if !ok {
		return []string{}
	}
	var ranked []int32
	if t.sealed && limit <= t.topK {
		ranked = t.nodes[n].top
	} else {
		ranked = t.rank(t.collect(n), limit)
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]string, len(ranked))
	for i, e := range ranked {
		out[i] = t.entries[e].label
	}
	return out
}

// Candidates returns the ids of every title reachable from prefix.
func (t *Trie) Candidates(prefix string) *roaring.Bitmap {
	ids := roaring.New()
	key := utils.Fold(prefix)
	if key == "" {
		return ids
	}
	n, ok := t.find(key)
	if !ok {
		return ids
	}
	for _, e := range t.collect(n) {
		ids.Add(t.entries[e].id)
	}
	return ids
}

// collect gathers the distinct entries in the subtree rooted at n.
func (t *Trie) collect(n int32) []int32 {
	seen := make(map[int32]struct{})
	var out []int32
	stack := []int32{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range t.nodes[cur].postings {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				out = append(out, p)
			}
		}
		for _, e := range t.nodes[cur].edges {
			stack = append(stack, e.child)
		}
	}
	return out
}

// rank orders entries by weight desc, label asc, id asc and keeps the first
// occurrence of each label, up to limit.
func (t *Trie) rank(cand []int32, limit int) []int32 {
	sort.Slice(cand, func(i, j int) bool {
		a, b := &t.entries[cand[i]], &t.entries[cand[j]]
		if a.weight != b.weight {
			return a.weight > b.weight
		}
		if a.label != b.label {
			return a.label < b.label
		}
		return a.id < b.id
	})
	out := make([]int32, 0, min(limit, len(cand)))
	seen := make(map[string]struct{}, cap(out))
	for _, e := range cand {
		if len(out) == limit {
			break
		}
		if _, dup := seen[t.entries[e].label]; dup {
			continue
		}
		seen[t.entries[e].label] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Len is the number of distinct indexed keys.
func (t *Trie) Len() int { return t.keys }

// Nodes is the number of allocated nodes, the root included.
func (t *Trie) Nodes() int { return len(t.nodes) }

// Titles is the number of indexed titles.
func (t *Trie) Titles() int { return len(t.entries) }
