package avl

import (
	"cmp"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pair struct {
	key int
	id  uint32
}

func drain[K cmp.Ordered](it *Iterator[K]) (ids []uint32, keys []K) {
	for {
		id, k, ok := it.Next()
		if !ok {
			return ids, keys
		}
		ids = append(ids, id)
		keys = append(keys, k)
	}
}

func ptr[T any](v T) *T { return &v }

func TestInsert_StaysBalanced(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tree := New[int]()
	for i := 0; i < 5000; i++ {
		tree.Insert(rng.Intn(2000), uint32(i))
		if i%250 == 0 {
			require.NoError(t, tree.Validate())
		}
	}
	require.NoError(t, tree.Validate())
	assert.Equal(t, 5000, tree.Count())
	limit := 1.45 * math.Log2(float64(tree.Len()+2))
	assert.LessOrEqual(t, float64(tree.Height()), limit)
}

func TestInsert_SequentialKeysRotate(t *testing.T) {
	tests := []struct {
		name   string
		keys   []int
		height int
	}{
		{"ascending", []int{1, 2, 3, 4, 5, 6, 7}, 3},
		{"descending", []int{7, 6, 5, 4, 3, 2, 1}, 3},
		{"zigzag", []int{10, 5, 7, 20, 15, 17, 1}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := New[int]()
			for i, k := range tt.keys {
				tree.Insert(k, uint32(i))
			}
			require.NoError(t, tree.Validate())
			assert.Equal(t, tt.height, tree.Height())
			_, keys := drain(tree.Ascend())
			assert.True(t, sort.IntsAreSorted(keys))
		})
	}
}

func TestInsert_DuplicatePairIsNoop(t *testing.T) {
	tree := New[float64]()
	tree.Insert(8.2, 3)
	tree.Insert(8.2, 3)
	tree.Insert(8.2, 1)
	assert.Equal(t, 1, tree.Len())
	assert.Equal(t, 2, tree.Count())
	ids, ok := tree.Get(8.2)
	require.True(t, ok)
	assert.Equal(t, []uint32{1, 3}, ids.ToArray())
	_, ok = tree.Get(1)
	assert.False(t, ok)
}

func TestRange_MatchesReference(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	tree := New[int]()
	var ref []pair
	for i := 0; i < 800; i++ {
		p := pair{key: rng.Intn(100), id: uint32(rng.Intn(10000))}
		if ids, ok := tree.Get(p.key); ok && ids.Contains(p.id) {
			continue
		}
		tree.Insert(p.key, p.id)
		ref = append(ref, p)
	}
	sort.Slice(ref, func(i, j int) bool {
		if ref[i].key != ref[j].key {
			return ref[i].key < ref[j].key
		}
		return ref[i].id < ref[j].id
	})

	bounds := []struct{ lo, hi *int }{
		{nil, nil},
		{ptr(10), ptr(20)},
		{nil, ptr(0)},
		{ptr(99), nil},
		{ptr(50), ptr(50)},
		{ptr(-5), ptr(200)},
		{ptr(101), nil},
	}
	for _, b := range bounds {
		var want []uint32
		var wantKeys []int
		for _, p := range ref {
			if (b.lo == nil || p.key >= *b.lo) && (b.hi == nil || p.key <= *b.hi) {
				want = append(want, p.id)
				wantKeys = append(wantKeys, p.key)
			}
		}
		ids, keys := drain(tree.Range(b.lo, b.hi, Asc))
		assert.Equal(t, want, ids)
		assert.Equal(t, wantKeys, keys)

		// descending walks keys backwards but keeps ids ascending per key
		var wantDesc []uint32
		for i := len(ref) - 1; i >= 0; {
			j := i
			for j >= 0 && ref[j].key == ref[i].key {
				j--
			}
			p := ref[i]
			if (b.lo == nil || p.key >= *b.lo) && (b.hi == nil || p.key <= *b.hi) {
				for k := j + 1; k <= i; k++ {
					wantDesc = append(wantDesc, ref[k].id)
				}
			}
			i = j
		}
		ids, _ = drain(tree.Range(b.lo, b.hi, Desc))
		assert.Equal(t, wantDesc, ids)
	}
}

func TestRange_Empty(t *testing.T) {
	tree := New[string]()
	ids, _ := drain(tree.Ascend())
	assert.Empty(t, ids)

	tree.Insert("avatar", 1)
	tree.Insert("batman begins", 2)
	ids, _ = drain(tree.Range(ptr("z"), ptr("a"), Asc))
	assert.Empty(t, ids)

	ids, keys := drain(tree.Descend())
	assert.Equal(t, []uint32{2, 1}, ids)
	assert.Equal(t, []string{"batman begins", "avatar"}, keys)
}

func TestRange_IsLazy(t *testing.T) {
	tree := New[int]()
	for i := 0; i < 1000; i++ {
		tree.Insert(i, uint32(i))
	}
	it := tree.Range(ptr(100), nil, Asc)
	id, key, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, uint32(100), id)
	assert.Equal(t, 100, key)
	// only the path to the current position is held
	assert.LessOrEqual(t, len(it.stack), tree.Height())
}

func TestMinMax(t *testing.T) {
	tree := New[float64]()
	_, ok := tree.Min()
	assert.False(t, ok)
	for i, k := range []float64{7.9, 8.1, 8.2, 1.5} {
		tree.Insert(k, uint32(i))
	}
	lo, _ := tree.Min()
	hi, _ := tree.Max()
	assert.Equal(t, 1.5, lo)
	assert.Equal(t, 8.2, hi)
}
