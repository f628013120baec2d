package avl

import (
	"cmp"
	"fmt"

	"github.com/RoaringBitmap/roaring"
)

const nilNode int32 = -1

type Order int

const (
	Asc Order = iota
	Desc
)

// Tree is a height-balanced binary search tree mapping each distinct key to
// the set of record ids that carry it. Nodes are stored in a slice and
// addressed by index.
type Tree[K cmp.Ordered] struct {
	nodes []node[K]
	root  int32
	count int
}

type node[K cmp.Ordered] struct {
	key    K
	ids    *roaring.Bitmap
	left   int32
	right  int32
	height int8
}

func New[K cmp.Ordered]() *Tree[K] {
	return &Tree[K]{root: nilNode}
}

// Insert adds id under key. Adding an id already present under key is a
// no-op.
func (t *Tree[K]) Insert(key K, id uint32) {
	t.root = t.insert(t.root, key, id)
}

func (t *Tree[K]) insert(n int32, key K, id uint32) int32 {
	if n == nilNode {
		ids := roaring.New()
		ids.Add(id)
		t.nodes = append(t.nodes, node[K]{key: key, ids: ids, left: nilNode, right: nilNode, height: 1})
		t.count++
		return int32(len(t.nodes) - 1)
	}
	switch c := cmp.Compare(key, t.nodes[n].key); {
	case c < 0:
		l := t.insert(t.nodes[n].left, key, id)
		t.nodes[n].left = l
	case c > 0:
		r := t.insert(t.nodes[n].right, key, id)
		t.nodes[n].right = r
	default:
		if t.nodes[n].ids.CheckedAdd(id) {
			t.count++
		}
		return n
	}
	return t.rebalance(n)
}

func (t *Tree[K]) height(n int32) int8 {
	if n == nilNode {
		return 0
	}
	return t.nodes[n].height
}

func (t *Tree[K]) fix(n int32) {
	t.nodes[n].height = 1 + max(t.height(t.nodes[n].left), t.height(t.nodes[n].right))
}

func (t *Tree[K]) balance(n int32) int {
	return int(t.height(t.nodes[n].left)) - int(t.height(t.nodes[n].right))
}

func (t *Tree[K]) rotateRight(n int32) int32 {
	l := t.nodes[n].left
	t.nodes[n].left = t.nodes[l].right
	t.nodes[l].right = n
	t.fix(n)
	t.fix(l)
	return l
}

func (t *Tree[K]) rotateLeft(n int32) int32 {
	r := t.nodes[n].right
	t.nodes[n].right = t.nodes[r].left
	t.nodes[r].left = n
	t.fix(n)
	t.fix(r)
	return r
}

func (t *Tree[K]) rebalance(n int32) int32 {
	t.fix(n)
	switch b := t.balance(n); {
	case b > 1:
		if t.balance(t.nodes[n].left) < 0 {
			t.nodes[n].left = t.rotateLeft(t.nodes[n].left) // LR
		}
		return t.rotateRight(n) // LL
	case b < -1:
		if t.balance(t.nodes[n].right) > 0 {
			t.nodes[n].right = t.rotateRight(t.nodes[n].right) // RL
		}
		return t.rotateLeft(n) // RR
	}
	return n
}

// Get returns the ids stored under key. The bitmap must not be modified.
func (t *Tree[K]) Get(key K) (*roaring.Bitmap, bool) {
	n := t.root
	for n != nilNode {
		switch c := cmp.Compare(key, t.nodes[n].key); {
		case c < 0:
			n = t.nodes[n].left
		case c > 0:
			n = t.nodes[n].right
		default:
			return t.nodes[n].ids, true
		}
	}
	return nil, false
}

// Len is the number of distinct keys.
func (t *Tree[K]) Len() int { return len(t.nodes) }

// Count is the number of (key, id) pairs.
func (t *Tree[K]) Count() int { return t.count }

func (t *Tree[K]) Height() int { return int(t.height(t.root)) }

// Min and Max return the smallest and largest key.
func (t *Tree[K]) Min() (K, bool) {
	var zero K
	n := t.root
	if n == nilNode {
		return zero, false
	}
	for t.nodes[n].left != nilNode {
		n = t.nodes[n].left
	}
	return t.nodes[n].key, true
}

func (t *Tree[K]) Max() (K, bool) {
	var zero K
	n := t.root
	if n == nilNode {
		return zero, false
	}
	for t.nodes[n].right != nilNode {
		n = t.nodes[n].right
	}
	return t.nodes[n].key, true
}

// Validate checks ordering, stored heights and the balance factor of every
// node.
func (t *Tree[K]) Validate() error {
	_, err := t.validate(t.root, nil, nil)
	return err
}

func (t *Tree[K]) validate(n int32, lo, hi *K) (int8, error) {
	if n == nilNode {
		return 0, nil
	}
	nd := &t.nodes[n]
	if lo != nil && cmp.Compare(nd.key, *lo) <= 0 {
		return 0, fmt.Errorf("avl: key %v not greater than %v", nd.key, *lo)
	}
	if hi != nil && cmp.Compare(nd.key, *hi) >= 0 {
		return 0, fmt.Errorf("avl: key %v not less than %v", nd.key, *hi)
	}
	lh, err := t.validate(nd.left, lo, &nd.key)
	if err != nil {
		return 0, err
	}
	rh, err := t.validate(nd.right, &nd.key, hi)
	if err != nil {
		return 0, err
	}
	if d := int(lh) - int(rh); d < -1 || d > 1 {
		return 0, fmt.Errorf("avl: node %v unbalanced (%d)", nd.key, d)
	}
	h := 1 + max(lh, rh)
	if h != nd.height {
		return 0, fmt.Errorf("avl: node %v height %d, want %d", nd.key, nd.height, h)
	}
	if nd.ids.IsEmpty() {
		return 0, fmt.Errorf("avl: node %v has no ids", nd.key)
	}
	return h, nil
}

// Range walks the ids whose key lies in [lo, hi] in key order. A nil bound
// is open. Ids sharing a key come out ascending in either order.
func (t *Tree[K]) Range(lo, hi *K, order Order) *Iterator[K] {
	it := &Iterator[K]{t: t, lo: lo, hi: hi, desc: order == Desc}
	if lo != nil && hi != nil && cmp.Compare(*lo, *hi) > 0 {
		return it
	}
	it.descend(t.root)
	return it
}

func (t *Tree[K]) Ascend() *Iterator[K] { return t.Range(nil, nil, Asc) }

func (t *Tree[K]) Descend() *Iterator[K] { return t.Range(nil, nil, Desc) }

// Iterator is a single-use cursor over a Range.
type Iterator[K cmp.Ordered] struct {
	t     *Tree[K]
	lo    *K
	hi    *K
	desc  bool
	stack []int32
	cur   roaring.IntIterable
	key   K
}

// descend pushes the path towards the first in-range key below n, skipping
// subtrees that lie entirely outside the range.
func (it *Iterator[K]) descend(n int32) {
	for n != nilNode {
		nd := &it.t.nodes[n]
		if it.desc {
			if it.hi != nil && cmp.Compare(nd.key, *it.hi) > 0 {
				n = nd.left
				continue
			}
			it.stack = append(it.stack, n)
			n = nd.right
		} else {
			if it.lo != nil && cmp.Compare(nd.key, *it.lo) < 0 {
				n = nd.right
				continue
			}
			it.stack = append(it.stack, n)
			n = nd.left
		}
	}
}

// Next returns the next id and its key, or ok == false once the range is
// exhausted.
func (it *Iterator[K]) Next() (id uint32, key K, ok bool) {
	for {
		if it.cur != nil && it.cur.HasNext() {
			return it.cur.Next(), it.key, true
		}
		if len(it.stack) == 0 {
			it.cur = nil
			return 0, key, false
		}
		n := it.stack[len(it.stack)-1]
		it.stack = it.stack[:len(it.stack)-1]
		nd := &it.t.nodes[n]
		if it.desc {
			if it.lo != nil && cmp.Compare(nd.key, *it.lo) < 0 {
				it.stack = it.stack[:0]
				continue
			}
			it.descend(nd.left)
		} else {
			if it.hi != nil && cmp.Compare(nd.key, *it.hi) > 0 {
				it.stack = it.stack[:0]
				continue
			}
			it.descend(nd.right)
		}
		it.key = nd.key
		it.cur = nd.ids.Iterator()
	}
}
