package interval

import (
	"fmt"
	"slices"

	"github.com/roach88/cdlcore/internal/idset"
)

type color bool

const (
	black color = false
	red   color = true
)

// node is one endpoint key of the tree. It holds every interval whose
// closed hull contains key and contains no key of an ancestor.
type node struct {
	key    float64
	color  color
	left   *node
	right  *node
	parent *node

	byLow  []Interval // ascending start
	byHigh []Interval // descending end
}

func isRed(n *node) bool {
	return n != nil && n.color == red
}

// spans reports whether key lies in iv's closed hull.
func spans(iv Interval, key float64) bool {
	return iv.Low <= key && key <= iv.High
}

func (n *node) add(iv Interval) {
	n.byLow, _ = idset.InsertSorted(n.byLow, iv, byLowThenID)
	n.byHigh, _ = idset.InsertSorted(n.byHigh, iv, byHighDescThenID)
}

func (n *node) remove(iv Interval) bool {
	var ok bool
	n.byLow, ok = idset.RemoveSorted(n.byLow, iv, byLowThenID)
	n.byHigh, _ = idset.RemoveSorted(n.byHigh, iv, byHighDescThenID)
	return ok
}

// Tree is a red-black tree keyed on interval endpoints. Every distinct
// endpoint ever inserted stays a key until Compact; each interval is
// stored at the highest node whose key lies in its hull.
//
// Not safe for concurrent use.
type Tree struct {
	root      *node
	keys      int
	intervals map[int64]Interval

	compactAfter int
	removed      int // since the last Compact
}

// NewTree returns an empty tree.
func NewTree(opts ...Option) *Tree {
	o := buildOptions(opts)
	return &Tree{intervals: make(map[int64]Interval), compactAfter: o.compactAfter}
}

// Len returns the number of stored intervals.
func (t *Tree) Len() int {
	return len(t.intervals)
}

// Keys returns the number of endpoint keys.
func (t *Tree) Keys() int {
	return t.keys
}

// Interval returns the stored interval with the given ID.
func (t *Tree) Interval(id int64) (Interval, bool) {
	iv, ok := t.intervals[id]
	return iv, ok
}

// Intervals returns all stored intervals ordered by start.
func (t *Tree) Intervals() []Interval {
	out := make([]Interval, 0, len(t.intervals))
	for _, iv := range t.intervals {
		out = append(out, iv)
	}
	slices.SortFunc(out, byLowThenID)
	return out
}

// InsertInterval stores iv.
func (t *Tree) InsertInterval(iv Interval) error {
	if err := iv.Check(); err != nil {
		return err
	}
	if _, ok := t.intervals[iv.ID]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateID, iv.ID)
	}
	t.ensureKey(iv.Low)
	t.ensureKey(iv.High)
	t.home(iv).add(iv)
	t.intervals[iv.ID] = iv
	return nil
}

// RemoveInterval deletes the interval with the given ID and reports
// whether it was present. Its endpoint keys remain.
func (t *Tree) RemoveInterval(id int64) bool {
	iv, ok := t.intervals[id]
	if !ok {
		return false
	}
	if !t.home(iv).remove(iv) {
		panic(&InvariantError{Op: "RemoveInterval", Detail: fmt.Sprintf("%s missing from its node", iv)})
	}
	delete(t.intervals, id)
	t.removed++
	if t.compactAfter > 0 && t.removed >= t.compactAfter {
		t.Compact()
	}
	return true
}

// Compact rebuilds the tree from the stored intervals, dropping endpoint
// keys no interval uses anymore.
func (t *Tree) Compact() {
	ivs := t.Intervals()
	*t = Tree{intervals: make(map[int64]Interval, len(ivs)), compactAfter: t.compactAfter}
	for _, iv := range ivs {
		t.ensureKey(iv.Low)
		t.ensureKey(iv.High)
	}
	for _, iv := range ivs {
		t.home(iv).add(iv)
		t.intervals[iv.ID] = iv
	}
}

// home returns the node an interval is stored at. Both endpoints must
// already be keys.
func (t *Tree) home(iv Interval) *node {
	n := t.root
	for n != nil {
		switch {
		case iv.High < n.key:
			n = n.left
		case iv.Low > n.key:
			n = n.right
		default:
			return n
		}
	}
	panic(&InvariantError{Op: "home", Detail: fmt.Sprintf("no key within %s", iv)})
}

// Find returns the IDs of intervals containing p, in ascending order.
func (t *Tree) Find(p float64) []int64 {
	var out []int64
	n := t.root
	for n != nil {
		switch {
		case p == n.key:
			for _, iv := range n.byLow {
				if ContainsPoint(iv, p) {
					out = append(out, iv.ID)
				}
			}
			n = nil
		case p < n.key:
			for _, iv := range n.byLow {
				if !startsBeforeEnd(iv.Low, iv.LowOpen, p, false) {
					break
				}
				out = append(out, iv.ID)
			}
			n = n.left
		default:
			for _, iv := range n.byHigh {
				if !startsBeforeEnd(p, false, iv.High, iv.HighOpen) {
					break
				}
				out = append(out, iv.ID)
			}
			n = n.right
		}
	}
	slices.Sort(out)
	return out
}

// FindIntersections returns the IDs of intervals overlapping rng, in
// ascending order.
func (t *Tree) FindIntersections(rng Interval) []int64 {
	var out []int64
	t.intersect(t.root, rng, func(iv Interval) {
		out = append(out, iv.ID)
	})
	slices.Sort(out)
	return out
}

func (t *Tree) intersect(n *node, rng Interval, emit func(Interval)) {
	for n != nil {
		switch {
		case rng.High < n.key:
			// every interval here ends at or after key, past rng
			for _, iv := range n.byLow {
				if !startsBeforeEnd(iv.Low, iv.LowOpen, rng.High, rng.HighOpen) {
					break
				}
				emit(iv)
			}
			n = n.left
		case rng.Low > n.key:
			for _, iv := range n.byHigh {
				if !startsBeforeEnd(rng.Low, rng.LowOpen, iv.High, iv.HighOpen) {
					break
				}
				emit(iv)
			}
			n = n.right
		default:
			for _, iv := range n.byLow {
				if Overlaps(iv, rng) {
					emit(iv)
				}
			}
			t.intersect(n.left, rng, emit)
			n = n.right
		}
	}
}

// FindContained returns the IDs of intervals lying entirely within rng,
// in ascending order.
func (t *Tree) FindContained(rng Interval) []int64 {
	var out []int64
	var walk func(n *node)
	walk = func(n *node) {
		for n != nil {
			switch {
			case n.key < rng.Low:
				n = n.right
			case n.key > rng.High:
				n = n.left
			default:
				for _, iv := range n.byLow {
					if Contains(rng, iv) {
						out = append(out, iv.ID)
					}
				}
				walk(n.left)
				n = n.right
			}
		}
	}
	walk(t.root)
	slices.Sort(out)
	return out
}

// FindWithUpperBound returns the IDs of intervals overlapping rng that end
// no later than (high, highOpen).
func (t *Tree) FindWithUpperBound(rng Interval, high float64, highOpen bool) []int64 {
	bound := Interval{High: high, HighOpen: highOpen}
	var out []int64
	t.intersect(t.root, rng, func(iv Interval) {
		if CompareHigh(iv, bound) <= 0 {
			out = append(out, iv.ID)
		}
	})
	slices.Sort(out)
	return out
}

// FindWithLowerBound returns the IDs of intervals overlapping rng that
// start no earlier than (low, lowOpen).
func (t *Tree) FindWithLowerBound(rng Interval, low float64, lowOpen bool) []int64 {
	bound := Interval{Low: low, LowOpen: lowOpen}
	var out []int64
	t.intersect(t.root, rng, func(iv Interval) {
		if CompareLow(iv, bound) >= 0 {
			out = append(out, iv.ID)
		}
	})
	slices.Sort(out)
	return out
}

// ensureKey adds k as a key if it is not one already.
func (t *Tree) ensureKey(k float64) {
	var parent *node
	x := t.root
	for x != nil {
		if k == x.key {
			return
		}
		parent = x
		if k < x.key {
			x = x.left
		} else {
			x = x.right
		}
	}
	z := &node{key: k, color: red, parent: parent}
	switch {
	case parent == nil:
		t.root = z
	case k < parent.key:
		parent.left = z
	default:
		parent.right = z
	}
	t.keys++
	t.insertFixup(z)
}

// insertFixup restores the red-black properties after inserting z.
func (t *Tree) insertFixup(z *node) {
	for isRed(z.parent) {
		gp := z.parent.parent
		if z.parent == gp.left {
			y := gp.right
			if isRed(y) {
				z.parent.color = black
				y.color = black
				gp.color = red
				z = gp
				continue
			}
			if z == z.parent.right {
				z = z.parent
				t.rotateLeft(z)
			}
			z.parent.color = black
			z.parent.parent.color = red
			t.rotateRight(z.parent.parent)
		} else {
			y := gp.left
			if isRed(y) {
				z.parent.color = black
				y.color = black
				gp.color = red
				z = gp
				continue
			}
			if z == z.parent.left {
				z = z.parent
				t.rotateRight(z)
			}
			z.parent.color = black
			z.parent.parent.color = red
			t.rotateLeft(z.parent.parent)
		}
	}
	t.root.color = black
}

// rotateLeft moves x so it is left of its right child.
func (t *Tree) rotateLeft(x *node) {
	y := x.right
	x.right = y.left
	if y.left != nil {
		y.left.parent = x
	}
	t.replaceChild(x, y)
	y.left = x
	x.parent = y
	rehome(x, y)
}

// rotateRight moves x so it is right of its left child.
func (t *Tree) rotateRight(x *node) {
	y := x.left
	x.left = y.right
	if y.right != nil {
		y.right.parent = x
	}
	t.replaceChild(x, y)
	y.right = x
	x.parent = y
	rehome(x, y)
}

// replaceChild puts y where x hangs from x's parent.
func (t *Tree) replaceChild(x, y *node) {
	y.parent = x.parent
	switch {
	case x.parent == nil:
		t.root = y
	case x == x.parent.left:
		x.parent.left = y
	default:
		x.parent.right = y
	}
}

// rehome moves the intervals of a demoted node whose hull contains the
// key of the node promoted above it. Nothing else changes home in a
// rotation.
func rehome(demoted, promoted *node) {
	var move []Interval
	for _, iv := range demoted.byLow {
		if spans(iv, promoted.key) {
			move = append(move, iv)
		}
	}
	for _, iv := range move {
		demoted.remove(iv)
		promoted.add(iv)
	}
}

// Stats summarizes how stored intervals are classified at their nodes.
// A node's span runs from the smallest to the largest key of its
// subtree. Intervals touching the node key are counted as Degenerate,
// LowEnd or HighEnd. The rest lie strictly across the key and are End
// when their high end is the span's upper edge, DontEnd otherwise.
type Stats struct {
	Keys       int `json:"keys"`
	Height     int `json:"height"`
	LowEnd     int `json:"low_end"`
	HighEnd    int `json:"high_end"`
	Degenerate int `json:"degenerate"`
	End        int `json:"end"`
	DontEnd    int `json:"dont_end"`
}

// Stats walks the tree and classifies every stored interval.
func (t *Tree) Stats() Stats {
	st := Stats{Keys: t.keys}
	// walk returns the largest key below n.
	var walk func(n *node, depth int) float64
	walk = func(n *node, depth int) float64 {
		st.Height = max(st.Height, depth)
		upper := n.key
		if n.left != nil {
			walk(n.left, depth+1)
		}
		if n.right != nil {
			upper = walk(n.right, depth+1)
		}
		for _, iv := range n.byLow {
			switch {
			case iv.IsPoint():
				st.Degenerate++
			case iv.Low == n.key:
				st.LowEnd++
			case iv.High == n.key:
				st.HighEnd++
			case iv.High == upper:
				st.End++
			default:
				st.DontEnd++
			}
		}
		return upper
	}
	if t.root != nil {
		walk(t.root, 1)
	}
	return st
}

// Validate checks the red-black properties, key order, parent links and
// interval placement.
func (t *Tree) Validate() error {
	if t.root == nil {
		if len(t.intervals) != 0 {
			return fmt.Errorf("empty tree holds %d intervals", len(t.intervals))
		}
		return nil
	}
	if t.root.color != black {
		return fmt.Errorf("root is red")
	}
	if t.root.parent != nil {
		return fmt.Errorf("root has a parent")
	}
	stored := 0
	var ancestors []float64
	var check func(n *node) (int, error)
	check = func(n *node) (int, error) {
		if n == nil {
			return 1, nil
		}
		if isRed(n) && (isRed(n.left) || isRed(n.right)) {
			return 0, fmt.Errorf("red node %v has a red child", n.key)
		}
		if n.left != nil && (n.left.parent != n || n.left.key >= n.key) {
			return 0, fmt.Errorf("bad left child under %v", n.key)
		}
		if n.right != nil && (n.right.parent != n || n.right.key <= n.key) {
			return 0, fmt.Errorf("bad right child under %v", n.key)
		}
		if len(n.byLow) != len(n.byHigh) {
			return 0, fmt.Errorf("node %v order lists differ in length", n.key)
		}
		if !slices.IsSortedFunc(n.byLow, byLowThenID) || !slices.IsSortedFunc(n.byHigh, byHighDescThenID) {
			return 0, fmt.Errorf("node %v order lists unsorted", n.key)
		}
		for _, iv := range n.byLow {
			if !spans(iv, n.key) {
				return 0, fmt.Errorf("%s stored at %v outside its hull", iv, n.key)
			}
			for _, a := range ancestors {
				if spans(iv, a) {
					return 0, fmt.Errorf("%s stored at %v below ancestor %v", iv, n.key, a)
				}
			}
			if t.intervals[iv.ID] != iv {
				return 0, fmt.Errorf("%s stored but not indexed", iv)
			}
			stored++
		}
		ancestors = append(ancestors, n.key)
		lh, err := check(n.left)
		if err != nil {
			return 0, err
		}
		rh, err := check(n.right)
		if err != nil {
			return 0, err
		}
		ancestors = ancestors[:len(ancestors)-1]
		if lh != rh {
			return 0, fmt.Errorf("black height mismatch under %v: %d vs %d", n.key, lh, rh)
		}
		if n.color == black {
			lh++
		}
		return lh, nil
	}
	if _, err := check(t.root); err != nil {
		return err
	}
	if stored != len(t.intervals) {
		return fmt.Errorf("%d intervals stored, %d indexed", stored, len(t.intervals))
	}
	return nil
}
