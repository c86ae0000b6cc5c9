package ordertree

import "slices"

// EventKind tells what a requirement event reports.
type EventKind int

const (
	// RangeChanged reports elements entering or leaving a range.
	RangeChanged EventKind = iota
	// AnchorMoved reports a new offset for an anchored element.
	AnchorMoved
)

func (k EventKind) String() string {
	switch k {
	case RangeChanged:
		return "range"
	case AnchorMoved:
		return "anchor"
	default:
		return "unknown"
	}
}

// Event is delivered to the tree's requirement listener.
type Event[T comparable] struct {
	Kind   EventKind
	Range  *RangeRequirement[T]
	Anchor *AnchorRequirement[T]

	// Added and Removed are set for RangeChanged.
	Added, Removed []T
	// Offset is set for AnchorMoved; -1 when the element left the tree.
	Offset int
}

// RangeRequirement tracks the elements at an offset range [From, To),
// counted from the start of the order or, with FromEnd, from its end.
type RangeRequirement[T comparable] struct {
	tree     *Tree[T]
	from, to int
	fromEnd  bool
	elems    []T
}

// AddRangeRequirement starts tracking the offsets [from, to).
func (t *Tree[T]) AddRangeRequirement(from, to int, fromEnd bool) *RangeRequirement[T] {
	r := &RangeRequirement[T]{tree: t, from: from, to: to, fromEnd: fromEnd}
	r.elems = r.compute()
	t.ranges = append(t.ranges, r)
	return r
}

// Elements returns the tracked elements in order.
func (r *RangeRequirement[T]) Elements() []T {
	return slices.Clone(r.elems)
}

// Bounds returns the tracked offsets.
func (r *RangeRequirement[T]) Bounds() (from, to int, fromEnd bool) {
	return r.from, r.to, r.fromEnd
}

// SetBounds moves the range, reporting the difference.
func (r *RangeRequirement[T]) SetBounds(from, to int) {
	r.from, r.to = from, to
	r.refresh()
}

// Release stops tracking the range.
func (r *RangeRequirement[T]) Release() {
	r.tree.ranges = slices.DeleteFunc(r.tree.ranges, func(o *RangeRequirement[T]) bool { return o == r })
}

func (r *RangeRequirement[T]) compute() []T {
	if !r.fromEnd {
		return r.tree.Range(r.from, r.to)
	}
	n := r.tree.Len()
	return r.tree.Range(n-r.to, n-r.from)
}

// affected reports whether a change at position pos, in a tree of n
// elements, can alter the range.
func (r *RangeRequirement[T]) affected(pos, n int) bool {
	if r.fromEnd {
		pos = n - 1 - pos
	}
	return pos < r.to
}

// overlaps reports whether the range covers any offset in [lo, hi) of a
// tree of n elements.
func (r *RangeRequirement[T]) overlaps(lo, hi, n int) bool {
	from, to := r.from, r.to
	if r.fromEnd {
		from, to = n-r.to, n-r.from
	}
	return from < hi && to > lo
}

func (r *RangeRequirement[T]) refresh() {
	next := r.compute()
	if slices.Equal(next, r.elems) {
		return
	}
	prev := make(map[T]bool, len(r.elems))
	for _, x := range r.elems {
		prev[x] = true
	}
	var added, removed []T
	for _, x := range next {
		if prev[x] {
			delete(prev, x)
		} else {
			added = append(added, x)
		}
	}
	for _, x := range r.elems {
		if prev[x] {
			removed = append(removed, x)
		}
	}
	r.elems = next
	r.tree.emit(Event[T]{Kind: RangeChanged, Range: r, Added: added, Removed: removed})
}

// AnchorRequirement tracks the offset of one element, counted from the
// start of the order or, when Backward, from its end.
type AnchorRequirement[T comparable] struct {
	tree     *Tree[T]
	elem     T
	backward bool
	offset   int
}

// AddAnchorRequirement starts tracking x, which need not be present yet.
func (t *Tree[T]) AddAnchorRequirement(x T, backward bool) *AnchorRequirement[T] {
	a := &AnchorRequirement[T]{tree: t, elem: x, backward: backward}
	t.anchors[x] = append(t.anchors[x], a)
	if n, ok := t.index[x]; ok {
		a.adjustNode(n, 1)
	}
	a.offset = a.compute()
	return a
}

// Element returns the anchored element.
func (a *AnchorRequirement[T]) Element() T {
	return a.elem
}

// Offset returns the element's offset, or false when it is not in the
// tree.
func (a *AnchorRequirement[T]) Offset() (int, bool) {
	return a.offset, a.offset >= 0
}

// Release stops tracking the element.
func (a *AnchorRequirement[T]) Release() {
	t := a.tree
	list := slices.DeleteFunc(t.anchors[a.elem], func(o *AnchorRequirement[T]) bool { return o == a })
	if len(list) == 0 {
		delete(t.anchors, a.elem)
	} else {
		t.anchors[a.elem] = list
	}
	if n, ok := t.index[a.elem]; ok {
		a.adjustNode(n, -1)
	}
}

func (a *AnchorRequirement[T]) adjustNode(n *node[T], d int) {
	if a.backward {
		n.bwd += d
	} else {
		n.fwd += d
	}
	for ; n != nil; n = n.parent {
		n.update()
	}
}

func (a *AnchorRequirement[T]) compute() int {
	pos, ok := a.tree.Offset(a.elem)
	if !ok {
		return -1
	}
	if a.backward {
		return a.tree.Len() - 1 - pos
	}
	return pos
}

func (a *AnchorRequirement[T]) refresh() {
	if off := a.compute(); off != a.offset {
		a.offset = off
		a.tree.emit(Event[T]{Kind: AnchorMoved, Anchor: a, Offset: off})
	}
}

func (t *Tree[T]) anchorCount(x T, backward bool) int {
	c := 0
	for _, a := range t.anchors[x] {
		if a.backward == backward {
			c++
		}
	}
	return c
}

func (t *Tree[T]) emit(ev Event[T]) {
	if t.listener != nil {
		t.listener(ev)
	}
}

// settle updates the requirements after x was inserted at pos (delta 1)
// or removed from pos (delta -1).
func (t *Tree[T]) settle(x T, pos, delta int) {
	n := t.Len()

	// Forward anchors after pos and backward anchors before it moved.
	fwdFrom := pos + 1
	if delta < 0 {
		fwdFrom = pos
	}
	moved := []T{x}
	collect := func(e T) { moved = append(moved, e) }
	t.visitAnchored(t.root, 0, fwdFrom, n, false, collect)
	t.visitAnchored(t.root, 0, 0, pos, true, collect)
	t.refreshAnchors(moved)

	size := n
	if delta < 0 {
		size = n + 1
	}
	for _, r := range slices.Clone(t.ranges) {
		if r.affected(pos, size) {
			r.refresh()
		}
	}
}

// settleSpan updates the requirements after elements moved within the
// offsets [lo, hi) without changing the tree's size. Offsets outside the
// span hold the same elements as before.
func (t *Tree[T]) settleSpan(lo, hi int) {
	var moved []T
	collect := func(e T) { moved = append(moved, e) }
	t.visitAnchored(t.root, 0, lo, hi, false, collect)
	t.visitAnchored(t.root, 0, lo, hi, true, collect)
	t.refreshAnchors(moved)

	n := t.Len()
	for _, r := range slices.Clone(t.ranges) {
		if r.overlaps(lo, hi, n) {
			r.refresh()
		}
	}
}

func (t *Tree[T]) refreshAnchors(elems []T) {
	seen := make(map[T]bool, len(elems))
	for _, e := range elems {
		if seen[e] {
			continue
		}
		seen[e] = true
		for _, a := range slices.Clone(t.anchors[e]) {
			a.refresh()
		}
	}
}

func (t *Tree[T]) settleAll() {
	for _, list := range t.anchors {
		for _, a := range slices.Clone(list) {
			a.refresh()
		}
	}
	for _, r := range slices.Clone(t.ranges) {
		r.refresh()
	}
}

// visitAnchored calls fn for every element at positions [lo, hi) carrying
// an anchor in the given direction, skipping subtrees without one.
func (t *Tree[T]) visitAnchored(n *node[T], base, lo, hi int, backward bool, fn func(T)) {
	if n == nil || base >= hi || base+n.size <= lo {
		return
	}
	if (backward && n.subBwd == 0) || (!backward && n.subFwd == 0) {
		return
	}
	t.visitAnchored(n.left, base, lo, hi, backward, fn)
	start := base + size(n.left)
	if (backward && n.bwd > 0) || (!backward && n.fwd > 0) {
		r := n.elems.rank()
		from, to := max(lo-start, 0), min(hi-start, len(r))
		for i := from; i < to; i++ {
			if t.anchorCount(r[i], backward) > 0 {
				fn(r[i])
			}
		}
	}
	t.visitAnchored(n.right, start+n.elems.len(), lo, hi, backward, fn)
}
