// Package ordertree maintains a dynamic order over a changing element set
// and keeps offset requirements on that order up to date.
//
// The tree is an AVL tree. Elements that compare equal under the tree's
// comparator share one node and are ordered there by a tie comparator,
// so the overall order is total. Every node caches its subtree size and
// the number of forward and backward anchors in its subtree, which makes
// At and Offset logarithmic in the number of nodes and in the size of
// the tie node, and lets requirement maintenance skip subtrees without
// anchors.
package ordertree

import "log/slog"

type node[T comparable] struct {
	left, right, parent *node[T]

	height int
	size   int
	elems  *ties[T]

	// Anchors on this node's elements and totals for the subtree.
	fwd, bwd       int
	subFwd, subBwd int
}

func (n *node[T]) rep() T {
	return n.elems.first()
}

func height[T comparable](n *node[T]) int {
	if n == nil {
		return 0
	}
	return n.height
}

func size[T comparable](n *node[T]) int {
	if n == nil {
		return 0
	}
	return n.size
}

func (n *node[T]) update() {
	n.height = 1 + max(height(n.left), height(n.right))
	n.size = n.elems.len() + size(n.left) + size(n.right)
	n.subFwd, n.subBwd = n.fwd, n.bwd
	if n.left != nil {
		n.subFwd += n.left.subFwd
		n.subBwd += n.left.subBwd
	}
	if n.right != nil {
		n.subFwd += n.right.subFwd
		n.subBwd += n.right.subBwd
	}
}

// Tree is an order maintaining tree. It is not safe for concurrent use.
type Tree[T comparable] struct {
	cmp  func(a, b T) int
	tie  func(a, b T) int
	root *node[T]

	index   map[T]*node[T]
	anchors map[T][]*AnchorRequirement[T]
	ranges  []*RangeRequirement[T]

	listener func(Event[T])
}

// Option configures a Tree.
type Option[T comparable] func(*Tree[T])

// WithRequirementListener sets the function told about requirement
// changes.
func WithRequirementListener[T comparable](fn func(Event[T])) Option[T] {
	return func(t *Tree[T]) {
		t.listener = fn
	}
}

// New returns an empty tree ordered by cmp. Elements for which cmp
// returns 0 are ordered among themselves by tie, which must be total.
func New[T comparable](cmp, tie func(a, b T) int, opts ...Option[T]) *Tree[T] {
	t := &Tree[T]{
		cmp:     cmp,
		tie:     tie,
		index:   make(map[T]*node[T]),
		anchors: make(map[T][]*AnchorRequirement[T]),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Len returns the number of elements.
func (t *Tree[T]) Len() int {
	return size(t.root)
}

// Has reports whether x is in the tree.
func (t *Tree[T]) Has(x T) bool {
	_, ok := t.index[x]
	return ok
}

// Insert adds x and reports whether it was not already present.
func (t *Tree[T]) Insert(x T) bool {
	if t.Has(x) {
		return false
	}
	t.insert(x)
	pos, _ := t.Offset(x)
	t.settle(x, pos, 1)
	return true
}

func (t *Tree[T]) insert(x T) {
	var parent *node[T]
	link := &t.root
	for *link != nil {
		parent = *link
		c := t.cmp(x, parent.rep())
		if c == 0 {
			parent.elems.add(x)
			parent.fwd += t.anchorCount(x, false)
			parent.bwd += t.anchorCount(x, true)
			t.index[x] = parent
			t.rebalanceFrom(parent)
			return
		}
		if c < 0 {
			link = &parent.left
		} else {
			link = &parent.right
		}
	}
	n := &node[T]{parent: parent, elems: newTies(t.tie, x)}
	n.fwd = t.anchorCount(x, false)
	n.bwd = t.anchorCount(x, true)
	*link = n
	t.index[x] = n
	t.rebalanceFrom(n)
}

// Remove deletes x and reports whether it was present. Removal locates
// the element through the tree's index, so it works even when x's
// comparison result has changed since insertion.
func (t *Tree[T]) Remove(x T) bool {
	if !t.Has(x) {
		return false
	}
	pos, _ := t.Offset(x)
	t.remove(x)
	t.settle(x, pos, -1)
	return true
}

func (t *Tree[T]) remove(x T) {
	n := t.index[x]
	delete(t.index, x)
	n.elems.remove(x)
	n.fwd -= t.anchorCount(x, false)
	n.bwd -= t.anchorCount(x, true)
	if n.elems.len() > 0 {
		t.rebalanceFrom(n)
		return
	}

	if n.left != nil && n.right != nil {
		s := n.right
		for s.left != nil {
			s = s.left
		}
		n.elems, s.elems = s.elems, n.elems
		n.fwd, s.fwd = s.fwd, n.fwd
		n.bwd, s.bwd = s.bwd, n.bwd
		for _, e := range n.elems.rank() {
			t.index[e] = n
		}
		n = s
	}
	child := n.left
	if child == nil {
		child = n.right
	}
	if child != nil {
		child.parent = n.parent
	}
	t.replaceChild(n.parent, n, child)
	t.rebalanceFrom(n.parent)
}

// Refresh replaces the comparator and rebuilds the order. Requirements are
// re-evaluated once the rebuild is complete.
func (t *Tree[T]) Refresh(cmp func(a, b T) int) {
	elems := t.Elements()
	t.cmp = cmp
	t.root = nil
	clear(t.index)
	for _, x := range elems {
		t.insert(x)
	}
	slog.Debug("order refreshed", "elements", len(elems))
	t.settleAll()
}

// Reposition moves the elements xs, whose comparison results may have
// changed, to their current place in the order. Elements not in the tree
// are ignored. The other elements must still compare as they did when
// they were inserted. Only requirements on offsets between the lowest and
// highest old or new position of a moved element are re-evaluated.
func (t *Tree[T]) Reposition(xs []T) {
	seen := make(map[T]bool, len(xs))
	moved := make([]T, 0, len(xs))
	lo, hi := t.Len(), -1
	for _, x := range xs {
		if seen[x] || !t.Has(x) {
			continue
		}
		seen[x] = true
		pos, _ := t.Offset(x)
		lo, hi = min(lo, pos), max(hi, pos)
		moved = append(moved, x)
	}
	if len(moved) == 0 {
		return
	}
	for _, x := range moved {
		t.remove(x)
	}
	for _, x := range moved {
		t.insert(x)
	}
	for _, x := range moved {
		pos, _ := t.Offset(x)
		lo, hi = min(lo, pos), max(hi, pos)
	}
	t.settleSpan(lo, hi+1)
}

// At returns the element at offset.
func (t *Tree[T]) At(offset int) (T, bool) {
	var zero T
	if offset < 0 || offset >= t.Len() {
		return zero, false
	}
	n := t.root
	for {
		ls := size(n.left)
		switch {
		case offset < ls:
			n = n.left
		case offset < ls+n.elems.len():
			return n.elems.at(offset - ls), true
		default:
			offset -= ls + n.elems.len()
			n = n.right
		}
	}
}

// Offset returns the position of x in the order.
func (t *Tree[T]) Offset(x T) (int, bool) {
	n, ok := t.index[x]
	if !ok {
		return -1, false
	}
	pos := size(n.left) + n.elems.index(x)
	for c, p := n, n.parent; p != nil; c, p = p, p.parent {
		if p.right == c {
			pos += size(p.left) + p.elems.len()
		}
	}
	return pos, true
}

// Elements returns every element in order.
func (t *Tree[T]) Elements() []T {
	out := make([]T, 0, t.Len())
	t.walk(t.root, func(n *node[T]) {
		out = append(out, n.elems.rank()...)
	})
	return out
}

// Range returns the elements at offsets [from, to).
func (t *Tree[T]) Range(from, to int) []T {
	from = max(from, 0)
	to = min(to, t.Len())
	if from >= to {
		return nil
	}
	out := make([]T, 0, to-from)
	t.collectRange(t.root, 0, from, to, &out)
	return out
}

func (t *Tree[T]) collectRange(n *node[T], base, from, to int, out *[]T) {
	if n == nil || base >= to || base+n.size <= from {
		return
	}
	t.collectRange(n.left, base, from, to, out)
	start := base + size(n.left)
	r := n.elems.rank()
	if lo, hi := max(from-start, 0), min(to-start, len(r)); lo < hi {
		*out = append(*out, r[lo:hi]...)
	}
	t.collectRange(n.right, start+len(r), from, to, out)
}

func (t *Tree[T]) walk(n *node[T], fn func(*node[T])) {
	if n == nil {
		return
	}
	t.walk(n.left, fn)
	fn(n)
	t.walk(n.right, fn)
}

func (t *Tree[T]) replaceChild(parent, old, repl *node[T]) {
	switch {
	case parent == nil:
		t.root = repl
	case parent.left == old:
		parent.left = repl
	default:
		parent.right = repl
	}
}

// rebalanceFrom restores the cached fields and the AVL balance on the way
// from n up to the root.
func (t *Tree[T]) rebalanceFrom(n *node[T]) {
	for n != nil {
		p := n.parent
		n.update()
		t.replaceChild(p, n, balance(n))
		n = p
	}
}

func balance[T comparable](n *node[T]) *node[T] {
	switch bf := height(n.left) - height(n.right); {
	case bf > 1:
		if height(n.left.left) < height(n.left.right) {
			n.left = rotateLeft(n.left)
		}
		return rotateRight(n)
	case bf < -1:
		if height(n.right.right) < height(n.right.left) {
			n.right = rotateRight(n.right)
		}
		return rotateLeft(n)
	default:
		return n
	}
}

func rotateLeft[T comparable](n *node[T]) *node[T] {
	r := n.right
	n.right = r.left
	if r.left != nil {
		r.left.parent = n
	}
	r.left = n
	r.parent = n.parent
	n.parent = r
	n.update()
	r.update()
	return r
}

func rotateRight[T comparable](n *node[T]) *node[T] {
	l := n.left
	n.left = l.right
	if l.right != nil {
		l.right.parent = n
	}
	l.right = n
	l.parent = n.parent
	n.parent = l
	n.update()
	l.update()
	return l
}
