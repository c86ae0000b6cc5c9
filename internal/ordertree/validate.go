package ordertree

import "fmt"

// Validate checks the tree's structure: parent links, AVL balance, order
// between nodes, cached sizes and anchor counters recomputed from
// scratch, and the element index.
func (t *Tree[T]) Validate() error {
	if t.root != nil && t.root.parent != nil {
		return fmt.Errorf("root has a parent")
	}
	count := 0
	var prev *node[T]
	var err error
	t.walk(t.root, func(n *node[T]) {
		if err != nil {
			return
		}
		err = t.checkNode(n, prev)
		prev = n
		count += n.elems.len()
	})
	if err != nil {
		return err
	}
	if count != len(t.index) {
		return fmt.Errorf("index holds %d elements, tree holds %d", len(t.index), count)
	}
	return nil
}

func (t *Tree[T]) checkNode(n, prev *node[T]) error {
	for _, c := range []*node[T]{n.left, n.right} {
		if c != nil && c.parent != n {
			return fmt.Errorf("broken parent link below %v", n.rep())
		}
	}
	if n.elems.len() == 0 {
		return fmt.Errorf("empty node")
	}
	if h := 1 + max(height(n.left), height(n.right)); n.height != h {
		return fmt.Errorf("node %v: height %d, want %d", n.rep(), n.height, h)
	}
	if bf := height(n.left) - height(n.right); bf < -1 || bf > 1 {
		return fmt.Errorf("node %v: balance factor %d", n.rep(), bf)
	}
	if s := n.elems.len() + size(n.left) + size(n.right); n.size != s {
		return fmt.Errorf("node %v: size %d, want %d", n.rep(), n.size, s)
	}
	if prev != nil && t.cmp(prev.rep(), n.rep()) >= 0 {
		return fmt.Errorf("nodes %v and %v out of order", prev.rep(), n.rep())
	}

	ranked := n.elems.rank()
	for i := 1; i < len(ranked); i++ {
		if t.tie(ranked[i-1], ranked[i]) >= 0 {
			return fmt.Errorf("node %v: ties %v and %v out of order", n.rep(), ranked[i-1], ranked[i])
		}
	}

	fwd, bwd := 0, 0
	for _, x := range ranked {
		if t.index[x] != n {
			return fmt.Errorf("element %v not indexed to its node", x)
		}
		if t.cmp(x, n.rep()) != 0 {
			return fmt.Errorf("element %v does not tie with %v", x, n.rep())
		}
		fwd += t.anchorCount(x, false)
		bwd += t.anchorCount(x, true)
	}
	if fwd != n.fwd || bwd != n.bwd {
		return fmt.Errorf("node %v: anchors %d/%d, want %d/%d", n.rep(), n.fwd, n.bwd, fwd, bwd)
	}
	subFwd, subBwd := fwd, bwd
	for _, c := range []*node[T]{n.left, n.right} {
		if c != nil {
			subFwd += c.subFwd
			subBwd += c.subBwd
		}
	}
	if subFwd != n.subFwd || subBwd != n.subBwd {
		return fmt.Errorf("node %v: subtree anchors %d/%d, want %d/%d", n.rep(), n.subFwd, n.subBwd, subFwd, subBwd)
	}
	return nil
}
