package pathtree

import (
	"slices"

	"github.com/roach88/cdlcore/internal/qualifier"
)

// NodeID addresses a node in its Tree's arena.
type NodeID int32

// NoNode is the parent of the root.
const NoNode NodeID = -1

// InheritStep records one class-inheritance step a path info came through.
type InheritStep struct {
	Class   string `json:"class"`
	Variant int    `json:"variant"`
}

// PathInfo is one candidate expression at a path, guarded by a clause.
type PathInfo struct {
	Expr Expr
	// Qualifiers stay sorted; Eliminated holds terms proven always true
	// and never shares a slot with Qualifiers.
	Qualifiers  qualifier.Clause
	Eliminated  qualifier.Clause
	Writable    bool
	Inheritance []InheritStep
	// Priority is the merge order. Among applicable candidates the
	// highest priority wins.
	Priority  int
	Discarded bool
}

// Node is one attribute path of a compiled object.
type Node struct {
	Attr     string
	Parent   NodeID
	Children map[string]NodeID
	Infos    []PathInfo
}

// Tree is an arena of path nodes. Node 0 is the root.
type Tree struct {
	nodes []Node
}

// NewTree returns a tree holding only the root.
func NewTree() *Tree {
	return &Tree{nodes: []Node{{Parent: NoNode, Children: map[string]NodeID{}}}}
}

// Root returns the root node ID.
func (t *Tree) Root() NodeID { return 0 }

// Len returns the number of nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// Node returns the node for id. The pointer is invalidated by Ensure.
func (t *Tree) Node(id NodeID) *Node {
	return &t.nodes[id]
}

// Child returns the child of id reached through attr.
func (t *Tree) Child(id NodeID, attr string) (NodeID, bool) {
	c, ok := t.nodes[id].Children[attr]
	return c, ok
}

// Ensure returns the node at path, creating missing nodes.
func (t *Tree) Ensure(path []string) NodeID {
	id := t.Root()
	for _, attr := range path {
		c, ok := t.nodes[id].Children[attr]
		if !ok {
			c = NodeID(len(t.nodes))
			t.nodes = append(t.nodes, Node{Attr: attr, Parent: id, Children: map[string]NodeID{}})
			t.nodes[id].Children[attr] = c
		}
		id = c
	}
	return id
}

// Lookup returns the node at path without creating it.
func (t *Tree) Lookup(path []string) (NodeID, bool) {
	id := t.Root()
	for _, attr := range path {
		c, ok := t.nodes[id].Children[attr]
		if !ok {
			return NoNode, false
		}
		id = c
	}
	return id, true
}

// Path returns the attribute path from the root to id.
func (t *Tree) Path(id NodeID) []string {
	var path []string
	for ; id != t.Root(); id = t.nodes[id].Parent {
		path = append(path, t.nodes[id].Attr)
	}
	slices.Reverse(path)
	return path
}

// Walk visits every node depth first, children in attribute order.
func (t *Tree) Walk(fn func(id NodeID, n *Node)) {
	var visit func(id NodeID)
	visit = func(id NodeID) {
		fn(id, &t.nodes[id])
		for _, attr := range sortedKeys(t.nodes[id].Children) {
			visit(t.nodes[id].Children[attr])
		}
	}
	visit(t.Root())
}

// AddInfo appends a candidate at id.
func (t *Tree) AddInfo(id NodeID, info PathInfo) {
	t.nodes[id].Infos = append(t.nodes[id].Infos, info)
}

// InfoCount returns the number of live candidates in the tree.
func (t *Tree) InfoCount() int {
	n := 0
	for i := range t.nodes {
		for _, info := range t.nodes[i].Infos {
			if !info.Discarded {
				n++
			}
		}
	}
	return n
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
