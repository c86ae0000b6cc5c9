package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/cdlcore/internal/ir"
)

// Query is a node of a query tree.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	queryNode() // Marker method - seals interface to this package
	// NodePath returns the node's path relative to the data object.
	NodePath() string
}

// Select matches elements at Path whose value matches Values (see
// ir.Matches).
type Select struct {
	Path   string   `json:"path"`
	Values ir.Value `json:"-"`
}

// Project outputs the elements at Path.
type Project struct {
	Path string `json:"path"`
}

// And intersects its sub-queries at Path.
type And struct {
	Path string  `json:"path"`
	Subs []Query `json:"-"`
}

// Or unites its sub-queries at Path. It may not contain projections.
type Or struct {
	Path string  `json:"path"`
	Subs []Query `json:"-"`
}

func (Select) queryNode()  {}
func (Project) queryNode() {}
func (And) queryNode()     {}
func (Or) queryNode()      {}

func (q Select) NodePath() string  { return q.Path }
func (q Project) NodePath() string { return q.Path }
func (q And) NodePath() string     { return q.Path }
func (q Or) NodePath() string      { return q.Path }

// Subqueries returns the children of an And or Or, and nil otherwise.
func Subqueries(q Query) []Query {
	switch n := q.(type) {
	case And:
		return n.Subs
	case Or:
		return n.Subs
	default:
		return nil
	}
}

// Walk visits q and its sub-queries depth first, parents before children.
// Returning false from fn skips the node's children.
func Walk(q Query, fn func(q Query) bool) {
	if q == nil || !fn(q) {
		return
	}
	for _, sub := range Subqueries(q) {
		Walk(sub, fn)
	}
}

// HasProjection reports whether q contains a Project node.
func HasProjection(q Query) bool {
	found := false
	Walk(q, func(n Query) bool {
		if _, ok := n.(Project); ok {
			found = true
		}
		return !found
	})
	return found
}

// HasSelection reports whether q contains a Select node.
func HasSelection(q Query) bool {
	found := false
	Walk(q, func(n Query) bool {
		if _, ok := n.(Select); ok {
			found = true
		}
		return !found
	})
	return found
}

// JoinPath appends a relative path to a base path.
func JoinPath(base, rel string) string {
	switch {
	case base == "":
		return rel
	case rel == "":
		return base
	default:
		return base + "." + rel
	}
}

// Extends reports whether path equals prefix or lies below it.
func Extends(path, prefix string) bool {
	if prefix == "" || path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+".")
}

// Format renders q compactly, e.g. and(items){select(items.price=1), project(items.name)}.
func Format(q Query) string {
	switch n := q.(type) {
	case nil:
		return "<nil>"
	case Select:
		return fmt.Sprintf("select(%s=%s)", n.Path, ir.Format(n.Values))
	case Project:
		return fmt.Sprintf("project(%s)", n.Path)
	case And:
		return fmt.Sprintf("and(%s){%s}", n.Path, formatSubs(n.Subs))
	case Or:
		return fmt.Sprintf("or(%s){%s}", n.Path, formatSubs(n.Subs))
	default:
		return fmt.Sprintf("%T", q)
	}
}

func formatSubs(subs []Query) string {
	parts := make([]string, len(subs))
	for i, s := range subs {
		parts[i] = Format(s)
	}
	return strings.Join(parts, ", ")
}
