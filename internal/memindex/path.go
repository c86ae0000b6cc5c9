package memindex

import (
	"strings"

	"github.com/roach88/cdlcore/internal/idset"
)

// PathID identifies an interned attribute path. The root path is 0.
type PathID int32

// RootPath is the empty path.
const RootPath PathID = 0

type pathEntry struct {
	name     string
	full     string
	parent   PathID
	depth    int
	children map[string]PathID

	elements       idset.IntStorage
	selections     []*selection
	projections    []Listener
	valueListeners []ValueListener
}

func newPathTable() []*pathEntry {
	return []*pathEntry{{parent: -1, children: make(map[string]PathID)}}
}

// PathID interns path, creating every missing prefix.
func (x *Index) PathID(path string) PathID {
	id := RootPath
	if path == "" {
		return id
	}
	for _, seg := range strings.Split(path, ".") {
		id = x.Child(id, seg)
	}
	return id
}

// LookupPath returns the ID of an already interned path.
func (x *Index) LookupPath(path string) (PathID, bool) {
	id := RootPath
	if path == "" {
		return id, true
	}
	for _, seg := range strings.Split(path, ".") {
		next, ok := x.paths[id].children[seg]
		if !ok {
			return 0, false
		}
		id = next
	}
	return id, true
}

// Child interns the path attr directly below parent.
func (x *Index) Child(parent PathID, attr string) PathID {
	p := x.paths[parent]
	if id, ok := p.children[attr]; ok {
		return id
	}
	id := PathID(len(x.paths))
	full := attr
	if p.full != "" {
		full = p.full + "." + attr
	}
	x.paths = append(x.paths, &pathEntry{
		name:     attr,
		full:     full,
		parent:   parent,
		depth:    p.depth + 1,
		children: make(map[string]PathID),
	})
	p.children[attr] = id
	return id
}

// PathString returns the dotted form of path.
func (x *Index) PathString(path PathID) string {
	return x.paths[path].full
}

// ParentPath returns the path one level up, or false at the root.
func (x *Index) ParentPath(path PathID) (PathID, bool) {
	p := x.paths[path].parent
	return p, p >= 0
}

// IsPrefix reports whether prefix equals path or is one of its ancestors.
func (x *Index) IsPrefix(prefix, path PathID) bool {
	for path >= 0 {
		if path == prefix {
			return true
		}
		if x.paths[path].depth <= x.paths[prefix].depth {
			return false
		}
		path = x.paths[path].parent
	}
	return false
}

// stepToward returns the child of from lying on the way down to to.
// from must be a strict prefix of to.
func (x *Index) stepToward(from, to PathID) PathID {
	for x.paths[to].parent != from {
		to = x.paths[to].parent
	}
	return to
}
