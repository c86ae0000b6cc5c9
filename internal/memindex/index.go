package memindex

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/cdlcore/internal/idset"
	"github.com/roach88/cdlcore/internal/ir"
)

// ErrUnknownElement is returned for operations on element IDs the index
// does not hold.
var ErrUnknownElement = errors.New("unknown element")

// Listener receives element match deltas for a registration.
type Listener interface {
	AddIndexMatches(path PathID, ids []int64)
	RemoveIndexMatches(path PathID, ids []int64)
}

// ValueListener is told when the values of elements at a path change.
type ValueListener interface {
	IndexValuesChanged(path PathID, ids []int64)
}

type selection struct {
	values   ir.Value
	listener Listener
}

type element struct {
	id       int64
	parent   int64
	path     PathID
	value    ir.Value
	children map[PathID]*idset.IntStorage
}

// Index holds data elements and their registrations. It is not safe for
// concurrent use; all mutation happens within one update cycle.
type Index struct {
	paths    []*pathEntry
	elements map[int64]*element
	nextID   int64
}

// New returns an empty index. Element IDs are assigned from 1.
func New() *Index {
	return &Index{
		paths:    newPathTable(),
		elements: make(map[int64]*element),
		nextID:   1,
	}
}

// Len returns the number of elements.
func (x *Index) Len() int {
	return len(x.elements)
}

// AddElement creates an element at attr below parent and notifies the
// registrations at its path. A parent of 0 places the element at attr
// below the root path. attr may be dotted.
func (x *Index) AddElement(parent int64, attr string, value ir.Value) (int64, error) {
	base := RootPath
	var pe *element
	if parent != 0 {
		var ok bool
		if pe, ok = x.elements[parent]; !ok {
			return 0, fmt.Errorf("add below %d: %w", parent, ErrUnknownElement)
		}
		base = pe.path
	}
	path := base
	if attr != "" {
		path = x.PathID(joinPath(x.paths[base].full, attr))
	}
	if pe != nil && path == base {
		return 0, fmt.Errorf("add below %d: element path must extend %q", parent, x.paths[base].full)
	}

	id := x.nextID
	x.nextID++
	e := &element{id: id, parent: parent, path: path, value: value}
	x.elements[id] = e
	x.paths[path].elements.Add(id)
	if pe != nil {
		step := x.stepToward(base, path)
		if pe.children == nil {
			pe.children = make(map[PathID]*idset.IntStorage)
		}
		ch := pe.children[step]
		if ch == nil {
			ch = &idset.IntStorage{}
			pe.children[step] = ch
		}
		ch.Add(id)
	}

	slog.Debug("element added", "id", id, "path", x.paths[path].full)
	x.notifyAdd(path, []int64{id})
	return id, nil
}

func (x *Index) notifyAdd(path PathID, ids []int64) {
	p := x.paths[path]
	for _, l := range slices.Clone(p.projections) {
		l.AddIndexMatches(path, ids)
	}
	for _, s := range slices.Clone(p.selections) {
		if matched := x.filterMatching(ids, s.values); len(matched) > 0 {
			s.listener.AddIndexMatches(path, matched)
		}
	}
}

func (x *Index) notifyRemove(path PathID, ids []int64) {
	p := x.paths[path]
	for _, l := range slices.Clone(p.projections) {
		l.RemoveIndexMatches(path, ids)
	}
	for _, s := range slices.Clone(p.selections) {
		if matched := x.filterMatching(ids, s.values); len(matched) > 0 {
			s.listener.RemoveIndexMatches(path, matched)
		}
	}
}

func (x *Index) filterMatching(ids []int64, values ir.Value) []int64 {
	var out []int64
	for _, id := range ids {
		if ir.Matches(values, x.valueOf(id)) {
			out = append(out, id)
		}
	}
	return out
}

func (x *Index) valueOf(id int64) ir.Value {
	if e, ok := x.elements[id]; ok && e.value != nil {
		return e.value
	}
	return ir.Null{}
}

// RemoveElement removes id and its whole subtree.
func (x *Index) RemoveElement(id int64) error {
	e, ok := x.elements[id]
	if !ok {
		return fmt.Errorf("remove %d: %w", id, ErrUnknownElement)
	}

	var subtree []*element
	x.collect(e, &subtree)
	slices.SortStableFunc(subtree, func(a, b *element) int {
		if d := x.paths[b.path].depth - x.paths[a.path].depth; d != 0 {
			return d
		}
		return int(a.path) - int(b.path)
	})

	// Notify one path at a time, deepest first, before anything is deleted.
	for start := 0; start < len(subtree); {
		end := start
		var ids []int64
		for end < len(subtree) && subtree[end].path == subtree[start].path {
			ids = append(ids, subtree[end].id)
			end++
		}
		x.notifyRemove(subtree[start].path, ids)
		start = end
	}

	for _, d := range subtree {
		x.paths[d.path].elements.Remove(d.id)
		delete(x.elements, d.id)
	}
	if pe, ok := x.elements[e.parent]; ok {
		for _, ch := range pe.children {
			ch.Remove(id)
		}
	}
	slog.Debug("element removed", "id", id, "subtree", len(subtree))
	return nil
}

// collect appends e and its descendants in depth first order.
func (x *Index) collect(e *element, out *[]*element) {
	*out = append(*out, e)
	for _, step := range sortedPaths(e.children) {
		for _, cid := range idset.SortedIDs(e.children[step]) {
			x.collect(x.elements[cid], out)
		}
	}
}

func sortedPaths(m map[PathID]*idset.IntStorage) []PathID {
	out := make([]PathID, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// SetValue replaces the value of id, notifying selections whose match
// state changes and the value listeners of its path.
func (x *Index) SetValue(id int64, value ir.Value) error {
	e, ok := x.elements[id]
	if !ok {
		return fmt.Errorf("set value of %d: %w", id, ErrUnknownElement)
	}
	old := x.valueOf(id)
	e.value = value
	cur := x.valueOf(id)
	if ir.Equal(old, cur) {
		return nil
	}

	p := x.paths[e.path]
	ids := []int64{id}
	for _, s := range slices.Clone(p.selections) {
		was, is := ir.Matches(s.values, old), ir.Matches(s.values, cur)
		switch {
		case was && !is:
			s.listener.RemoveIndexMatches(e.path, ids)
		case !was && is:
			s.listener.AddIndexMatches(e.path, ids)
		}
	}
	for _, l := range slices.Clone(p.valueListeners) {
		l.IndexValuesChanged(e.path, ids)
	}
	return nil
}

// Value returns the value of id, or Null for an element without one.
func (x *Index) Value(id int64) (ir.Value, bool) {
	if _, ok := x.elements[id]; !ok {
		return nil, false
	}
	return x.valueOf(id), true
}

// ElementPath returns the path of id.
func (x *Index) ElementPath(id int64) (PathID, bool) {
	e, ok := x.elements[id]
	if !ok {
		return 0, false
	}
	return e.path, true
}

// Parent returns the parent of id, 0 for a top level element.
func (x *Index) Parent(id int64) int64 {
	if e, ok := x.elements[id]; ok {
		return e.parent
	}
	return 0
}

// Raise returns the ancestor of id (or id itself) at path, or 0 when id
// does not lie at or below path.
func (x *Index) Raise(id int64, path PathID) int64 {
	e, ok := x.elements[id]
	for ok {
		if e.path == path {
			return e.id
		}
		if x.paths[e.path].depth <= x.paths[path].depth {
			return 0
		}
		e, ok = x.elements[e.parent]
	}
	return 0
}

// Descendants returns the elements at path lying at or below id, in
// ascending ID order.
func (x *Index) Descendants(id int64, path PathID) []int64 {
	e, ok := x.elements[id]
	if !ok || !x.IsPrefix(e.path, path) {
		return nil
	}
	var out []int64
	x.descend(e, path, &out)
	slices.Sort(out)
	return out
}

func (x *Index) descend(e *element, path PathID, out *[]int64) {
	if e.path == path {
		*out = append(*out, e.id)
		return
	}
	ch := e.children[x.stepToward(e.path, path)]
	if ch == nil {
		return
	}
	ch.Each(func(cid int64) bool {
		x.descend(x.elements[cid], path, out)
		return true
	})
}

// GetAllMatches returns every element at path in ascending order.
func (x *Index) GetAllMatches(path PathID) []int64 {
	return idset.SortedIDs(&x.paths[path].elements)
}

// FilterDataNodesAtPath returns the ids that are elements at path.
func (x *Index) FilterDataNodesAtPath(path PathID, ids []int64) []int64 {
	kept, _ := x.FilterDataNodesAtPathWithDiff(path, ids)
	return kept
}

// FilterDataNodesAtPathWithDiff splits ids into those that are elements
// at path and those that are not.
func (x *Index) FilterDataNodesAtPathWithDiff(path PathID, ids []int64) (kept, dropped []int64) {
	for _, id := range ids {
		if e, ok := x.elements[id]; ok && e.path == path {
			kept = append(kept, id)
		} else {
			dropped = append(dropped, id)
		}
	}
	return kept, dropped
}

// RegisterSelection registers l for the elements at path matching
// values and returns the current matches.
func (x *Index) RegisterSelection(path PathID, values ir.Value, l Listener) []int64 {
	p := x.paths[path]
	p.selections = append(p.selections, &selection{values: values, listener: l})
	slog.Debug("selection registered", "path", p.full, "values", ir.Format(values))
	return x.filterMatching(idset.SortedIDs(&p.elements), values)
}

// UnregisterSelection drops a registration made with RegisterSelection.
// The listener is not notified.
func (x *Index) UnregisterSelection(path PathID, values ir.Value, l Listener) {
	p := x.paths[path]
	p.selections = slices.DeleteFunc(p.selections, func(s *selection) bool {
		return s.listener == l && ir.Equal(s.values, values)
	})
}

// RegisterProjection registers l for every element at path and returns
// the current elements.
func (x *Index) RegisterProjection(path PathID, l Listener) []int64 {
	p := x.paths[path]
	p.projections = append(p.projections, l)
	slog.Debug("projection registered", "path", p.full)
	return idset.SortedIDs(&p.elements)
}

// UnregisterProjection drops a registration made with RegisterProjection.
func (x *Index) UnregisterProjection(path PathID, l Listener) {
	p := x.paths[path]
	if i := slices.Index(p.projections, l); i >= 0 {
		p.projections = slices.Delete(p.projections, i, i+1)
	}
}

// HasProjection reports whether l holds a projection registration at path.
func (x *Index) HasProjection(path PathID, l Listener) bool {
	return slices.Contains(x.paths[path].projections, l)
}

// RegisterValues registers l for value changes at path.
func (x *Index) RegisterValues(path PathID, l ValueListener) {
	p := x.paths[path]
	p.valueListeners = append(p.valueListeners, l)
}

// UnregisterValues drops a registration made with RegisterValues.
func (x *Index) UnregisterValues(path PathID, l ValueListener) {
	p := x.paths[path]
	if i := slices.Index(p.valueListeners, l); i >= 0 {
		p.valueListeners = slices.Delete(p.valueListeners, i, i+1)
	}
}

func joinPath(base, rel string) string {
	if base == "" {
		return rel
	}
	return base + "." + rel
}
