package querycalc

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/cdlcore/internal/ir"
	"github.com/roach88/cdlcore/internal/memindex"
	"github.com/roach88/cdlcore/internal/queryir"
)

// SortKey orders elements by the value found at Path below them. An
// empty Path uses the element's own value.
type SortKey struct {
	Path       string `json:"path" yaml:"path"`
	Descending bool   `json:"descending,omitempty" yaml:"descending"`
}

// Comparison describes what to compare: a list of sort keys, tried in
// order. Elements missing a key's value sort after those that have one.
type Comparison struct {
	Keys []SortKey `json:"keys" yaml:"keys"`
}

func (c Comparison) canonical() []any {
	out := make([]any, len(c.Keys))
	for i, k := range c.Keys {
		out[i] = map[string]any{"path": k.Path, "desc": k.Descending}
	}
	return out
}

func (c Comparison) String() string {
	parts := make([]string, len(c.Keys))
	for i, k := range c.Keys {
		dir := "asc"
		if k.Descending {
			dir = "desc"
		}
		parts[i] = fmt.Sprintf("%s %s", k.Path, dir)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// CompCalc is a compiled Comparison. CompCalcs are shared through a
// CompCalcRegistry and reference counted with Allocate and Release.
//
// While a CompResult ordering consumers depend on is active on it, the
// calc watches the key paths below the compared elements and tells the
// result when values there change.
type CompCalc struct {
	reg        *CompCalcRegistry
	key        string
	comparison Comparison
	refs       int

	// Key paths resolved per element path.
	keyPaths map[memindex.PathID][]memindex.PathID

	// Activations per compared element path.
	active      map[memindex.PathID][]*CompResult
	subscribers []*CompResult
}

// Comparison returns the compiled comparison.
func (c *CompCalc) Comparison() Comparison { return c.comparison }

// Refs returns the reference count.
func (c *CompCalc) Refs() int { return c.refs }

// Allocate adds a reference.
func (c *CompCalc) Allocate() *CompCalc {
	c.refs++
	return c
}

// Release drops a reference. The last release removes the calc from its
// registry.
func (c *CompCalc) Release() {
	if c.refs--; c.refs > 0 {
		return
	}
	for path := range c.active {
		c.unwatch(path)
	}
	clear(c.active)
	c.subscribers = nil
	delete(c.reg.calcs, c.key)
}

// GetCompareFunc returns the comparator over element IDs. It returns 0
// for elements the comparison cannot tell apart.
func (c *CompCalc) GetCompareFunc() func(a, b int64) int {
	return c.compare
}

// GetRaisingFunc returns a function mapping an element to its ancestor
// at path, the elements this comparison applies to.
func (c *CompCalc) GetRaisingFunc(path memindex.PathID) func(int64) int64 {
	idx := c.reg.idx
	return func(id int64) int64 { return idx.Raise(id, path) }
}

func (c *CompCalc) compare(a, b int64) int {
	for i, k := range c.comparison.Keys {
		va, okA := c.keyValue(a, i)
		vb, okB := c.keyValue(b, i)
		var r int
		switch {
		case !okA && !okB:
		case !okA:
			r = 1
		case !okB:
			r = -1
		default:
			r = ir.Compare(va, vb)
			if k.Descending {
				r = -r
			}
		}
		if r != 0 {
			return r
		}
	}
	return 0
}

func (c *CompCalc) keyValue(id int64, key int) (ir.Value, bool) {
	idx := c.reg.idx
	path, ok := idx.ElementPath(id)
	if !ok {
		return nil, false
	}
	target := c.resolve(path)[key]
	holder := id
	if target != path {
		ds := idx.Descendants(id, target)
		if len(ds) == 0 {
			return nil, false
		}
		holder = ds[0]
	}
	v, ok := idx.Value(holder)
	if !ok || v.Kind() == ir.KindNull {
		return nil, false
	}
	return v, true
}

// resolve returns the absolute key paths for elements at path.
func (c *CompCalc) resolve(path memindex.PathID) []memindex.PathID {
	if paths, ok := c.keyPaths[path]; ok {
		return paths
	}
	idx := c.reg.idx
	base := idx.PathString(path)
	paths := make([]memindex.PathID, len(c.comparison.Keys))
	for i, k := range c.comparison.Keys {
		paths[i] = idx.PathID(queryir.JoinPath(base, k.Path))
	}
	c.keyPaths[path] = paths
	return paths
}

// activate starts watching the key paths below elements at path on
// behalf of r.
func (c *CompCalc) activate(path memindex.PathID, r *CompResult) {
	if slices.Contains(c.active[path], r) {
		return
	}
	c.active[path] = append(c.active[path], r)
	if !slices.Contains(c.subscribers, r) {
		c.subscribers = append(c.subscribers, r)
	}
	if len(c.active[path]) == 1 {
		c.watch(path)
	}
}

func (c *CompCalc) deactivate(path memindex.PathID, r *CompResult) {
	list := c.active[path]
	i := slices.Index(list, r)
	if i < 0 {
		return
	}
	list = slices.Delete(list, i, i+1)
	if len(list) == 0 {
		delete(c.active, path)
		c.unwatch(path)
	} else {
		c.active[path] = list
	}
	stillActive := false
	for _, l := range c.active {
		stillActive = stillActive || slices.Contains(l, r)
	}
	if !stillActive {
		c.subscribers = slices.DeleteFunc(c.subscribers, func(o *CompResult) bool { return o == r })
	}
}

func (c *CompCalc) watch(path memindex.PathID) {
	idx := c.reg.idx
	for _, p := range uniquePaths(c.resolve(path)) {
		idx.RegisterValues(p, c)
		if p != path {
			idx.RegisterProjection(p, c)
		}
	}
}

func (c *CompCalc) unwatch(path memindex.PathID) {
	idx := c.reg.idx
	for _, p := range uniquePaths(c.resolve(path)) {
		idx.UnregisterValues(p, c)
		if p != path {
			idx.UnregisterProjection(p, c)
		}
	}
}

func uniquePaths(paths []memindex.PathID) []memindex.PathID {
	out := slices.Clone(paths)
	slices.Sort(out)
	return slices.Compact(out)
}

// changed tells each subscribed result which of its compared elements
// own the key elements ids at path. A result is asked for a full refresh
// when a key element cannot be raised to its compared element.
func (c *CompCalc) changed(path memindex.PathID, ids []int64) {
	idx := c.reg.idx
	for _, r := range slices.Clone(c.subscribers) {
		at := r.activePath
		if !slices.Contains(c.resolve(at), path) {
			continue
		}
		compared := make([]int64, 0, len(ids))
		for _, id := range ids {
			if path != at {
				id = idx.Raise(id, at)
			}
			if id == 0 {
				compared = nil
				break
			}
			compared = append(compared, id)
		}
		r.valuesChanged(compared, compared == nil)
	}
}

// IndexValuesChanged implements memindex.ValueListener.
func (c *CompCalc) IndexValuesChanged(path memindex.PathID, ids []int64) { c.changed(path, ids) }

// AddIndexMatches implements memindex.Listener; key elements appearing
// change the order.
func (c *CompCalc) AddIndexMatches(path memindex.PathID, ids []int64) { c.changed(path, ids) }

// RemoveIndexMatches implements memindex.Listener. The indexer reports
// removals before it forgets the elements, so they can still be raised.
func (c *CompCalc) RemoveIndexMatches(path memindex.PathID, ids []int64) { c.changed(path, ids) }

// CompCalcRegistry shares compiled comparisons between results.
type CompCalcRegistry struct {
	idx   Indexer
	calcs map[string]*CompCalc
}

// NewCompCalcRegistry returns an empty registry compiling against idx.
func NewCompCalcRegistry(idx Indexer) *CompCalcRegistry {
	return &CompCalcRegistry{idx: idx, calcs: make(map[string]*CompCalc)}
}

// Allocate returns the compiled form of cmp with one more reference,
// compiling it if no result holds it yet.
func (r *CompCalcRegistry) Allocate(cmp Comparison) *CompCalc {
	key := ir.MustFingerprint(ir.DomainComparison, cmp.canonical())
	if c, ok := r.calcs[key]; ok {
		return c.Allocate()
	}
	c := &CompCalc{
		reg:        r,
		key:        key,
		comparison: Comparison{Keys: slices.Clone(cmp.Keys)},
		keyPaths:   make(map[memindex.PathID][]memindex.PathID),
		active:     make(map[memindex.PathID][]*CompResult),
	}
	r.calcs[key] = c
	return c.Allocate()
}

// Len returns the number of live compiled comparisons.
func (r *CompCalcRegistry) Len() int {
	return len(r.calcs)
}
