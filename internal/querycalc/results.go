package querycalc

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/cdlcore/internal/idset"
	"github.com/roach88/cdlcore/internal/memindex"
	"github.com/roach88/cdlcore/internal/ordertree"
)

// DataSource delivers every element the indexer holds at one path.
type DataSource struct {
	resultBase
	path memindex.PathID
}

// NewDataSource creates a source for the elements at path.
func (g *Graph) NewDataSource(path string) *DataSource {
	d := &DataSource{resultBase: g.newBase("data " + path), path: g.idx.PathID(path)}
	g.add(d)
	g.idx.RegisterProjection(d.path, d)
	return d
}

// IsMatchTransparent implements MatchSource.
func (d *DataSource) IsMatchTransparent() bool { return false }

// Matches implements MatchSource.
func (d *DataSource) Matches() []int64 { return d.g.idx.GetAllMatches(d.path) }

// MatchPath implements MatchSource.
func (d *DataSource) MatchPath() (memindex.PathID, bool) { return d.path, true }

// AddIndexMatches implements memindex.Listener.
func (d *DataSource) AddIndexMatches(_ memindex.PathID, ids []int64) {
	d.forwardAdd(ids)
}

// RemoveIndexMatches implements memindex.Listener.
func (d *DataSource) RemoveIndexMatches(_ memindex.PathID, ids []int64) {
	d.forwardRemove(ids)
}

func (d *DataSource) dataObjChanged() {}

func (d *DataSource) release() {
	d.g.idx.UnregisterProjection(d.path, d)
}

// TranslateResult maps its data object's element IDs into the ID space
// of a merged view.
type TranslateResult struct {
	resultBase
	tr memindex.Translation
}

// NewTranslateResult creates a result translating IDs with tr.
func (g *Graph) NewTranslateResult(tr memindex.Translation) *TranslateResult {
	t := &TranslateResult{resultBase: g.newBase("translate"), tr: tr}
	g.add(t)
	return t
}

// IsMatchTransparent implements MatchSource.
func (t *TranslateResult) IsMatchTransparent() bool { return false }

// Matches implements MatchSource.
func (t *TranslateResult) Matches() []int64 { return t.translate(t.dataMatches()) }

// MatchPath implements MatchSource.
func (t *TranslateResult) MatchPath() (memindex.PathID, bool) {
	if src := t.data(); src != nil {
		return src.MatchPath()
	}
	return 0, false
}

// CompInfo implements OrderingSource.
func (t *TranslateResult) CompInfo() *CompInfo {
	return t.dataCompInfo().translated(t.tr)
}

func (t *TranslateResult) translate(ids []int64) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = t.tr.Translate(id)
	}
	return sortIDs(out)
}

// AddMatches implements MatchConsumer.
func (t *TranslateResult) AddMatches(ids []int64, _ ResultID) {
	t.forwardAdd(t.translate(ids))
}

// RemoveMatches implements MatchConsumer.
func (t *TranslateResult) RemoveMatches(ids []int64, _ ResultID) {
	t.forwardRemove(t.translate(ids))
}

// RemoveAllMatches implements MatchConsumer.
func (t *TranslateResult) RemoveAllMatches(_ ResultID) {
	t.forwardClear()
}

func (t *TranslateResult) dataObjChanged() {
	t.forwardClear()
	t.forwardAdd(t.Matches())
}

func (t *TranslateResult) release() {}

// OrderedResult keeps its data object's matches in the order the
// CompResults above it define, and serves offset ranges and anchors
// over that order.
type OrderedResult struct {
	resultBase
	tree *ordertree.Tree[int64]
}

// NewOrderedResult creates an ordered consumer. opts configure the
// underlying tree, e.g. its requirement listener.
func (g *Graph) NewOrderedResult(opts ...ordertree.Option[int64]) *OrderedResult {
	o := &OrderedResult{resultBase: g.newBase("ordered")}
	o.tree = ordertree.New(o.compare(), cmp.Compare[int64], opts...)
	g.add(o)
	return o
}

func (o *OrderedResult) compare() func(a, b int64) int {
	return o.dataCompInfo().PartialCompareFunc()
}

// Len returns the number of ordered elements.
func (o *OrderedResult) Len() int { return o.tree.Len() }

// Elements returns the elements in order.
func (o *OrderedResult) Elements() []int64 { return o.tree.Elements() }

// Range returns the elements at offsets [from, to).
func (o *OrderedResult) Range(from, to int) []int64 { return o.tree.Range(from, to) }

// Offset returns the offset of id.
func (o *OrderedResult) Offset(id int64) (int, bool) { return o.tree.Offset(id) }

// Matches returns the ordered elements in ID order.
func (o *OrderedResult) Matches() []int64 { return sortIDs(o.tree.Elements()) }

// IsMatchTransparent implements MatchSource.
func (o *OrderedResult) IsMatchTransparent() bool { return true }

// MatchPath implements MatchSource.
func (o *OrderedResult) MatchPath() (memindex.PathID, bool) {
	if src := o.data(); src != nil {
		return src.MatchPath()
	}
	return 0, false
}

// CompInfo implements OrderingSource. The order is the one it maintains.
func (o *OrderedResult) CompInfo() *CompInfo { return o.dataCompInfo() }

// AddRangeRequirement tracks the elements at offsets [from, to).
func (o *OrderedResult) AddRangeRequirement(from, to int, fromEnd bool) *ordertree.RangeRequirement[int64] {
	return o.tree.AddRangeRequirement(from, to, fromEnd)
}

// AddAnchorRequirement tracks the offset of id.
func (o *OrderedResult) AddAnchorRequirement(id int64, backward bool) *ordertree.AnchorRequirement[int64] {
	return o.tree.AddAnchorRequirement(id, backward)
}

// Validate checks the tree invariants.
func (o *OrderedResult) Validate() error { return o.tree.Validate() }

// RefreshOrdering implements OrderingConsumer.
func (o *OrderedResult) RefreshOrdering() {
	o.tree.Refresh(o.compare())
}

// RepositionElements implements Repositioner. When elements are raised
// or translated before being compared, ids do not name tree elements and
// the whole order is rebuilt instead.
func (o *OrderedResult) RepositionElements(ids []int64) {
	if !o.dataCompInfo().direct() {
		o.g.metrics.OrderingRefreshes.Inc()
		o.RefreshOrdering()
		return
	}
	o.g.metrics.Repositions.Add(float64(len(ids)))
	o.tree.Reposition(ids)
}

// AddMatches implements MatchConsumer.
func (o *OrderedResult) AddMatches(ids []int64, _ ResultID) {
	for _, id := range ids {
		o.tree.Insert(id)
	}
	o.forwardAdd(ids)
}

// RemoveMatches implements MatchConsumer.
func (o *OrderedResult) RemoveMatches(ids []int64, _ ResultID) {
	removed := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !o.tree.Remove(id) {
			o.g.log.Warn("ordered remove of unknown element", "result", o.name, "id", id)
			continue
		}
		removed = append(removed, id)
	}
	o.forwardRemove(removed)
}

// RemoveAllMatches implements MatchConsumer.
func (o *OrderedResult) RemoveAllMatches(_ ResultID) {
	for _, id := range o.tree.Elements() {
		o.tree.Remove(id)
	}
	o.forwardClear()
}

func (o *OrderedResult) dataObjChanged() {
	o.tree.Refresh(o.compare())
	want := o.dataMatches()
	removed, added := diffSorted(o.Matches(), want)
	for _, id := range removed {
		o.tree.Remove(id)
	}
	for _, id := range added {
		o.tree.Insert(id)
	}
	if len(removed) > 0 {
		o.forwardRemove(removed)
	}
	if len(added) > 0 {
		o.forwardAdd(added)
	}
}

func (o *OrderedResult) release() {}

// Collector records the deltas and ordering refreshes it receives.
type Collector struct {
	resultBase
	set       idset.IntStorage
	events    []string
	redundant int
}

// NewCollector creates an empty collector.
func (g *Graph) NewCollector() *Collector {
	c := &Collector{resultBase: g.newBase("collector")}
	g.add(c)
	return c
}

// Matches returns the collected matches in ID order.
func (c *Collector) Matches() []int64 { return idset.SortedIDs(&c.set) }

// Events returns the received notifications in order.
func (c *Collector) Events() []string { return slices.Clone(c.events) }

// ResetEvents forgets the recorded notifications.
func (c *Collector) ResetEvents() { c.events = nil }

// Redundant counts added IDs that were already collected and removed IDs
// that were not.
func (c *Collector) Redundant() int { return c.redundant }

// AddMatches implements MatchConsumer.
func (c *Collector) AddMatches(ids []int64, _ ResultID) {
	for _, id := range ids {
		if !c.set.Add(id) {
			c.redundant++
		}
	}
	c.events = append(c.events, fmt.Sprintf("add %v", ids))
}

// RemoveMatches implements MatchConsumer.
func (c *Collector) RemoveMatches(ids []int64, _ ResultID) {
	for _, id := range ids {
		if !c.set.Remove(id) {
			c.redundant++
		}
	}
	c.events = append(c.events, fmt.Sprintf("remove %v", ids))
}

// RemoveAllMatches implements MatchConsumer.
func (c *Collector) RemoveAllMatches(_ ResultID) {
	c.set.Clear()
	c.events = append(c.events, "clear")
}

// RefreshOrdering implements OrderingConsumer.
func (c *Collector) RefreshOrdering() {
	c.events = append(c.events, "refresh")
}

func (c *Collector) dataObjChanged() {
	c.set.Clear()
	for _, id := range c.dataMatches() {
		c.set.Add(id)
	}
	c.events = append(c.events, fmt.Sprintf("reset %v", c.Matches()))
}

func (c *Collector) release() {}
