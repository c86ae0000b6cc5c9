package interval

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/google/btree"

	"github.com/roach88/cdlcore/internal/idset"
)

// DegenerateTree stores point intervals only: a sorted set of points,
// each mapped to the IDs located there.
//
// Not safe for concurrent use.
type DegenerateTree struct {
	points *btree.BTreeG[float64]
	ids    map[float64]*idset.IntStorage
	byID   map[int64]float64
}

// NewDegenerateTree returns an empty tree.
func NewDegenerateTree(opts ...Option) *DegenerateTree {
	o := buildOptions(opts)
	return &DegenerateTree{
		points: btree.NewOrderedG[float64](o.degree),
		ids:    make(map[float64]*idset.IntStorage),
		byID:   make(map[int64]float64),
	}
}

// Len returns the number of stored IDs.
func (d *DegenerateTree) Len() int {
	return len(d.byID)
}

// Insert places id at point p.
func (d *DegenerateTree) Insert(p float64, id int64) error {
	if math.IsNaN(p) {
		return fmt.Errorf("%w: NaN point", ErrInvalidInterval)
	}
	if _, ok := d.byID[id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateID, id)
	}
	s, ok := d.ids[p]
	if !ok {
		s = &idset.IntStorage{}
		d.ids[p] = s
		d.points.ReplaceOrInsert(p)
	}
	s.Add(id)
	d.byID[id] = p
	return nil
}

// Remove deletes id and reports whether it was present.
func (d *DegenerateTree) Remove(id int64) bool {
	p, ok := d.byID[id]
	if !ok {
		return false
	}
	delete(d.byID, id)
	s := d.ids[p]
	s.Remove(id)
	if s.Len() == 0 {
		delete(d.ids, p)
		d.points.Delete(p)
	}
	return true
}

// Find returns the IDs at point p in ascending order.
func (d *DegenerateTree) Find(p float64) []int64 {
	s, ok := d.ids[p]
	if !ok {
		return nil
	}
	return idset.SortedIDs(s)
}

// FindIntersections returns the IDs of points inside rng, in ascending
// order.
func (d *DegenerateTree) FindIntersections(rng Interval) []int64 {
	var out []int64
	d.points.AscendGreaterOrEqual(rng.Low, func(p float64) bool {
		if !startsBeforeEnd(p, false, rng.High, rng.HighOpen) {
			return false
		}
		if ContainsPoint(rng, p) {
			out = append(out, d.ids[p].IDs()...)
		}
		return true
	})
	slices.Sort(out)
	return out
}

// Points returns the occupied points in ascending order.
func (d *DegenerateTree) Points() []float64 {
	out := make([]float64, 0, d.points.Len())
	d.points.Ascend(func(p float64) bool {
		out = append(out, p)
		return true
	})
	return out
}

// ImportFromDegenerateTree builds a general Tree holding the points of d
// as closed degenerate intervals, for when ranged intervals must be
// mixed in. opts configure the new Tree.
func ImportFromDegenerateTree(d *DegenerateTree, opts ...Option) *Tree {
	ids := make([]int64, 0, len(d.byID))
	for id := range d.byID {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, cmp.Compare[int64])

	t := NewTree(opts...)
	for _, id := range ids {
		if err := t.InsertInterval(Point(d.byID[id], id)); err != nil {
			panic(&InvariantError{Op: "ImportFromDegenerateTree", Detail: err.Error()})
		}
	}
	return t
}
