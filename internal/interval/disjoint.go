package interval

import (
	"fmt"
	"math"
	"slices"

	"github.com/google/btree"
)

// Covering is one interval of the derived disjoint covering set: the hull
// of a connected group of overlapping input intervals.
//
// A covering with one member carries that member's ID. Coverings with
// several members carry a negative ID allocated by the set.
type Covering struct {
	Interval
	Members []int64
}

// Delta describes how the covering set changed.
type Delta struct {
	// RemovedIntervals are the IDs of coverings that no longer exist.
	RemovedIntervals []int64
	// CoveringInterval is the new covering that replaced them, if any.
	CoveringInterval *Covering
	// RestoredIntervals are coverings that re-emerged because a removed
	// or shrunk interval no longer merges them.
	RestoredIntervals []Covering
	// ModifiedInterval is set when a modified interval ends up as its own
	// covering.
	ModifiedInterval *Covering
}

// PairwiseDisjoint maintains a set of possibly overlapping labeled
// intervals and the minimal set of disjoint coverings of their union.
// Intervals merge when they overlap; touching intervals such as [0,5)
// and [5,9] stay separate.
//
// Not safe for concurrent use.
type PairwiseDisjoint struct {
	inputs    map[int64]Interval
	memberOf  map[int64]*Covering
	coverings *btree.BTreeG[*Covering]
	multi     int // coverings with more than one member
	nextID    int64
}

func lessCovering(a, b *Covering) bool {
	if c := CompareLow(a.Interval, b.Interval); c != 0 {
		return c < 0
	}
	return a.ID < b.ID
}

// NewPairwiseDisjoint returns an empty set.
func NewPairwiseDisjoint(opts ...Option) *PairwiseDisjoint {
	o := buildOptions(opts)
	return &PairwiseDisjoint{
		inputs:    make(map[int64]Interval),
		memberOf:  make(map[int64]*Covering),
		coverings: btree.NewG(o.degree, lessCovering),
	}
}

// Len returns the number of input intervals.
func (s *PairwiseDisjoint) Len() int {
	return len(s.inputs)
}

// Interval returns the input interval with the given ID.
func (s *PairwiseDisjoint) Interval(id int64) (Interval, bool) {
	iv, ok := s.inputs[id]
	return iv, ok
}

// AddInterval inserts an input interval. The returned delta is nil when
// the interval became its own covering without merging anything.
func (s *PairwiseDisjoint) AddInterval(low float64, lowOpen bool, high float64, highOpen bool, id int64) (*Delta, error) {
	iv := Interval{Low: low, LowOpen: lowOpen, High: high, HighOpen: highOpen, ID: id}
	if err := s.checkNew(iv); err != nil {
		return nil, err
	}
	s.inputs[id] = iv

	overlapping := s.overlapping(iv)
	if len(overlapping) == 0 {
		s.insertCovering(&Covering{Interval: iv, Members: []int64{id}})
		return nil, nil
	}

	delta := &Delta{}
	members := []int64{id}
	for _, c := range overlapping {
		delta.RemovedIntervals = append(delta.RemovedIntervals, c.ID)
		members = append(members, c.Members...)
		s.deleteCovering(c)
	}
	c := s.build(members)
	s.insertCovering(c)
	delta.CoveringInterval = cloneCovering(c)
	return delta, nil
}

// RemoveInterval deletes an input interval. The covering that held it is
// replaced by the coverings of its remaining members: CoveringInterval
// when one remains, RestoredIntervals when it split.
func (s *PairwiseDisjoint) RemoveInterval(id int64) (*Delta, error) {
	c, ok := s.memberOf[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	delete(s.inputs, id)
	s.deleteCovering(c)

	delta := &Delta{RemovedIntervals: []int64{c.ID}}
	rest := slices.DeleteFunc(slices.Clone(c.Members), func(m int64) bool { return m == id })
	groups := s.components(rest)
	for _, g := range groups {
		s.insertCovering(g)
	}
	switch len(groups) {
	case 0:
	case 1:
		delta.CoveringInterval = cloneCovering(groups[0])
	default:
		for _, g := range groups {
			delta.RestoredIntervals = append(delta.RestoredIntervals, *cloneCovering(g))
		}
	}
	return delta, nil
}

// ModifyInterval changes the bounds of an input interval in one step.
// The group containing the modified interval is reported as
// ModifiedInterval when it is alone, CoveringInterval otherwise; any
// other group split off from its old covering is in RestoredIntervals.
func (s *PairwiseDisjoint) ModifyInterval(id int64, low float64, lowOpen bool, high float64, highOpen bool) (*Delta, error) {
	old, ok := s.memberOf[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	iv := Interval{Low: low, LowOpen: lowOpen, High: high, HighOpen: highOpen, ID: id}
	if err := iv.Check(); err != nil {
		return nil, err
	}
	s.inputs[id] = iv

	affected := map[int64]*Covering{old.ID: old}
	for _, c := range s.overlapping(iv) {
		affected[c.ID] = c
	}
	var members, removed []int64
	for _, c := range affected {
		removed = append(removed, c.ID)
		members = append(members, c.Members...)
		s.deleteCovering(c)
	}
	slices.Sort(removed)

	delta := &Delta{}
	for _, g := range s.components(members) {
		s.insertCovering(g)
		switch {
		case !slices.Contains(g.Members, id):
			delta.RestoredIntervals = append(delta.RestoredIntervals, *cloneCovering(g))
		case len(g.Members) == 1:
			delta.ModifiedInterval = cloneCovering(g)
		default:
			delta.CoveringInterval = cloneCovering(g)
		}
	}
	for _, r := range removed {
		if delta.ModifiedInterval == nil || r != delta.ModifiedInterval.ID {
			delta.RemovedIntervals = append(delta.RemovedIntervals, r)
		}
	}
	return delta, nil
}

// IsDisjoint reports whether no two input intervals overlap.
func (s *PairwiseDisjoint) IsDisjoint() bool {
	return s.multi == 0
}

// IsDisjointRange reports whether the given range overlaps no input
// interval.
func (s *PairwiseDisjoint) IsDisjointRange(low float64, lowOpen bool, high float64, highOpen bool) bool {
	iv := Interval{Low: low, LowOpen: lowOpen, High: high, HighOpen: highOpen}
	return len(s.overlapping(iv)) == 0
}

// GetCoveringIntervalID returns the input interval that the given range
// would overlap: the overlapping interval with the latest start not after
// the range's start, or else the earliest overlapping one.
func (s *PairwiseDisjoint) GetCoveringIntervalID(low float64, lowOpen bool, high float64, highOpen bool) (int64, bool) {
	rng := Interval{Low: low, LowOpen: lowOpen, High: high, HighOpen: highOpen}
	var before, after *Interval
	for _, c := range s.overlapping(rng) {
		for _, m := range c.Members {
			iv := s.inputs[m]
			if !Overlaps(iv, rng) {
				continue
			}
			if CompareLow(iv, rng) <= 0 {
				if before == nil || byLowThenID(*before, iv) < 0 {
					before = &iv
				}
			} else if after == nil || byLowThenID(iv, *after) < 0 {
				after = &iv
			}
		}
	}
	switch {
	case before != nil:
		return before.ID, true
	case after != nil:
		return after.ID, true
	default:
		return 0, false
	}
}

// CoveringAt returns the covering containing point p.
func (s *PairwiseDisjoint) CoveringAt(p float64) (Covering, bool) {
	found := s.overlapping(Point(p, 0))
	if len(found) == 0 {
		return Covering{}, false
	}
	return *cloneCovering(found[0]), true
}

// Coverings returns the covering set ordered by start.
func (s *PairwiseDisjoint) Coverings() []Covering {
	out := make([]Covering, 0, s.coverings.Len())
	s.coverings.Ascend(func(c *Covering) bool {
		out = append(out, *cloneCovering(c))
		return true
	})
	return out
}

// Validate checks the covering invariants: coverings are pairwise
// disjoint, each is the hull of a connected group of its members, and
// every input belongs to exactly one covering.
func (s *PairwiseDisjoint) Validate() error {
	var prev *Covering
	seen := make(map[int64]bool, len(s.inputs))
	multi := 0
	var err error
	s.coverings.Ascend(func(c *Covering) bool {
		if prev != nil && Overlaps(prev.Interval, c.Interval) {
			err = fmt.Errorf("coverings %d and %d overlap", prev.ID, c.ID)
			return false
		}
		if len(c.Members) > 1 {
			multi++
		}
		if groups := s.group(c.Members); len(groups) != 1 {
			err = fmt.Errorf("covering %d has %d disconnected groups", c.ID, len(groups))
			return false
		}
		h := s.hull(c.Members)
		if CompareLow(h, c.Interval) != 0 || CompareHigh(h, c.Interval) != 0 {
			err = fmt.Errorf("covering %d is %s, members span %s", c.ID, c.Interval, h)
			return false
		}
		for _, m := range c.Members {
			if seen[m] {
				err = fmt.Errorf("interval %d in two coverings", m)
				return false
			}
			seen[m] = true
			if s.memberOf[m] != c {
				err = fmt.Errorf("interval %d not indexed to covering %d", m, c.ID)
				return false
			}
		}
		prev = c
		return true
	})
	if err != nil {
		return err
	}
	if len(seen) != len(s.inputs) {
		return fmt.Errorf("%d inputs but %d covered", len(s.inputs), len(seen))
	}
	if multi != s.multi {
		return fmt.Errorf("multi-member count %d, tracked %d", multi, s.multi)
	}
	return nil
}

func (s *PairwiseDisjoint) checkNew(iv Interval) error {
	if iv.ID < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeID, iv.ID)
	}
	if _, ok := s.inputs[iv.ID]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateID, iv.ID)
	}
	return iv.Check()
}

// overlapping returns the coverings overlapping iv in start order.
// Coverings are disjoint and sorted, so the matches are contiguous and
// begin at or just before iv's start.
func (s *PairwiseDisjoint) overlapping(iv Interval) []*Covering {
	pivot := &Covering{Interval: Interval{Low: iv.Low, LowOpen: iv.LowOpen, ID: math.MaxInt64}}
	var out []*Covering
	s.coverings.DescendLessOrEqual(pivot, func(c *Covering) bool {
		if Overlaps(c.Interval, iv) {
			out = append(out, c)
		}
		return false
	})
	s.coverings.AscendGreaterOrEqual(pivot, func(c *Covering) bool {
		if !Overlaps(c.Interval, iv) {
			return false
		}
		out = append(out, c)
		return true
	})
	return out
}

// components builds the coverings of members' connected groups.
func (s *PairwiseDisjoint) components(members []int64) []*Covering {
	groups := s.group(members)
	out := make([]*Covering, 0, len(groups))
	for _, g := range groups {
		out = append(out, s.build(g))
	}
	return out
}

// group splits members into connected overlapping runs by sweeping them
// in start order.
func (s *PairwiseDisjoint) group(members []int64) [][]int64 {
	ivs := make([]Interval, 0, len(members))
	for _, m := range members {
		ivs = append(ivs, s.inputs[m])
	}
	slices.SortFunc(ivs, byLowThenID)

	var groups [][]int64
	var hull Interval
	for i, iv := range ivs {
		if i > 0 && Overlaps(hull, iv) {
			hull = Hull(hull, iv)
			groups[len(groups)-1] = append(groups[len(groups)-1], iv.ID)
			continue
		}
		hull = iv
		groups = append(groups, []int64{iv.ID})
	}
	return groups
}

func (s *PairwiseDisjoint) hull(members []int64) Interval {
	h := s.inputs[members[0]]
	for _, m := range members[1:] {
		h = Hull(h, s.inputs[m])
	}
	return h
}

// build makes the covering for a connected group of members.
func (s *PairwiseDisjoint) build(members []int64) *Covering {
	slices.Sort(members)
	h := s.hull(members)
	if len(members) > 1 {
		s.nextID--
		h.ID = s.nextID
	}
	return &Covering{Interval: h, Members: members}
}

func (s *PairwiseDisjoint) insertCovering(c *Covering) {
	s.coverings.ReplaceOrInsert(c)
	for _, m := range c.Members {
		s.memberOf[m] = c
	}
	if len(c.Members) > 1 {
		s.multi++
	}
}

func (s *PairwiseDisjoint) deleteCovering(c *Covering) {
	s.coverings.Delete(c)
	for _, m := range c.Members {
		if s.memberOf[m] == c {
			delete(s.memberOf, m)
		}
	}
	if len(c.Members) > 1 {
		s.multi--
	}
}

func cloneCovering(c *Covering) *Covering {
	return &Covering{Interval: c.Interval, Members: slices.Clone(c.Members)}
}

