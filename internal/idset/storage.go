package idset

import (
	"cmp"
	"slices"
)

// Threshold is the member count past which a Storage switches from a
// linear slice to a hash set.
const Threshold = 16

// Storage is a set of IDs optimized for the common case of very few
// members. Up to Threshold members live in an unsorted slice; past that
// the set upgrades to a map and stays a map until Clear.
//
// The zero value is an empty set ready to use.
type Storage[K comparable] struct {
	list []K
	set  map[K]struct{}
}

// Add inserts id and reports whether it was not already present.
func (s *Storage[K]) Add(id K) bool {
	if s.set != nil {
		if _, ok := s.set[id]; ok {
			return false
		}
		s.set[id] = struct{}{}
		return true
	}
	if slices.Contains(s.list, id) {
		return false
	}
	if len(s.list) < Threshold {
		s.list = append(s.list, id)
		return true
	}
	s.set = make(map[K]struct{}, 2*Threshold)
	for _, m := range s.list {
		s.set[m] = struct{}{}
	}
	s.set[id] = struct{}{}
	s.list = nil
	return true
}

// Remove deletes id and reports whether it was present.
func (s *Storage[K]) Remove(id K) bool {
	if s.set != nil {
		if _, ok := s.set[id]; !ok {
			return false
		}
		delete(s.set, id)
		return true
	}
	i := slices.Index(s.list, id)
	if i < 0 {
		return false
	}
	last := len(s.list) - 1
	s.list[i] = s.list[last]
	s.list = s.list[:last]
	return true
}

// Has reports whether id is a member.
func (s *Storage[K]) Has(id K) bool {
	if s.set != nil {
		_, ok := s.set[id]
		return ok
	}
	return slices.Contains(s.list, id)
}

// Len returns the number of members.
func (s *Storage[K]) Len() int {
	if s.set != nil {
		return len(s.set)
	}
	return len(s.list)
}

// IsHashed reports whether the set has upgraded to its map form.
func (s *Storage[K]) IsHashed() bool {
	return s.set != nil
}

// Each calls fn for every member in unspecified order until fn returns
// false.
func (s *Storage[K]) Each(fn func(K) bool) {
	if s.set != nil {
		for id := range s.set {
			if !fn(id) {
				return
			}
		}
		return
	}
	for _, id := range s.list {
		if !fn(id) {
			return
		}
	}
}

// IDs returns the members in unspecified order.
func (s *Storage[K]) IDs() []K {
	out := make([]K, 0, s.Len())
	s.Each(func(id K) bool {
		out = append(out, id)
		return true
	})
	return out
}

// Clear empties the set and returns it to slice form.
func (s *Storage[K]) Clear() {
	s.list = nil
	s.set = nil
}

// SortedIDs returns the members of s in ascending order.
func SortedIDs[K cmp.Ordered](s *Storage[K]) []K {
	out := s.IDs()
	slices.Sort(out)
	return out
}

// IntStorage is the ID set used for indexer element IDs.
type IntStorage = Storage[int64]
