package testutil

import (
	"fmt"
	"slices"
)

// Shadow mirrors a set maintained through add/remove deltas. It rejects
// deltas that add a present member or remove an absent one, which is how
// tests catch duplicate or spurious notifications.
type Shadow struct {
	members map[int64]bool
}

// NewShadow returns an empty shadow set.
func NewShadow() *Shadow {
	return &Shadow{members: make(map[int64]bool)}
}

// Add applies an add delta.
func (s *Shadow) Add(ids []int64) error {
	for _, id := range ids {
		if s.members[id] {
			return fmt.Errorf("duplicate add of %d", id)
		}
		s.members[id] = true
	}
	return nil
}

// Remove applies a remove delta.
func (s *Shadow) Remove(ids []int64) error {
	for _, id := range ids {
		if !s.members[id] {
			return fmt.Errorf("remove of absent %d", id)
		}
		delete(s.members, id)
	}
	return nil
}

// Clear drops every member.
func (s *Shadow) Clear() {
	clear(s.members)
}

// Has reports membership.
func (s *Shadow) Has(id int64) bool {
	return s.members[id]
}

// Len returns the member count.
func (s *Shadow) Len() int {
	return len(s.members)
}

// Sorted returns the members in ascending order.
func (s *Shadow) Sorted() []int64 {
	out := make([]int64, 0, len(s.members))
	for id := range s.members {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
