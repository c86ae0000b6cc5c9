package ordertree

import (
	"slices"

	"github.com/roach88/cdlcore/internal/heap"
)

// ties holds the elements of one node, which all compare equal under the
// tree's comparator. Added elements wait in a min-heap ordered by the tie
// comparator and are merged into ranked the next time a position inside
// the node is needed, so a run of tied inserts is ranked in one merge.
// Rank lookups binary-search ranked and never re-sort it.
type ties[T comparable] struct {
	cmp     func(a, b T) int
	pending *heap.Heap[T]
	ranked  []T
}

func newTies[T comparable](cmp func(a, b T) int, x T) *ties[T] {
	s := &ties[T]{cmp: cmp, pending: heap.New(cmp)}
	s.pending.Add(x)
	return s
}

func (s *ties[T]) len() int {
	return len(s.ranked) + s.pending.Len()
}

func (s *ties[T]) add(x T) {
	s.pending.Add(x)
}

// first returns the smallest element without ranking the pending ones.
func (s *ties[T]) first() T {
	p, ok := s.pending.Peek()
	if len(s.ranked) == 0 || (ok && s.cmp(p, s.ranked[0]) < 0) {
		return p
	}
	return s.ranked[0]
}

// rank merges the pending elements and returns every element in tie
// order. The slice is owned by s.
func (s *ties[T]) rank() []T {
	switch s.pending.Len() {
	case 0:
	case 1:
		x, _ := s.pending.Pop()
		i, _ := slices.BinarySearchFunc(s.ranked, x, s.cmp)
		s.ranked = slices.Insert(s.ranked, i, x)
	default:
		in := make([]T, 0, s.pending.Len())
		for s.pending.Len() > 0 {
			x, _ := s.pending.Pop()
			in = append(in, x)
		}
		out := make([]T, 0, len(s.ranked)+len(in))
		i, j := 0, 0
		for i < len(s.ranked) && j < len(in) {
			if s.cmp(in[j], s.ranked[i]) < 0 {
				out = append(out, in[j])
				j++
			} else {
				out = append(out, s.ranked[i])
				i++
			}
		}
		out = append(out, s.ranked[i:]...)
		s.ranked = append(out, in[j:]...)
	}
	return s.ranked
}

func (s *ties[T]) at(i int) T {
	return s.rank()[i]
}

// index returns the rank of x inside the node, or -1.
func (s *ties[T]) index(x T) int {
	r := s.rank()
	i, found := slices.BinarySearchFunc(r, x, s.cmp)
	if !found || r[i] != x {
		return -1
	}
	return i
}

func (s *ties[T]) remove(x T) bool {
	i := s.index(x)
	if i < 0 {
		return false
	}
	s.ranked = slices.Delete(s.ranked, i, i+1)
	return true
}
