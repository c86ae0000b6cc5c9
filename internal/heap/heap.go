// Package heap provides a binary min-heap ordered by a caller-supplied
// comparator.
package heap

import (
	"container/heap"
	"slices"
)

// Heap is a binary min-heap. The element with the smallest value under
// cmp is at the top.
type Heap[T any] struct {
	items items[T]
}

// New returns an empty heap ordered by cmp.
func New[T any](cmp func(a, b T) int) *Heap[T] {
	return &Heap[T]{items: items[T]{cmp: cmp}}
}

// Add pushes x.
func (h *Heap[T]) Add(x T) {
	heap.Push(&h.items, x)
}

// AddMulti pushes every element of xs. The elements are appended and the
// heap property is restored bottom-up from the last internal node, which
// is linear in the resulting size.
func (h *Heap[T]) AddMulti(xs ...T) {
	switch len(xs) {
	case 0:
		return
	case 1:
		h.Add(xs[0])
		return
	}
	h.items.data = append(h.items.data, xs...)
	heap.Init(&h.items)
}

// Peek returns the smallest element without removing it.
func (h *Heap[T]) Peek() (T, bool) {
	if len(h.items.data) == 0 {
		var zero T
		return zero, false
	}
	return h.items.data[0], true
}

// Pop removes and returns the smallest element.
func (h *Heap[T]) Pop() (T, bool) {
	if len(h.items.data) == 0 {
		var zero T
		return zero, false
	}
	return heap.Pop(&h.items).(T), true
}

// Remove deletes the first element for which match returns true and
// reports whether one was found.
func (h *Heap[T]) Remove(match func(T) bool) bool {
	i := slices.IndexFunc(h.items.data, match)
	if i < 0 {
		return false
	}
	heap.Remove(&h.items, i)
	return true
}

// Len returns the number of elements.
func (h *Heap[T]) Len() int {
	return len(h.items.data)
}

// Items returns the elements in heap order. The slice is shared with the
// heap and must not be modified.
func (h *Heap[T]) Items() []T {
	return h.items.data
}

// Sorted returns a copy of the elements in ascending order.
func (h *Heap[T]) Sorted() []T {
	out := slices.Clone(h.items.data)
	slices.SortStableFunc(out, h.items.cmp)
	return out
}

// Clear removes every element.
func (h *Heap[T]) Clear() {
	clear(h.items.data)
	h.items.data = h.items.data[:0]
}

// items adapts a slice and comparator to heap.Interface.
type items[T any] struct {
	data []T
	cmp  func(a, b T) int
}

func (s items[T]) Len() int           { return len(s.data) }
func (s items[T]) Less(i, j int) bool { return s.cmp(s.data[i], s.data[j]) < 0 }
func (s items[T]) Swap(i, j int)      { s.data[i], s.data[j] = s.data[j], s.data[i] }

func (s *items[T]) Push(x any) {
	s.data = append(s.data, x.(T))
}

func (s *items[T]) Pop() any {
	n := len(s.data)
	x := s.data[n-1]
	var zero T
	s.data[n-1] = zero
	s.data = s.data[:n-1]
	return x
}
