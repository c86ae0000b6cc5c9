// Package idset provides sorted-slice search helpers and compact ID sets.
package idset

import "slices"

// Search looks x up in the sorted slice s. It returns the position where
// x is, or where it would be inserted to keep s sorted, and whether it
// was found.
func Search[T any](s []T, x T, cmp func(a, b T) int) (int, bool) {
	return slices.BinarySearchFunc(s, x, cmp)
}

// SearchRange is Search restricted to s[from:to]. The returned position
// is an index into s.
func SearchRange[T any](s []T, x T, from, to int, cmp func(a, b T) int) (int, bool) {
	pos, found := slices.BinarySearchFunc(s[from:to], x, cmp)
	return from + pos, found
}

// LowerBound returns the first position whose element is not less than x.
func LowerBound[T any](s []T, x T, cmp func(a, b T) int) int {
	pos, _ := slices.BinarySearchFunc(s, x, cmp)
	return pos
}

// UpperBound returns the first position whose element is greater than x.
func UpperBound[T any](s []T, x T, cmp func(a, b T) int) int {
	lo, hi := 0, len(s)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if cmp(s[mid], x) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// InsertSorted inserts x into the sorted slice s unless an equal element
// is already present. It reports whether s changed.
func InsertSorted[T any](s []T, x T, cmp func(a, b T) int) ([]T, bool) {
	pos, found := slices.BinarySearchFunc(s, x, cmp)
	if found {
		return s, false
	}
	return slices.Insert(s, pos, x), true
}

// RemoveSorted removes the element equal to x from the sorted slice s.
// It reports whether s changed.
func RemoveSorted[T any](s []T, x T, cmp func(a, b T) int) ([]T, bool) {
	pos, found := slices.BinarySearchFunc(s, x, cmp)
	if !found {
		return s, false
	}
	return slices.Delete(s, pos, pos+1), true
}
