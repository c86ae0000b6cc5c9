// Package interval maintains dynamic sets of intervals over the extended
// real line: a pairwise-disjoint covering set, an endpoint-keyed interval
// tree, and a lightweight tree for point intervals.
//
// Endpoint order: at an equal finite start, a closed start precedes an
// open one; at an equal finite end, an open end precedes a closed one.
// Infinite endpoints ignore openness.
package interval

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	// ErrInvalidInterval is returned for empty or inverted intervals and
	// NaN endpoints.
	ErrInvalidInterval = errors.New("invalid interval")
	// ErrDuplicateID is returned when an ID is already present.
	ErrDuplicateID = errors.New("duplicate interval id")
	// ErrUnknownID is returned when an ID is not present.
	ErrUnknownID = errors.New("unknown interval id")
	// ErrNegativeID is returned by PairwiseDisjoint, which reserves
	// negative IDs for merged coverings.
	ErrNegativeID = errors.New("negative interval id")
)

// Interval is a labeled interval. Low and High may be infinite.
type Interval struct {
	Low, High         float64
	LowOpen, HighOpen bool
	ID                int64
}

// Point returns the closed degenerate interval [p, p].
func Point(p float64, id int64) Interval {
	return Interval{Low: p, High: p, ID: id}
}

// Check reports ErrInvalidInterval for NaN endpoints, High < Low, and
// empty intervals such as (x, x].
func (iv Interval) Check() error {
	if math.IsNaN(iv.Low) || math.IsNaN(iv.High) {
		return fmt.Errorf("%w: NaN endpoint in %s", ErrInvalidInterval, iv)
	}
	if !startsBeforeEnd(iv.Low, iv.LowOpen, iv.High, iv.HighOpen) {
		return fmt.Errorf("%w: %s is empty", ErrInvalidInterval, iv)
	}
	return nil
}

// IsPoint reports whether iv contains exactly one point.
func (iv Interval) IsPoint() bool {
	return iv.Low == iv.High
}

func (iv Interval) String() string {
	lb, rb := "[", "]"
	if iv.LowOpen && !math.IsInf(iv.Low, 0) {
		lb = "("
	}
	if iv.HighOpen && !math.IsInf(iv.High, 0) {
		rb = ")"
	}
	return lb + formatKey(iv.Low) + "," + formatKey(iv.High) + rb + "#" + strconv.FormatInt(iv.ID, 10)
}

func formatKey(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

func closedAt(v float64, open bool) bool {
	return !open || math.IsInf(v, 0)
}

// CompareLow orders intervals by their start.
func CompareLow(a, b Interval) int {
	if c := cmp.Compare(a.Low, b.Low); c != 0 {
		return c
	}
	ac, bc := closedAt(a.Low, a.LowOpen), closedAt(b.Low, b.LowOpen)
	switch {
	case ac == bc:
		return 0
	case ac:
		return -1
	default:
		return 1
	}
}

// CompareHigh orders intervals by their end.
func CompareHigh(a, b Interval) int {
	if c := cmp.Compare(a.High, b.High); c != 0 {
		return c
	}
	ac, bc := closedAt(a.High, a.HighOpen), closedAt(b.High, b.HighOpen)
	switch {
	case ac == bc:
		return 0
	case ac:
		return 1
	default:
		return -1
	}
}

// byLowThenID is the storage order used by sorted interval lists.
func byLowThenID(a, b Interval) int {
	if c := CompareLow(a, b); c != 0 {
		return c
	}
	if c := CompareHigh(a, b); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// byHighDescThenID orders by end, latest first.
func byHighDescThenID(a, b Interval) int {
	if c := CompareHigh(b, a); c != 0 {
		return c
	}
	if c := CompareLow(a, b); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// startsBeforeEnd reports whether a start bound (low, lowOpen) is at or
// before an end bound (high, highOpen), i.e. the two share a point.
func startsBeforeEnd(low float64, lowOpen bool, high float64, highOpen bool) bool {
	if low != high {
		return low < high
	}
	return closedAt(low, lowOpen) && closedAt(high, highOpen)
}

// Overlaps reports whether a and b share at least one point.
func Overlaps(a, b Interval) bool {
	return startsBeforeEnd(a.Low, a.LowOpen, b.High, b.HighOpen) &&
		startsBeforeEnd(b.Low, b.LowOpen, a.High, a.HighOpen)
}

// Contains reports whether inner lies entirely within outer.
func Contains(outer, inner Interval) bool {
	return CompareLow(outer, inner) <= 0 && CompareHigh(outer, inner) >= 0
}

// ContainsPoint reports whether p lies in iv.
func ContainsPoint(iv Interval, p float64) bool {
	return startsBeforeEnd(iv.Low, iv.LowOpen, p, false) &&
		startsBeforeEnd(p, false, iv.High, iv.HighOpen)
}

// Hull returns the smallest interval containing a and b. The ID is a's.
func Hull(a, b Interval) Interval {
	out := a
	if CompareLow(b, a) < 0 {
		out.Low, out.LowOpen = b.Low, b.LowOpen
	}
	if CompareHigh(b, a) > 0 {
		out.High, out.HighOpen = b.High, b.HighOpen
	}
	return out
}
