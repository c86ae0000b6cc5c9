package ir

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Value is a sealed interface over the simple values the runtime compares,
// qualifies on and stores: Null, Bool, Number, String and Set.
//
// Only types in this package implement it, so type switches over Value are
// exhaustive.
type Value interface {
	irValue()
	// Kind reports the value's kind for ordering and dispatch.
	Kind() Kind
}

// Kind orders value kinds. Values of a lower kind sort before values of a
// higher kind in Compare.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindSet
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSet:
		return "set"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Null is the undefined value.
type Null struct{}

func (Null) irValue()   {}
func (Null) Kind() Kind { return KindNull }

// Bool is a boolean value. As a qualifier value, true means "defined and
// not false".
type Bool bool

func (Bool) irValue()   {}
func (Bool) Kind() Kind { return KindBool }

// Number is a numeric value. Infinite numbers are valid interval keys but
// are rejected by MarshalCanonical.
type Number float64

func (Number) irValue()   {}
func (Number) Kind() Kind { return KindNumber }

// String is a string value.
type String string

func (String) irValue()   {}
func (String) Kind() Kind { return KindString }

// Set is a sorted, duplicate-free set of non-set values.
// Build sets with NewSet; a literal Set is assumed to already be normalized.
type Set []Value

func (Set) irValue()   {}
func (Set) Kind() Kind { return KindSet }

// True and False are the two boolean values.
var (
	True  Value = Bool(true)
	False Value = Bool(false)
)

// NewSet builds a normalized set value from vals. Nested sets are
// flattened, duplicates dropped, and members sorted with Compare.
// A set with exactly one member collapses to that member; an empty
// set stays an empty Set.
func NewSet(vals ...Value) Value {
	flat := make([]Value, 0, len(vals))
	for _, v := range vals {
		if v == nil {
			continue
		}
		if s, ok := v.(Set); ok {
			flat = append(flat, s...)
			continue
		}
		flat = append(flat, v)
	}
	slices.SortFunc(flat, Compare)
	flat = slices.CompactFunc(flat, Equal)
	if len(flat) == 1 {
		return flat[0]
	}
	return Set(flat)
}

// Members returns the members of v: the set's elements for a Set, or v
// itself for a simple value.
func Members(v Value) []Value {
	if s, ok := v.(Set); ok {
		return s
	}
	return []Value{v}
}

// IsFalse reports whether v is the false-like value (false or undefined).
func IsFalse(v Value) bool {
	switch val := v.(type) {
	case nil, Null:
		return true
	case Bool:
		return !bool(val)
	case Set:
		return len(val) == 0
	default:
		return false
	}
}

// Compare gives a total order over values: kind first, then value.
// Sets compare lexicographically by member.
func Compare(a, b Value) int {
	ka, kb := kindOf(a), kindOf(b)
	if ka != kb {
		return cmp.Compare(ka, kb)
	}
	switch va := a.(type) {
	case Bool:
		vb := b.(Bool)
		switch {
		case va == vb:
			return 0
		case !bool(va):
			return -1
		default:
			return 1
		}
	case Number:
		return cmp.Compare(float64(va), float64(b.(Number)))
	case String:
		return strings.Compare(string(va), string(b.(String)))
	case Set:
		vb := b.(Set)
		for i := 0; i < len(va) && i < len(vb); i++ {
			if c := Compare(va[i], vb[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(va), len(vb))
	default:
		return 0
	}
}

// Equal reports whether a and b are the same value.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

func kindOf(v Value) Kind {
	if v == nil {
		return KindNull
	}
	return v.Kind()
}

// Format renders a value in a compact, human-readable form.
func Format(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "null"
	case Bool:
		return strconv.FormatBool(bool(val))
	case Number:
		return formatNumber(float64(val))
	case String:
		return strconv.Quote(string(val))
	case Set:
		parts := make([]string, len(val))
		for i, m := range val {
			parts[i] = Format(m)
		}
		return "o(" + strings.Join(parts, ",") + ")"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatNumber(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', -1, 64)
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}
