// Package qualifier implements conjunctions of qualifier terms: the
// attribute@level = value guards that decide which variant of a
// declarative expression is active.
package qualifier

import (
	"cmp"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/cdlcore/internal/ir"
)

// Verdict is the cached outcome of matching a term against a constant
// context.
type Verdict int8

const (
	Unknown Verdict = iota
	True
	False
)

func (v Verdict) String() string {
	switch v {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// Term is one conjunct attribute@level = value. Once Tested, Result is
// frozen: context constants do not change after elimination.
type Term struct {
	Attribute   string
	Value       ir.Value
	Level       int
	OriginClass string
	Tested      bool
	Result      Verdict
}

// NewTerm builds an untested term. The attribute name is NFC normalized
// so visually identical names share a slot.
func NewTerm(attribute string, value ir.Value, level int, originClass string) Term {
	if value == nil {
		value = ir.Null{}
	}
	return Term{
		Attribute:   norm.NFC.String(attribute),
		Value:       value,
		Level:       level,
		OriginClass: originClass,
	}
}

func (t Term) String() string {
	return fmt.Sprintf("%s@%d:%s", t.Attribute, t.Level, ir.Format(t.Value))
}

// Compare orders terms by level descending, then attribute, then value.
func Compare(a, b Term) int {
	if c := CompareModValue(a, b); c != 0 {
		return c
	}
	return ir.Compare(a.Value, b.Value)
}

// CompareModValue compares the (level, attribute) slots only.
func CompareModValue(a, b Term) int {
	if c := cmp.Compare(b.Level, a.Level); c != 0 {
		return c
	}
	return strings.Compare(a.Attribute, b.Attribute)
}

// SameSlot reports whether a and b constrain the same attribute at the
// same level.
func SameSlot(a, b Term) bool {
	return CompareModValue(a, b) == 0
}
