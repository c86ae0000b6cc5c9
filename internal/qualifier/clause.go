package qualifier

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/cdlcore/internal/idset"
	"github.com/roach88/cdlcore/internal/ir"
)

// ErrEmptyIntersection is returned by MergeClauses when two clauses
// constrain one slot to values with nothing in common.
var ErrEmptyIntersection = errors.New("empty intersection: qualifier always false")

// Clause is a conjunction of terms, sorted by Compare with at most one
// term per (level, attribute) slot.
type Clause []Term

// NewClause builds a clause from terms in any order. ok is false when
// the terms are unsatisfiable together.
func NewClause(terms ...Term) (Clause, bool) {
	var c Clause
	for _, t := range terms {
		var ok bool
		if c, ok = AddQualifier(c, t); !ok {
			return nil, false
		}
	}
	return c, true
}

// Search finds the term occupying t's slot.
func (c Clause) Search(t Term) (int, bool) {
	return idset.Search(c, t, CompareModValue)
}

// Lookup returns the term for attribute at level.
func (c Clause) Lookup(attribute string, level int) (Term, bool) {
	pos, found := c.Search(Term{Attribute: attribute, Level: level})
	if !found {
		return Term{}, false
	}
	return c[pos], true
}

// Clone returns a copy that shares no backing array with c.
func (c Clause) Clone() Clause {
	return slices.Clone(c)
}

// Without returns c minus the term in the given slot.
func (c Clause) Without(attribute string, level int) Clause {
	pos, found := c.Search(Term{Attribute: attribute, Level: level})
	if !found {
		return c
	}
	return slices.Delete(c.Clone(), pos, pos+1)
}

// Validate checks sortedness and slot uniqueness.
func (c Clause) Validate() error {
	for i := 1; i < len(c); i++ {
		switch d := CompareModValue(c[i-1], c[i]); {
		case d == 0:
			return fmt.Errorf("terms %s and %s share a slot", c[i-1], c[i])
		case d > 0:
			return fmt.Errorf("terms %s and %s out of order", c[i-1], c[i])
		}
	}
	return nil
}

func (c Clause) String() string {
	parts := make([]string, len(c))
	for i, t := range c {
		parts[i] = t.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Canonical returns a JSON-ready form of the clause's constraints for
// fingerprinting. Origin and verdict caches are not part of it.
func (c Clause) Canonical() []any {
	out := make([]any, len(c))
	for i, t := range c {
		out[i] = map[string]any{"attr": t.Attribute, "level": t.Level, "value": t.Value}
	}
	return out
}

// AddQualifier adds t to the clause. When the slot is taken the values
// are intersected: an identical value is a no-op, true yields to the
// stricter value, sets narrow to their common members. ok is false when
// the intersection is empty; the clause is then unsatisfiable and the
// caller drops what it guards.
func AddQualifier(c Clause, t Term) (Clause, bool) {
	pos, found := c.Search(t)
	if !found {
		return slices.Insert(c, pos, t), true
	}
	cur := c[pos]
	if ir.Equal(cur.Value, t.Value) {
		return c, true
	}
	v, ok := ir.Intersect(cur.Value, t.Value)
	if !ok {
		return c, false
	}
	if !ir.Equal(v, cur.Value) {
		cur.Value = v
		cur.Tested, cur.Result = false, Unknown
		c[pos] = cur
	}
	return c, true
}

// MergeClauses returns the conjunction a ∧ b. Neither input is modified.
// A slot whose values do not intersect is an error: such clauses should
// never have been merged.
func MergeClauses(a, b Clause) (Clause, error) {
	out := make(Clause, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch d := CompareModValue(a[i], b[j]); {
		case d < 0:
			out = append(out, a[i])
			i++
		case d > 0:
			out = append(out, b[j])
			j++
		default:
			t := a[i]
			if !ir.Equal(a[i].Value, b[j].Value) {
				v, ok := ir.Intersect(a[i].Value, b[j].Value)
				if !ok {
					return nil, fmt.Errorf("%w: %s and %s", ErrEmptyIntersection, a[i], b[j])
				}
				t.Value = v
				t.Tested, t.Result = false, Unknown
			}
			out = append(out, t)
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out, nil
}

// QInQs reports whether qs implies q: every term of q has a term in the
// same slot of qs whose value is at least as strict. Both clauses are
// scanned once.
func QInQs(q, qs Clause) bool {
	j := 0
	for _, t := range q {
		for j < len(qs) && CompareModValue(qs[j], t) < 0 {
			j++
		}
		if j == len(qs) || !SameSlot(qs[j], t) || !ir.Subsumes(t.Value, qs[j].Value) {
			return false
		}
		j++
	}
	return true
}

// Q1InQs is QInQs for a single term.
func Q1InQs(t Term, qs Clause) bool {
	pos, found := qs.Search(t)
	return found && ir.Subsumes(t.Value, qs[pos].Value)
}

// Restrict returns the clause that remains when attribute@level is known
// to equal value: a term in that slot is dropped if value satisfies it,
// and ok is false if value contradicts it.
func Restrict(c Clause, attribute string, level int, value ir.Value) (Clause, bool) {
	pos, found := c.Search(Term{Attribute: attribute, Level: level})
	if !found {
		return c, true
	}
	if !ir.Matches(c[pos].Value, value) {
		return nil, false
	}
	return slices.Delete(c.Clone(), pos, pos+1), true
}
