package qualifier

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cdlcore/internal/ir"
	"github.com/roach88/cdlcore/internal/testutil"
)

func num(vals ...float64) ir.Value {
	members := make([]ir.Value, len(vals))
	for i, v := range vals {
		members[i] = ir.Number(v)
	}
	return ir.NewSet(members...)
}

func TestCompareOrder(t *testing.T) {
	a := NewTerm("mode", ir.String("x"), 1, "")
	b := NewTerm("alpha", ir.String("x"), 0, "")
	c := NewTerm("mode", ir.String("y"), 1, "")
	// higher level first
	assert.Negative(t, Compare(a, b))
	assert.Negative(t, Compare(a, c))
	assert.Zero(t, CompareModValue(a, c))
	assert.True(t, SameSlot(a, c))
}

func TestNewTermNormalizesAttribute(t *testing.T) {
	composed := NewTerm("caf\u00e9", ir.True, 0, "")
	decomposed := NewTerm("cafe\u0301", ir.True, 0, "")
	assert.True(t, SameSlot(composed, decomposed))
	assert.Equal(t, ir.Value(ir.Null{}), NewTerm("a", nil, 0, "").Value)
}

func TestAddQualifier(t *testing.T) {
	c, ok := NewClause(
		NewTerm("b", ir.True, 0, "A"),
		NewTerm("a", num(1, 2, 3), 0, "A"),
		NewTerm("z", ir.String("q"), 2, "B"),
	)
	require.True(t, ok)
	require.NoError(t, c.Validate())
	assert.Equal(t, "{z@2:\"q\", a@0:o(1,2,3), b@0:true}", c.String())

	// identical value is a no-op
	c, ok = AddQualifier(c, NewTerm("z", ir.String("q"), 2, ""))
	require.True(t, ok)
	assert.Len(t, c, 3)

	// true yields to the stricter value
	c, ok = AddQualifier(c, NewTerm("b", ir.Number(7), 0, ""))
	require.True(t, ok)
	term, _ := c.Lookup("b", 0)
	assert.Equal(t, ir.Value(ir.Number(7)), term.Value)

	// sets narrow
	c, ok = AddQualifier(c, NewTerm("a", num(2, 3, 4), 0, ""))
	require.True(t, ok)
	term, _ = c.Lookup("a", 0)
	assert.Equal(t, num(2, 3), term.Value)

	// empty intersection is unsatisfiable
	_, ok = AddQualifier(c, NewTerm("a", ir.Number(9), 0, ""))
	assert.False(t, ok)

	_, ok = NewClause(NewTerm("m", ir.String("x"), 0, ""), NewTerm("m", ir.String("y"), 0, ""))
	assert.False(t, ok)
}

func TestAddQualifierResetsVerdict(t *testing.T) {
	term := NewTerm("a", num(1, 2), 0, "")
	term.Tested, term.Result = true, True
	c := Clause{term}
	c, ok := AddQualifier(c, NewTerm("a", ir.Number(1), 0, ""))
	require.True(t, ok)
	assert.False(t, c[0].Tested)
	assert.Equal(t, Unknown, c[0].Result)
}

func TestMergeClauses(t *testing.T) {
	a, _ := NewClause(NewTerm("a", num(1, 2), 0, ""), NewTerm("c", ir.True, 0, ""))
	b, _ := NewClause(NewTerm("a", num(2, 3), 0, ""), NewTerm("b", ir.False, 1, ""))

	m, err := MergeClauses(a, b)
	require.NoError(t, err)
	require.NoError(t, m.Validate())
	assert.Equal(t, "{b@1:false, a@0:2, c@0:true}", m.String())
	// inputs untouched
	assert.Equal(t, num(1, 2), a[0].Value)

	bad, _ := NewClause(NewTerm("a", ir.Number(5), 0, ""))
	_, err = MergeClauses(a, bad)
	assert.ErrorIs(t, err, ErrEmptyIntersection)
}

func TestQInQs(t *testing.T) {
	general, _ := NewClause(NewTerm("a", num(1, 2), 0, ""), NewTerm("b", ir.True, 0, ""))
	specific, _ := NewClause(NewTerm("a", ir.Number(1), 0, ""), NewTerm("b", ir.String("x"), 0, ""), NewTerm("c", ir.Number(0), 1, ""))

	assert.True(t, QInQs(general, specific))
	assert.False(t, QInQs(specific, general))
	assert.True(t, QInQs(nil, specific))
	assert.True(t, QInQs(general, general))
	assert.False(t, QInQs(general, nil))

	assert.True(t, Q1InQs(general[0], specific))
	assert.False(t, Q1InQs(specific[2], general))
}

func TestRestrict(t *testing.T) {
	c, _ := NewClause(NewTerm("mode", num(1, 2), 0, ""), NewTerm("x", ir.True, 0, ""))

	r, ok := Restrict(c, "mode", 0, ir.Number(2))
	require.True(t, ok)
	assert.Equal(t, "{x@0:true}", r.String())
	assert.Len(t, c, 2, "input untouched")

	_, ok = Restrict(c, "mode", 0, ir.Number(3))
	assert.False(t, ok)

	r, ok = Restrict(c, "other", 0, ir.Number(3))
	require.True(t, ok)
	assert.Equal(t, c, r)
}

func TestValidateRejects(t *testing.T) {
	dup := Clause{NewTerm("a", ir.Number(1), 0, ""), NewTerm("a", ir.Number(2), 0, "")}
	assert.ErrorContains(t, dup.Validate(), "share a slot")
	unsorted := Clause{NewTerm("b", ir.Number(1), 0, ""), NewTerm("a", ir.Number(2), 0, "")}
	assert.ErrorContains(t, unsorted.Validate(), "out of order")
}

var (
	attrs  = []string{"a", "b", "c"}
	values = []ir.Value{ir.True, ir.False, ir.Number(1), ir.Number(2), num(1, 2), num(1, 3), num(1, 2, 3)}
)

func randomTerm(r *testutil.Rand) Term {
	return NewTerm(attrs[r.Intn(len(attrs))], values[r.Intn(len(values))], r.Intn(2), "")
}

func randomClause(r *testutil.Rand) Clause {
	var c Clause
	for n := r.Intn(4); n > 0; n-- {
		next, ok := AddQualifier(c.Clone(), randomTerm(r))
		if ok {
			c = next
		}
	}
	return c
}

func TestClauseInvariantsHold(t *testing.T) {
	r := testutil.NewRand(11)
	for i := 0; i < 500; i++ {
		c := randomClause(r)
		require.NoError(t, c.Validate(), "%s", c)

		d := randomClause(r)
		if m, err := MergeClauses(c, d); err == nil {
			require.NoError(t, m.Validate(), "%s ∧ %s", c, d)
		}
	}
}

// QInQs must agree with the slot-by-slot definition.
func TestSubsetLaw(t *testing.T) {
	r := testutil.NewRand(5)
	for i := 0; i < 1000; i++ {
		q, qs := randomClause(r), randomClause(r)
		want := true
		for _, term := range q {
			found := false
			for _, u := range qs {
				if SameSlot(term, u) && ir.Subsumes(term.Value, u.Value) {
					found = true
				}
			}
			want = want && found
		}
		assert.Equal(t, want, QInQs(q, qs), "%s in %s", q, qs)
	}
}

// When qs implies q, every assignment satisfying qs satisfies q.
func TestQInQsIsImplication(t *testing.T) {
	r := testutil.NewRand(9)
	actuals := []ir.Value{ir.Null{}, ir.False, ir.Number(1), ir.Number(2), ir.Number(3)}
	satisfied := func(c Clause, env map[string]ir.Value) bool {
		for _, term := range c {
			v, ok := env[fmt.Sprintf("%s@%d", term.Attribute, term.Level)]
			if !ok {
				v = ir.Null{}
			}
			if !ir.Matches(term.Value, v) {
				return false
			}
		}
		return true
	}
	for i := 0; i < 500; i++ {
		q, qs := randomClause(r), randomClause(r)
		if !QInQs(q, qs) {
			continue
		}
		for j := 0; j < 20; j++ {
			env := map[string]ir.Value{}
			for _, a := range attrs {
				for lvl := 0; lvl < 2; lvl++ {
					env[fmt.Sprintf("%s@%d", a, lvl)] = actuals[r.Intn(len(actuals))]
				}
			}
			if satisfied(qs, env) {
				assert.True(t, satisfied(q, env), "%s implies %s", qs, q)
			}
		}
	}
}
