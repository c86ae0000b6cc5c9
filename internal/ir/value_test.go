package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSetNormalizes(t *testing.T) {
	s := NewSet(String("b"), String("a"), String("b"))
	assert.Equal(t, Set{String("a"), String("b")}, s)

	// single member collapses
	assert.Equal(t, Number(1), NewSet(Number(1), Number(1)))

	// nested sets flatten
	nested := NewSet(Set{Number(1), Number(2)}, Number(3))
	assert.Equal(t, Set{Number(1), Number(2), Number(3)}, nested)

	empty := NewSet()
	require.IsType(t, Set{}, empty)
	assert.Len(t, empty.(Set), 0)
}

func TestCompareKindOrder(t *testing.T) {
	ordered := []Value{
		Null{},
		False,
		True,
		Number(math.Inf(-1)),
		Number(-2),
		Number(0.5),
		Number(math.Inf(1)),
		String(""),
		String("a"),
		Set{Number(1), Number(2)},
		Set{Number(1), Number(3)},
	}
	for i := range ordered {
		for j := range ordered {
			got := Compare(ordered[i], ordered[j])
			switch {
			case i < j:
				assert.Negative(t, got, "%s < %s", Format(ordered[i]), Format(ordered[j]))
			case i > j:
				assert.Positive(t, got, "%s > %s", Format(ordered[i]), Format(ordered[j]))
			default:
				assert.Zero(t, got)
			}
		}
	}
}

func TestCompareNilIsNull(t *testing.T) {
	assert.Zero(t, Compare(nil, Null{}))
	assert.True(t, Equal(nil, Null{}))
}

func TestIsFalse(t *testing.T) {
	assert.True(t, IsFalse(nil))
	assert.True(t, IsFalse(Null{}))
	assert.True(t, IsFalse(False))
	assert.True(t, IsFalse(Set{}))

	assert.False(t, IsFalse(True))
	assert.False(t, IsFalse(Number(0)))
	assert.False(t, IsFalse(String("")))
	assert.False(t, IsFalse(Set{Number(1), Number(2)}))
}

func TestMembers(t *testing.T) {
	assert.Equal(t, []Value{String("x")}, Members(String("x")))
	s := Set{Number(1), Number(2)}
	assert.Equal(t, []Value(s), Members(s))
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   Value
		want string
	}{
		{Null{}, "null"},
		{True, "true"},
		{Number(3), "3"},
		{Number(-0.25), "-0.25"},
		{Number(math.Inf(1)), "Infinity"},
		{Number(math.Inf(-1)), "-Infinity"},
		{String("a b"), `"a b"`},
		{Set{Number(1), String("a")}, `o(1,"a")`},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.in))
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "set", KindSet.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}
