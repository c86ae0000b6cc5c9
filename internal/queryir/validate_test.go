package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cdlcore/internal/ir"
)

func TestValidate_ValidQuery(t *testing.T) {
	result := Validate(sampleQuery())
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Problems)
	assert.NoError(t, result.Err())
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  string
	}{
		{"nil", nil, "nil query"},
		{"nil sub", And{Subs: []Query{nil}}, "nil query"},
		{"empty and", And{Path: "a"}, "no sub-queries"},
		{"empty or", Or{Path: "a"}, "no sub-queries"},
		{"path not extending", And{Path: "a", Subs: []Query{Project{Path: "b"}}}, "does not extend"},
		{"sibling prefix", And{Path: "a", Subs: []Query{Project{Path: "ab"}}}, "does not extend"},
		{"projection under or", Or{Subs: []Query{
			And{Path: "x", Subs: []Query{Project{Path: "x.y"}}},
		}}, "below an or"},
		{"select without value", Select{Path: "a"}, "has no value"},
		{"empty segment", Select{Path: "a..b", Values: ir.True}, "invalid path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.query)
			assert.False(t, result.IsValid)
			require.NotEmpty(t, result.Problems)
			assert.Contains(t, result.Problems[0], tt.want)
			assert.Error(t, result.Err())
		})
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	result := Validate(And{Path: "a", Subs: []Query{
		Select{Path: "b"},
		Or{Path: "a", Subs: []Query{Project{Path: "a"}}},
	}})
	assert.Len(t, result.Problems, 3)
}
