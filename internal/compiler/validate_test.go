package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cdlcore/internal/ir"
	"github.com/roach88/cdlcore/internal/pathtree"
	"github.com/roach88/cdlcore/internal/qualifier"
)

func leaf(v ir.Value) *pathtree.Content {
	return &pathtree.Content{Expr: pathtree.Const{Value: v}}
}

func TestValidateClassValid(t *testing.T) {
	c := &pathtree.Class{
		Name: "Button",
		Variants: []pathtree.Variant{
			{Content: &pathtree.Content{Children: map[string]*pathtree.Content{"x": leaf(ir.Number(1))}}},
			{Inherit: []string{"Base"}},
		},
	}
	assert.Empty(t, Validate(c))
}

func TestValidateClassErrors(t *testing.T) {
	tests := []struct {
		name  string
		class pathtree.Class
		code  string
	}{
		{"lowercase name", pathtree.Class{Name: "button", Variants: []pathtree.Variant{{Inherit: []string{"B"}}}}, ErrInvalidClassName},
		{"no variants", pathtree.Class{Name: "A"}, ErrClassNoVariants},
		{"empty variant", pathtree.Class{Name: "A", Variants: []pathtree.Variant{{}}}, ErrEmptyVariant},
		{"bad qualifier", pathtree.Class{Name: "A", Variants: []pathtree.Variant{{
			Inherit:    []string{"B"},
			Qualifiers: []qualifier.Term{{Attribute: " ", Value: ir.True}},
		}}}, ErrInvalidQualifier},
		{"self inheritance", pathtree.Class{Name: "A", Variants: []pathtree.Variant{{Inherit: []string{"A"}}}}, ErrSelfInheritance},
		{"empty content", pathtree.Class{Name: "A", Variants: []pathtree.Variant{{Content: &pathtree.Content{}}}}, ErrEmptyContent},
		{"bad ref", pathtree.Class{Name: "A", Variants: []pathtree.Variant{{
			Content: &pathtree.Content{Expr: pathtree.Ref{Path: []string{"a", ""}}},
		}}}, ErrInvalidExpression},
		{"nested bad fn", pathtree.Class{Name: "A", Variants: []pathtree.Variant{{
			Content: &pathtree.Content{Expr: pathtree.Func{Name: "f", Args: []pathtree.Expr{pathtree.Func{}}}},
		}}}, ErrInvalidExpression},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(tt.class)
			require.Len(t, errs, 1, "%v", errs)
			assert.Equal(t, tt.code, errs[0].Code)
		})
	}
}

func TestValidateReportsAll(t *testing.T) {
	c := &pathtree.Class{Name: "bad", Variants: []pathtree.Variant{{}, {Inherit: []string{"bad"}}}}
	errs := Validate(c)
	codes := make([]string, len(errs))
	for i, e := range errs {
		codes[i] = e.Code
	}
	assert.Equal(t, []string{ErrInvalidClassName, ErrEmptyVariant, ErrSelfInheritance}, codes)
}

func TestValidateProgram(t *testing.T) {
	a := &pathtree.Class{Name: "A", Variants: []pathtree.Variant{{Inherit: []string{"B"}}}}
	p := &Program{
		Classes: []*pathtree.Class{a, a},
		Context: []map[string]ir.Value{{"m": ir.Number(9)}},
		Domains: pathtree.Domains{"m": {ir.Number(1)}, "n": nil},
	}
	errs := Validate(p)
	codes := make([]string, len(errs))
	for i, e := range errs {
		codes[i] = e.Code
	}
	assert.Equal(t, []string{ErrDuplicateName, ErrEmptyDomain, ErrContextOutDomain}, codes)
}

func TestValidateUnsupportedType(t *testing.T) {
	errs := Validate(42)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnsupportedType, errs[0].Code)
}

func TestValidationErrorFormat(t *testing.T) {
	e := ValidationError{Field: "A[0]", Message: "boom", Code: ErrEmptyVariant, Line: 3}
	assert.Equal(t, "[E103] line 3: A[0]: boom", e.Error())
	e.Line = 0
	assert.Equal(t, "[E103] A[0]: boom", e.Error())
}
