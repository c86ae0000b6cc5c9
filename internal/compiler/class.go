package compiler

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/cdlcore/internal/ir"
	"github.com/roach88/cdlcore/internal/pathtree"
	"github.com/roach88/cdlcore/internal/qualifier"
)

// Keys of an expression struct in class content. A struct carrying none
// of them is a nested object.
const (
	keyConst    = "$const"
	keyRef      = "$ref"
	keyFn       = "$fn"
	keyArgs     = "$args"
	keyClass    = "$class"
	keyWritable = "$writable"
)

// CompileClass parses a CUE value into a Class.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value is the class's variant list, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`class: Button: [{content: {label: "ok"}}]`)
//	c, err := CompileClass(v.LookupPath(cue.ParsePath("class.Button")))
//
// A struct in place of the list is a class with a single variant.
func CompileClass(v cue.Value) (*pathtree.Class, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	c := &pathtree.Class{Pos: v.Pos()}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		c.Name = labels[len(labels)-1].Unquoted()
	}

	if v.IncompleteKind() == cue.StructKind {
		variant, err := parseVariant(v, c.Name)
		if err != nil {
			return nil, err
		}
		c.Variants = append(c.Variants, variant)
		return c, nil
	}

	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{
			Field:   "class",
			Message: "class must be a list of variants or a single variant struct",
			Pos:     v.Pos(),
		}
	}
	for iter.Next() {
		variant, err := parseVariant(iter.Value(), c.Name)
		if err != nil {
			return nil, err
		}
		c.Variants = append(c.Variants, variant)
	}
	return c, nil
}

func parseVariant(v cue.Value, class string) (pathtree.Variant, error) {
	variant := pathtree.Variant{Pos: v.Pos()}

	iter, err := v.Fields()
	if err != nil {
		return variant, formatCUEError(err)
	}
	for iter.Next() {
		switch iter.Label() {
		case "qualifier", "inherit", "content":
		default:
			return variant, &CompileError{
				Field:   "variant." + iter.Label(),
				Message: "unknown variant field (expected qualifier, inherit or content)",
				Pos:     iter.Value().Pos(),
			}
		}
	}

	// Parse qualifier (optional)
	if qv := v.LookupPath(cue.ParsePath("qualifier")); qv.Exists() {
		variant.Qualifiers, err = parseQualifiers(qv, class)
		if err != nil {
			return variant, err
		}
	}

	// Parse inherit (optional) - a single class name or a list
	if iv := v.LookupPath(cue.ParsePath("inherit")); iv.Exists() {
		if name, err := iv.String(); err == nil {
			variant.Inherit = []string{name}
		} else {
			list, err := iv.List()
			if err != nil {
				return variant, &CompileError{
					Field:   "inherit",
					Message: "inherit must be a class name or a list of class names",
					Pos:     iv.Pos(),
				}
			}
			for list.Next() {
				name, err := list.Value().String()
				if err != nil {
					return variant, formatCUEError(err)
				}
				variant.Inherit = append(variant.Inherit, name)
			}
		}
	}

	// Parse content (optional)
	if cv := v.LookupPath(cue.ParsePath("content")); cv.Exists() {
		variant.Content, err = parseContent(cv)
		if err != nil {
			return variant, err
		}
	}

	return variant, nil
}

// parseQualifiers reads a struct whose labels are "attr" (level 0) or
// "attr@level".
func parseQualifiers(v cue.Value, class string) ([]qualifier.Term, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var terms []qualifier.Term
	for iter.Next() {
		attr, level, err := ParseSlot(iter.Label())
		if err != nil {
			return nil, &CompileError{Field: "qualifier", Message: err.Error(), Pos: iter.Value().Pos()}
		}
		val, err := ValueOf(iter.Value())
		if err != nil {
			return nil, err
		}
		terms = append(terms, qualifier.NewTerm(attr, val, level, class))
	}
	return terms, nil
}

// ParseSlot splits a qualifier label "attr@level" into its parts. A label
// without "@" is at level 0.
func ParseSlot(label string) (attr string, level int, err error) {
	i := strings.LastIndexByte(label, '@')
	if i < 0 {
		attr = label
	} else {
		attr = label[:i]
		level, err = strconv.Atoi(label[i+1:])
		if err != nil || level < 0 {
			return "", 0, fmt.Errorf("invalid level in %q: must be a non-negative integer", label)
		}
	}
	if attr == "" {
		return "", 0, fmt.Errorf("empty attribute in %q", label)
	}
	return attr, level, nil
}

func parseContent(v cue.Value) (*pathtree.Content, error) {
	if v.IncompleteKind() != cue.StructKind {
		val, err := ValueOf(v)
		if err != nil {
			return nil, err
		}
		return &pathtree.Content{Expr: pathtree.Const{Value: val}, Pos: v.Pos()}, nil
	}

	labels, err := fieldLabels(v)
	if err != nil {
		return nil, err
	}
	if slices.ContainsFunc(labels, func(l string) bool { return strings.HasPrefix(l, "$") }) {
		return parseExprStruct(v, labels)
	}

	c := &pathtree.Content{Children: make(map[string]*pathtree.Content, len(labels)), Pos: v.Pos()}
	iter, _ := v.Fields()
	for iter.Next() {
		child, err := parseContent(iter.Value())
		if err != nil {
			return nil, err
		}
		c.Children[iter.Label()] = child
	}
	return c, nil
}

// parseExprStruct reads {$const|$ref|$fn|$class: ..., $writable?: bool}.
func parseExprStruct(v cue.Value, labels []string) (*pathtree.Content, error) {
	c := &pathtree.Content{Pos: v.Pos()}
	kinds := 0
	for _, l := range labels {
		switch l {
		case keyConst, keyRef, keyFn, keyClass:
			kinds++
		case keyArgs, keyWritable:
		default:
			return nil, &CompileError{
				Field:   "content." + l,
				Message: "expression structs may not mix $-keys with plain fields",
				Pos:     v.Pos(),
			}
		}
	}
	if kinds != 1 {
		return nil, &CompileError{
			Field:   "content",
			Message: "expression struct needs exactly one of $const, $ref, $fn, $class",
			Pos:     v.Pos(),
		}
	}

	if wv := lookupLabel(v, keyWritable); wv.Exists() {
		w, err := wv.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		c.Writable = w
	}

	var err error
	switch {
	case slices.Contains(labels, keyConst):
		var val ir.Value
		val, err = ValueOf(lookupLabel(v, keyConst))
		c.Expr = pathtree.Const{Value: val}
	case slices.Contains(labels, keyRef):
		var ref string
		ref, err = lookupLabel(v, keyRef).String()
		c.Expr = pathtree.Ref{Path: strings.Split(ref, ".")}
	case slices.Contains(labels, keyClass):
		var name string
		name, err = lookupLabel(v, keyClass).String()
		c.Expr = pathtree.ClassRef{Class: name}
	default:
		c.Expr, err = parseFunc(v)
	}
	if err != nil {
		return nil, formatCUEError(err)
	}
	return c, nil
}

func parseFunc(v cue.Value) (pathtree.Expr, error) {
	name, err := lookupLabel(v, keyFn).String()
	if err != nil {
		return nil, err
	}
	fn := pathtree.Func{Name: name}
	av := lookupLabel(v, keyArgs)
	if !av.Exists() {
		return fn, nil
	}
	iter, err := av.List()
	if err != nil {
		return nil, err
	}
	for iter.Next() {
		arg, err := parseContent(iter.Value())
		if err != nil {
			return nil, err
		}
		if arg.Expr == nil {
			return nil, &CompileError{Field: keyArgs, Message: "function arguments must be expressions", Pos: iter.Value().Pos()}
		}
		fn.Args = append(fn.Args, arg.Expr)
	}
	return fn, nil
}

// ValueOf converts a concrete CUE scalar or list into a Value. Lists become
// sets.
func ValueOf(v cue.Value) (ir.Value, error) {
	switch v.Kind() {
	case cue.NullKind:
		return ir.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.IntKind, cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Number(f), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var members []ir.Value
		for iter.Next() {
			if iter.Value().Kind() == cue.ListKind {
				return nil, &CompileError{Field: "value", Message: "nested lists are not allowed", Pos: iter.Value().Pos()}
			}
			m, err := ValueOf(iter.Value())
			if err != nil {
				return nil, err
			}
			members = append(members, m)
		}
		return ir.NewSet(members...), nil
	default:
		return nil, &CompileError{
			Field:   "value",
			Message: fmt.Sprintf("unsupported value kind: %v (values must be concrete)", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func fieldLabels(v cue.Value) ([]string, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var labels []string
	for iter.Next() {
		labels = append(labels, iter.Label())
	}
	return labels, nil
}

// lookupLabel finds a field by its exact label. Labels starting with $
// are looked up by iteration rather than path parsing.
func lookupLabel(v cue.Value, label string) cue.Value {
	iter, err := v.Fields()
	if err == nil {
		for iter.Next() {
			if iter.Label() == label {
				return iter.Value()
			}
		}
	}
	return cue.Value{}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
