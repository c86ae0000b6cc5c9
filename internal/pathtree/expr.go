package pathtree

import (
	"strings"

	"github.com/roach88/cdlcore/internal/ir"
)

// Expr is a sealed union over the expression kinds a path can hold.
// Only types in this package implement it.
type Expr interface {
	expr()
	// Canonical returns a JSON-ready form used for fingerprints and dumps.
	Canonical() any
}

// Const is a constant value.
type Const struct {
	Value ir.Value
}

// Ref refers to another path of the same object.
type Ref struct {
	Path []string
}

// Func applies a named function to argument expressions.
type Func struct {
	Name string
	Args []Expr
}

// ClassRef instantiates a nested object of the named class.
type ClassRef struct {
	Class string
}

func (Const) expr()    {}
func (Ref) expr()      {}
func (Func) expr()     {}
func (ClassRef) expr() {}

func (e Const) Canonical() any {
	v := e.Value
	if v == nil {
		v = ir.Null{}
	}
	return map[string]any{"const": v}
}

func (e Ref) Canonical() any {
	return map[string]any{"ref": strings.Join(e.Path, ".")}
}

func (e Func) Canonical() any {
	args := make([]any, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.Canonical()
	}
	return map[string]any{"fn": e.Name, "args": args}
}

func (e ClassRef) Canonical() any {
	return map[string]any{"class": e.Class}
}

// Fingerprint returns the stable identity of an expression.
func Fingerprint(e Expr) string {
	return ir.MustFingerprint(ir.DomainExpr, e.Canonical())
}
