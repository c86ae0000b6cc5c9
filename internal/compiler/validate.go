package compiler

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/cdlcore/internal/ir"
	"github.com/roach88/cdlcore/internal/pathtree"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedType = "E100" // unsupported type for validation

	// Class errors (E101-E109)
	ErrInvalidClassName  = "E101" // class name must be an identifier starting uppercase
	ErrClassNoVariants   = "E102" // at least one variant required
	ErrEmptyVariant      = "E103" // variant has neither content nor inherit
	ErrInvalidQualifier  = "E104" // empty attribute or negative level
	ErrDuplicateName     = "E105" // duplicate class name
	ErrSelfInheritance   = "E106" // variant inherits its own class
	ErrEmptyContent      = "E107" // content node with neither expression nor children
	ErrInvalidExpression = "E108" // malformed $fn, $ref or $class

	// Program errors (E110-E119)
	ErrEmptyDomain      = "E110" // domain with no values
	ErrContextOutDomain = "E111" // context constant outside its attribute's domain
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates compiled input against schema rules.
// Returns all errors found (does not fail-fast).
// Supports Class and Program types.
func Validate(v any) []ValidationError {
	switch val := v.(type) {
	case *pathtree.Class:
		return validateClass(val)
	case pathtree.Class:
		return validateClass(&val)
	case *Program:
		return validateProgram(val)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type: %T", v),
			Code:    ErrUnsupportedType,
		}}
	}
}

// classNamePattern matches class names: uppercase letter, then letters,
// digits or underscores.
var classNamePattern = regexp.MustCompile(`^[A-Z][a-zA-Z0-9_]*$`)

func validateClass(c *pathtree.Class) []ValidationError {
	var errs []ValidationError
	line := c.Pos.Line()

	// E101: class name
	if !classNamePattern.MatchString(c.Name) {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("invalid class name %q, must start with an uppercase letter", c.Name),
			Code:    ErrInvalidClassName,
			Line:    line,
		})
	}

	// E102: at least one variant required
	if len(c.Variants) == 0 {
		errs = append(errs, ValidationError{
			Field:   c.Name,
			Message: "at least one variant is required",
			Code:    ErrClassNoVariants,
			Line:    line,
		})
	}

	for i, v := range c.Variants {
		field := fmt.Sprintf("%s[%d]", c.Name, i)
		line := v.Pos.Line()

		// E103: variant must contribute something
		if v.Content == nil && len(v.Inherit) == 0 {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "variant has neither content nor inherit",
				Code:    ErrEmptyVariant,
				Line:    line,
			})
		}

		// E104: qualifier terms
		for _, term := range v.Qualifiers {
			if strings.TrimSpace(term.Attribute) == "" || term.Level < 0 {
				errs = append(errs, ValidationError{
					Field:   field + ".qualifier",
					Message: fmt.Sprintf("invalid qualifier %s", term),
					Code:    ErrInvalidQualifier,
					Line:    line,
				})
			}
		}

		// E106: self inheritance
		if slices.Contains(v.Inherit, c.Name) {
			errs = append(errs, ValidationError{
				Field:   field + ".inherit",
				Message: fmt.Sprintf("class %q inherits itself", c.Name),
				Code:    ErrSelfInheritance,
				Line:    line,
			})
		}

		if v.Content != nil {
			errs = append(errs, validateContent(v.Content, field+".content")...)
		}
	}

	return errs
}

// validateContent checks a content subtree, naming fields by dotted path.
func validateContent(c *pathtree.Content, field string) []ValidationError {
	var errs []ValidationError
	line := c.Pos.Line()

	// E107: empty content
	if c.Expr == nil && len(c.Children) == 0 {
		return []ValidationError{{
			Field:   field,
			Message: "content has neither an expression nor children",
			Code:    ErrEmptyContent,
			Line:    line,
		}}
	}

	if c.Expr != nil {
		if msg := checkExpr(c.Expr); msg != "" {
			errs = append(errs, ValidationError{Field: field, Message: msg, Code: ErrInvalidExpression, Line: line})
		}
		return errs
	}

	keys := make([]string, 0, len(c.Children))
	for k := range c.Children {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		errs = append(errs, validateContent(c.Children[k], field+"."+k)...)
	}
	return errs
}

// checkExpr returns a description of what is wrong with e, or "".
func checkExpr(e pathtree.Expr) string {
	switch ex := e.(type) {
	case pathtree.Ref:
		if slices.Contains(ex.Path, "") {
			return fmt.Sprintf("invalid reference %q", strings.Join(ex.Path, "."))
		}
	case pathtree.ClassRef:
		if ex.Class == "" {
			return "empty class reference"
		}
	case pathtree.Func:
		if ex.Name == "" {
			return "function name is required"
		}
		for _, a := range ex.Args {
			if msg := checkExpr(a); msg != "" {
				return msg
			}
		}
	}
	return ""
}

func validateProgram(p *Program) []ValidationError {
	var errs []ValidationError

	// E105: duplicate class name
	seen := make(map[string]bool)
	for i, c := range p.Classes {
		if seen[c.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("class[%d]", i),
				Message: fmt.Sprintf("duplicate class name: %q", c.Name),
				Code:    ErrDuplicateName,
				Line:    c.Pos.Line(),
			})
		}
		seen[c.Name] = true
		errs = append(errs, validateClass(c)...)
	}

	attrs := make([]string, 0, len(p.Domains))
	for attr := range p.Domains {
		attrs = append(attrs, attr)
	}
	slices.Sort(attrs)

	// E110: empty domain
	for _, attr := range attrs {
		if len(p.Domains[attr]) == 0 {
			errs = append(errs, ValidationError{
				Field:   "domain." + attr,
				Message: "domain must list at least one value",
				Code:    ErrEmptyDomain,
			})
		}
	}

	// E111: context constants must lie in their domain
	for level, frame := range p.Context {
		for _, attr := range attrs {
			v, ok := frame[attr]
			if !ok || len(p.Domains[attr]) == 0 {
				continue
			}
			if !slices.ContainsFunc(p.Domains[attr], func(d ir.Value) bool { return ir.Equal(d, v) }) {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("context.%s@%d", attr, level),
					Message: fmt.Sprintf("constant %s is outside the domain of %q", ir.Format(v), attr),
					Code:    ErrContextOutDomain,
				})
			}
		}
	}

	return errs
}
