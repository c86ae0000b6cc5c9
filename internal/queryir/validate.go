package queryir

import (
	"fmt"
	"strings"
)

// ValidationResult lists the structural problems of a query.
type ValidationResult struct {
	// IsValid is true when Problems is empty.
	IsValid bool

	Problems []string
}

// Err returns the problems as a single error, or nil.
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	return fmt.Errorf("invalid query: %s", strings.Join(r.Problems, "; "))
}

// Validate checks the structural rules a query must follow:
//  1. at least one node, and no nil sub-queries
//  2. And and Or have at least one sub-query
//  3. every child path extends its parent's path
//  4. no projection below an Or
//  5. Select carries a value
//  6. paths have no empty segments
//
// Validate is a pure function with no side effects.
func Validate(query Query) ValidationResult {
	v := &validator{problems: []string{}}
	v.validateQuery(query, "", false)
	return ValidationResult{
		IsValid:  len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query, parentPath string, underOr bool) {
	if q == nil {
		v.addProblem("nil query node")
		return
	}

	path := q.NodePath()
	if !validPath(path) {
		v.addProblem("invalid path %q in %s", path, Format(q))
	}
	if !Extends(path, parentPath) {
		v.addProblem("path %q does not extend parent path %q", path, parentPath)
	}

	switch n := q.(type) {
	case Select:
		if n.Values == nil {
			v.addProblem("select on %q has no value", n.Path)
		}
	case Project:
		if underOr {
			v.addProblem("projection %q below an or node", n.Path)
		}
	case And:
		v.validateSubs(n.Subs, n.Path, "and", underOr)
	case Or:
		v.validateSubs(n.Subs, n.Path, "or", true)
	default:
		v.addProblem("unknown query type: %T", q)
	}
}

func (v *validator) validateSubs(subs []Query, path, kind string, underOr bool) {
	if len(subs) == 0 {
		v.addProblem("%s on %q has no sub-queries", kind, path)
	}
	for _, sub := range subs {
		v.validateQuery(sub, path, underOr)
	}
}

func validPath(path string) bool {
	if path == "" {
		return true
	}
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return false
		}
	}
	return true
}
