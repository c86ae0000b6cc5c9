package pathtree

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue/token"
)

// ErrorKind groups compilation errors for reporting.
type ErrorKind string

const (
	KindUnknownClass      ErrorKind = "unknown-class"
	KindCyclicInheritance ErrorKind = "cyclic-inheritance"
	KindDuplicateVariant  ErrorKind = "duplicate-variant"
	KindDuplicateClass    ErrorKind = "duplicate-class"
	KindUnsatisfiable     ErrorKind = "unsatisfiable-variant"
	KindMalformed         ErrorKind = "malformed"
)

// Compilation error codes (E200-E299).
const (
	ErrUnknownClass      = "E201"
	ErrCyclicInheritance = "E202"
	ErrDuplicateVariant  = "E203"
	ErrDuplicateClass    = "E204"
	ErrUnsatisfiable     = "E205"
	ErrMalformed         = "E206"
)

var kindCodes = map[ErrorKind]string{
	KindUnknownClass:      ErrUnknownClass,
	KindCyclicInheritance: ErrCyclicInheritance,
	KindDuplicateVariant:  ErrDuplicateVariant,
	KindDuplicateClass:    ErrDuplicateClass,
	KindUnsatisfiable:     ErrUnsatisfiable,
	KindMalformed:         ErrMalformed,
}

// CompileError is a semantic error found while compiling classes. The
// offending subtree is skipped; compilation continues.
type CompileError struct {
	Code    string    `json:"code"`
	Kind    ErrorKind `json:"kind"`
	Class   string    `json:"class,omitempty"`
	Path    []string  `json:"path,omitempty"`
	Message string    `json:"message"`
	Pos     token.Pos `json:"-"`
}

func (e *CompileError) Error() string {
	var b strings.Builder
	if e.Pos.IsValid() {
		fmt.Fprintf(&b, "%s:%d:%d: ", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
	}
	fmt.Fprintf(&b, "[%s] ", e.Code)
	if e.Class != "" {
		b.WriteString(e.Class)
		if len(e.Path) > 0 {
			b.WriteString("." + strings.Join(e.Path, "."))
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ErrorReporter collects compilation errors keyed by kind.
type ErrorReporter struct {
	all    []*CompileError
	byKind map[ErrorKind][]*CompileError
}

func newErrorReporter() *ErrorReporter {
	return &ErrorReporter{byKind: make(map[ErrorKind][]*CompileError)}
}

// Report records an error. The code is derived from the kind when unset.
func (r *ErrorReporter) Report(e *CompileError) {
	if e.Code == "" {
		e.Code = kindCodes[e.Kind]
	}
	r.all = append(r.all, e)
	r.byKind[e.Kind] = append(r.byKind[e.Kind], e)
}

// Reportf records an error built from a format string.
func (r *ErrorReporter) Reportf(kind ErrorKind, class string, pos token.Pos, format string, args ...any) {
	r.Report(&CompileError{Kind: kind, Class: class, Pos: pos, Message: fmt.Sprintf(format, args...)})
}

// Errors returns every error in report order.
func (r *ErrorReporter) Errors() []*CompileError {
	return r.all
}

// ByKind returns the errors of one kind.
func (r *ErrorReporter) ByKind(kind ErrorKind) []*CompileError {
	return r.byKind[kind]
}

// Len returns the number of errors.
func (r *ErrorReporter) Len() int {
	return len(r.all)
}

// InvariantError reports a broken internal invariant. It is raised with
// panic.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("pathtree: invariant violated in %s: %s", e.Op, e.Detail)
}
