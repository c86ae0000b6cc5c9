package resource

import (
	"fmt"

	"github.com/roach88/cdlcore/internal/ir"
)

// Element is one keyed value of a resource. In a write, a nil Value
// deletes the element.
type Element struct {
	Ident string
	Value ir.Value
}

// Deleted reports whether the element records a deletion.
func (e Element) Deleted() bool {
	return e.Value == nil
}

// Snapshot is the state of a resource at a revision. Elements are sorted
// by Ident.
type Snapshot struct {
	Resource string
	Revision int64
	Elements []Element
}

// Update describes one applied write.
type Update struct {
	Resource string
	Revision int64
	ClientID string
	Changes  []Element
}

// validateChanges rejects empty writes and writes naming an element
// twice.
func validateChanges(resource string, changes []Element) error {
	if resource == "" {
		return &Error{Code: ErrCodeInvalidWrite, Op: "write", Message: "empty resource name"}
	}
	if len(changes) == 0 {
		return &Error{Code: ErrCodeInvalidWrite, Op: "write", Resource: resource, Message: "no changes"}
	}
	seen := make(map[string]bool, len(changes))
	for _, c := range changes {
		if c.Ident == "" {
			return &Error{Code: ErrCodeInvalidWrite, Op: "write", Resource: resource, Message: "empty element ident"}
		}
		if seen[c.Ident] {
			return &Error{
				Code:     ErrCodeInvalidWrite,
				Op:       "write",
				Resource: resource,
				Message:  fmt.Sprintf("element %q written twice", c.Ident),
			}
		}
		seen[c.Ident] = true
	}
	return nil
}
