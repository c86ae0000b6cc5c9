package interval

import "fmt"

// InvariantError reports a broken internal invariant. It is raised with
// panic: it indicates a bug, not a recoverable condition.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("interval: invariant violated in %s: %s", e.Op, e.Detail)
}
