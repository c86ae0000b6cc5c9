package harness

// QueryTrace is the change of one query's output during a step.
type QueryTrace struct {
	Name    string   `json:"name"`
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
	// Order is the full output order, present when the query is ordered
	// and its order changed.
	Order []string `json:"order,omitempty"`
}

// TraceEvent records one step and what it changed.
type TraceEvent struct {
	Step     int          `json:"step"`
	Op       string       `json:"op"`
	Queries  []QueryTrace `json:"queries,omitempty"`
	Delta    []string     `json:"delta,omitempty"`
	Revision int64        `json:"revision,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	// Trace holds the initial load (step 0) and one event per step.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
