package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted run of the query runtime.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Data is the element tree loaded before any query is attached.
	// Parents must be listed before their children.
	Data []ElementSpec `yaml:"data,omitempty"`

	// Queries are attached in order after Data is loaded.
	Queries []QuerySpec `yaml:"queries,omitempty"`

	// Steps are applied in order. The graph settles after each one.
	Steps []Step `yaml:"steps,omitempty"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// ElementSpec describes one element. Attr is relative to the parent's
// path, or to the root when Parent is empty; it may be dotted.
type ElementSpec struct {
	Label  string `yaml:"label"`
	Parent string `yaml:"parent,omitempty"`
	Attr   string `yaml:"attr"`
	Value  any    `yaml:"value,omitempty"`
}

// QuerySpec attaches a query to the elements at Source. Without Query the
// source's elements pass through unchanged. Order sorts the output.
type QuerySpec struct {
	Name   string     `yaml:"name"`
	Source string     `yaml:"source"`
	Query  *QueryNode `yaml:"query,omitempty"`
	Order  []OrderKey `yaml:"order,omitempty"`
}

// OrderKey is one sort key of a query's comparison.
type OrderKey struct {
	Path string `yaml:"path"`
	Desc bool   `yaml:"desc,omitempty"`
}

// QueryNode is the YAML form of a query. Exactly one of Select, Project,
// And and Or is set.
type QueryNode struct {
	Path    string      `yaml:"path,omitempty"`
	Select  *yaml.Node  `yaml:"select,omitempty"`
	Project bool        `yaml:"project,omitempty"`
	And     []QueryNode `yaml:"and,omitempty"`
	Or      []QueryNode `yaml:"or,omitempty"`
}

// Step is one scenario action. Exactly one field is set.
type Step struct {
	Add       *ElementSpec  `yaml:"add,omitempty"`
	Set       *SetStep      `yaml:"set,omitempty"`
	Remove    string        `yaml:"remove,omitempty"`
	Suspend   string        `yaml:"suspend,omitempty"`
	Unsuspend string        `yaml:"unsuspend,omitempty"`
	Interval  *IntervalStep `yaml:"interval,omitempty"`
	Write     *WriteStep    `yaml:"write,omitempty"`
}

// SetStep replaces the value of a labeled element.
type SetStep struct {
	Label string `yaml:"label"`
	Value any    `yaml:"value"`
}

// IntervalStep adds, removes or modifies a labeled interval of the
// scenario's disjoint interval set.
type IntervalStep struct {
	Op       string  `yaml:"op"`
	ID       int64   `yaml:"id"`
	Low      float64 `yaml:"low,omitempty"`
	High     float64 `yaml:"high,omitempty"`
	LowOpen  bool    `yaml:"low_open,omitempty"`
	HighOpen bool    `yaml:"high_open,omitempty"`
}

// Interval step operations.
const (
	IntervalAdd    = "add"
	IntervalRemove = "remove"
	IntervalModify = "modify"
)

// WriteStep writes elements of a resource. Delete lists element idents to
// remove.
type WriteStep struct {
	Resource string         `yaml:"resource"`
	Set      map[string]any `yaml:"set,omitempty"`
	Delete   []string       `yaml:"delete,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Query names the query (matches, order, projection, no_redundant).
	Query string `yaml:"query,omitempty"`

	// Elements are the expected element labels.
	Elements []string `yaml:"elements,omitempty"`

	// Coverings are the expected coverings in start order.
	Coverings []string `yaml:"coverings,omitempty"`

	// Resource names the resource (resource_state).
	Resource string `yaml:"resource,omitempty"`

	// Expect holds the expected resource elements by ident.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Revision is the expected resource revision; 0 skips the check.
	Revision int64 `yaml:"revision,omitempty"`
}

// Assertion type constants.
const (
	AssertMatches       = "matches"
	AssertOrder         = "order"
	AssertProjection    = "projection"
	AssertNoRedundant   = "no_redundant"
	AssertCoverings     = "coverings"
	AssertResourceState = "resource_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and that
// labels and query names resolve.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	labels := make(map[string]bool)
	for i, e := range s.Data {
		if err := validateElement(e, labels); err != nil {
			return fmt.Errorf("data[%d]: %w", i, err)
		}
		labels[e.Label] = true
	}

	queries := make(map[string]bool)
	for i, q := range s.Queries {
		if q.Name == "" {
			return fmt.Errorf("queries[%d]: name is required", i)
		}
		if queries[q.Name] {
			return fmt.Errorf("queries[%d]: duplicate query name %q", i, q.Name)
		}
		if q.Source == "" {
			return fmt.Errorf("queries[%d]: source is required", i)
		}
		if q.Query != nil {
			if err := validateQueryNode(q.Query); err != nil {
				return fmt.Errorf("queries[%d].query: %w", i, err)
			}
		}
		for j, k := range q.Order {
			if k.Path == "" {
				return fmt.Errorf("queries[%d].order[%d]: path is required", i, j)
			}
		}
		queries[q.Name] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(step, labels, queries); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, queries); err != nil {
			return err
		}
	}

	return nil
}

func validateElement(e ElementSpec, labels map[string]bool) error {
	if e.Label == "" {
		return fmt.Errorf("label is required")
	}
	if labels[e.Label] {
		return fmt.Errorf("duplicate label %q", e.Label)
	}
	if e.Parent != "" && !labels[e.Parent] {
		return fmt.Errorf("unknown parent %q", e.Parent)
	}
	if e.Attr == "" {
		return fmt.Errorf("attr is required")
	}
	return nil
}

func validateQueryNode(n *QueryNode) error {
	set := 0
	if n.Select != nil {
		set++
	}
	if n.Project {
		set++
	}
	if n.And != nil {
		set++
	}
	if n.Or != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("exactly one of select, project, and, or is required (got %d)", set)
	}
	for i := range n.And {
		if err := validateQueryNode(&n.And[i]); err != nil {
			return fmt.Errorf("and[%d]: %w", i, err)
		}
	}
	for i := range n.Or {
		if err := validateQueryNode(&n.Or[i]); err != nil {
			return fmt.Errorf("or[%d]: %w", i, err)
		}
	}
	return nil
}

// validateStep checks a step. Labels added by a step are known to later
// steps. Removed labels stay known here; using one fails at run time.
func validateStep(step Step, labels, queries map[string]bool) error {
	set := 0
	if step.Add != nil {
		set++
		if err := validateElement(*step.Add, labels); err != nil {
			return fmt.Errorf("add: %w", err)
		}
		labels[step.Add.Label] = true
	}
	if step.Set != nil {
		set++
		if !labels[step.Set.Label] {
			return fmt.Errorf("set: unknown label %q", step.Set.Label)
		}
	}
	if step.Remove != "" {
		set++
		if !labels[step.Remove] {
			return fmt.Errorf("remove: unknown label %q", step.Remove)
		}
	}
	for _, name := range []string{step.Suspend, step.Unsuspend} {
		if name != "" {
			set++
			if !queries[name] {
				return fmt.Errorf("unknown query %q", name)
			}
		}
	}
	if step.Interval != nil {
		set++
		switch step.Interval.Op {
		case IntervalAdd, IntervalRemove, IntervalModify:
		default:
			return fmt.Errorf("interval: unknown op %q", step.Interval.Op)
		}
	}
	if step.Write != nil {
		set++
		if step.Write.Resource == "" {
			return fmt.Errorf("write: resource is required")
		}
		if len(step.Write.Set) == 0 && len(step.Write.Delete) == 0 {
			return fmt.Errorf("write: set or delete is required")
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one action is required (got %d)", set)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, queries map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertMatches, AssertOrder, AssertProjection, AssertNoRedundant:
		if a.Query == "" {
			return fmt.Errorf("assertions[%d]: query is required for %s", index, a.Type)
		}
		if !queries[a.Query] {
			return fmt.Errorf("assertions[%d]: unknown query %q", index, a.Query)
		}
	case AssertCoverings:
	case AssertResourceState:
		if a.Resource == "" {
			return fmt.Errorf("assertions[%d]: resource is required for resource_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
