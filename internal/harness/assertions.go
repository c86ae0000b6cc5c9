package harness

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/cdlcore/internal/ir"
	"github.com/roach88/cdlcore/internal/querycalc"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Subject  string // Query or resource the assertion is about
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Subject != "" {
		fmt.Fprintf(&buf, " (%s)", e.Subject)
	}
	buf.WriteByte('\n')
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	return buf.String()
}

func (h *Harness) query(name string) (*queryRun, error) {
	q, ok := h.queries[name]
	if !ok {
		return nil, fmt.Errorf("unknown query %q", name)
	}
	return q, nil
}

func listFailure(typ, subject string, expected, actual []string) error {
	if slices.Equal(expected, actual) {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Subject:  subject,
		Expected: fmt.Sprintf("%v", expected),
		Actual:   fmt.Sprintf("%v", actual),
	}
}

// assertMatches compares the query's output set, by label in ID order.
func (h *Harness) assertMatches(a Assertion) error {
	q, err := h.query(a.Query)
	if err != nil {
		return err
	}
	return listFailure(AssertMatches, a.Query, sortedLabels(a.Elements, h), h.labelsOrEmpty(q.collector.Matches()))
}

// assertOrder compares the query's output in comparison order.
func (h *Harness) assertOrder(a Assertion) error {
	q, err := h.query(a.Query)
	if err != nil {
		return err
	}
	if q.ordered == nil {
		return fmt.Errorf("query %q has no order", a.Query)
	}
	return listFailure(AssertOrder, a.Query, orEmpty(a.Elements), h.labelsOrEmpty(q.ordered.Elements()))
}

// assertProjection compares the union of the projection matches.
func (h *Harness) assertProjection(a Assertion) error {
	q, err := h.query(a.Query)
	if err != nil {
		return err
	}
	ps := q.projections()
	if ps == nil {
		return fmt.Errorf("query %q has no query stage", a.Query)
	}
	return listFailure(AssertProjection, a.Query, sortedLabels(a.Elements, h), h.labelsOrEmpty(projectionMatches(ps)))
}

// projectionMatches unites the matches of every projection of ps. A
// suspended source has none.
func projectionMatches(ps querycalc.ProjectionSource) []int64 {
	if ps.IsSuspendedProjection() {
		return nil
	}
	seen := make(map[int64]bool)
	for _, c := range ps.ProjectionCalcs() {
		for _, id := range ps.GetProjMatches(c) {
			seen[id] = true
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

func (h *Harness) assertNoRedundant(a Assertion) error {
	q, err := h.query(a.Query)
	if err != nil {
		return err
	}
	n := q.collector.Redundant()
	if n == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertNoRedundant,
		Subject:  a.Query,
		Expected: "no redundant deltas",
		Actual:   fmt.Sprintf("%d redundant deltas", n),
	}
}

func (h *Harness) assertCoverings(a Assertion) error {
	actual := []string{}
	if h.intervals != nil {
		for _, c := range h.intervals.Coverings() {
			actual = append(actual, c.Interval.String())
		}
	}
	return listFailure(AssertCoverings, "", orEmpty(a.Coverings), actual)
}

func (h *Harness) assertResourceState(ctx context.Context, a Assertion) error {
	snap, err := h.manager.Load(a.Resource).Wait(ctx)
	if err != nil {
		return &AssertionError{
			Type:     AssertResourceState,
			Subject:  a.Resource,
			Expected: "resource loads",
			Actual:   fmt.Sprintf("load error: %v", err),
		}
	}

	if a.Revision != 0 && snap.Revision != a.Revision {
		return &AssertionError{
			Type:     AssertResourceState,
			Subject:  a.Resource,
			Expected: fmt.Sprintf("revision %d", a.Revision),
			Actual:   fmt.Sprintf("revision %d", snap.Revision),
		}
	}

	expected := make([]string, 0, len(a.Expect))
	for _, ident := range slices.Sorted(maps.Keys(a.Expect)) {
		v, err := ir.FromGo(a.Expect[ident])
		if err != nil {
			return fmt.Errorf("resource %q: expect %q: %w", a.Resource, ident, err)
		}
		expected = append(expected, ident+"="+ir.Format(v))
	}
	actual := make([]string, 0, len(snap.Elements))
	for _, e := range snap.Elements {
		actual = append(actual, e.Ident+"="+ir.Format(e.Value))
	}
	return listFailure(AssertResourceState, a.Resource, expected, actual)
}

// sortedLabels orders labels the way the runtime orders their elements.
// Unknown labels sort last, by name.
func sortedLabels(labels []string, h *Harness) []string {
	out := slices.Clone(orEmpty(labels))
	slices.SortStableFunc(out, func(a, b string) int {
		ia, oka := h.labels[a]
		ib, okb := h.labels[b]
		switch {
		case oka && okb:
			return cmp.Compare(ia, ib)
		case oka:
			return -1
		case okb:
			return 1
		default:
			return strings.Compare(a, b)
		}
	})
	return out
}

func (h *Harness) labelsOrEmpty(ids []int64) []string {
	return orEmpty(h.labelsOf(ids))
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// EvaluateAssertions evaluates all assertions against the harness state.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(ctx context.Context, h *Harness, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertMatches:
			err = h.assertMatches(assertion)
		case AssertOrder:
			err = h.assertOrder(assertion)
		case AssertProjection:
			err = h.assertProjection(assertion)
		case AssertNoRedundant:
			err = h.assertNoRedundant(assertion)
		case AssertCoverings:
			err = h.assertCoverings(assertion)
		case AssertResourceState:
			err = h.assertResourceState(ctx, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
