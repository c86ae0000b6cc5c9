package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cdlcore/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for
// canonical JSON serialization. ir.MarshalCanonical only handles IR types
// and primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"step": event.Step,
			"op":   event.Op,
		}
		if len(event.Queries) > 0 {
			queries := make([]any, len(event.Queries))
			for j, q := range event.Queries {
				qm := map[string]any{"name": q.Name}
				if q.Added != nil {
					qm["added"] = q.Added
				}
				if q.Removed != nil {
					qm["removed"] = q.Removed
				}
				if q.Order != nil {
					qm["order"] = q.Order
				}
				queries[j] = qm
			}
			eventMap["queries"] = queries
		}
		if len(event.Delta) > 0 {
			eventMap["delta"] = event.Delta
		}
		if event.Revision != 0 {
			eventMap["revision"] = event.Revision
		}
		traceList[i] = eventMap
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
}

// MarshalTrace renders a result's trace as canonical JSON.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden runs a scenario and checks its trace against
// testdata/golden/<name>.golden. Regenerate with -update.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's trace against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
