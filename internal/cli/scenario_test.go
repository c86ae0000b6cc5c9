package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pricesScenario = `name: prices
description: "Two writes to one resource"
steps:
  - write: {resource: prices, set: {a: 1, b: 2}}
  - write: {resource: prices, delete: [b]}
assertions:
  - {type: resource_state, resource: prices, revision: 2, expect: {a: 1}}
`

const wrongRevisionScenario = `name: wrong_revision
description: "Asserts a revision that is never reached"
steps:
  - write: {resource: prices, set: {a: 1}}
assertions:
  - {type: resource_state, resource: prices, revision: 5, expect: {a: 1}}
`

// scenarioDir lays out <root>/scenarios/<file> so the default golden
// directory is <root>/golden.
func scenarioDir(t *testing.T, files map[string]string) (root, dir string) {
	t.Helper()
	root = t.TempDir()
	dir = filepath.Join(root, "scenarios")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return root, dir
}

func executeScenario(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewScenarioCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestScenarioPasses(t *testing.T) {
	output, err := executeScenario(t, "text", filepath.Join("..", "harness", "testdata", "scenarios", "tag_projection.yaml"))
	require.NoError(t, err)
	assert.Contains(t, output, "✓ tag_projection")
	assert.Contains(t, output, "1 passed, 0 failed, 1 total")
}

func TestScenarioGoldenRoundTrip(t *testing.T) {
	root, dir := scenarioDir(t, map[string]string{"prices.yaml": pricesScenario})
	goldenPath := filepath.Join(root, "golden", "prices.golden")

	output, err := executeScenario(t, "text", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, output, "✓ prices (golden updated)")

	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name":"prices"`)
	assert.Contains(t, string(golden), `"op":"write prices"`)

	output, err = executeScenario(t, "json", dir)
	require.NoError(t, err)
	var resp struct {
		Status string          `json:"status"`
		Data   ScenarioSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "match", resp.Data.Scenarios[0].Golden)
	assert.True(t, resp.Data.Scenarios[0].Pass)

	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"scenario_name":"prices","trace":[]}`), 0o644))
	output, err = executeScenario(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, output, "✗ prices")
	assert.Contains(t, output, "does not match golden file")
}

func TestScenarioFailingAssertion(t *testing.T) {
	_, dir := scenarioDir(t, map[string]string{
		"prices.yaml":         pricesScenario,
		"wrong_revision.yaml": wrongRevisionScenario,
	})

	output, err := executeScenario(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, output, "✓ prices")
	assert.Contains(t, output, "✗ wrong_revision")
	assert.Contains(t, output, "1 passed, 1 failed, 2 total")
}

func TestScenarioFilterAndTrace(t *testing.T) {
	_, dir := scenarioDir(t, map[string]string{
		"prices.yaml":         pricesScenario,
		"wrong_revision.yaml": wrongRevisionScenario,
	})

	output, err := executeScenario(t, "json", dir, "--filter", "pri*", "--trace")
	require.NoError(t, err)

	var resp struct {
		Data ScenarioSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	require.Equal(t, 1, resp.Data.Total)
	assert.Equal(t, "prices", resp.Data.Scenarios[0].Name)
	assert.Contains(t, resp.Data.Scenarios[0].Trace, `"revision":2`)
}

func TestScenarioLoadError(t *testing.T) {
	_, dir := scenarioDir(t, map[string]string{"broken.yaml": "name: broken\n"})

	output, err := executeScenario(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, output, "✗ broken.yaml")
	assert.Contains(t, output, "failed to load scenario")
}

func TestScenarioMissingPath(t *testing.T) {
	_, err := executeScenario(t, "text", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestScenarioEmptyDir(t *testing.T) {
	output, err := executeScenario(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, output, "No scenarios found.")
}
