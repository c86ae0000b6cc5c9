package cli

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cdlcore/internal/harness"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
	Filter    string // scenario filter (glob pattern on the file name)
	GoldenDir string // directory of <scenario-name>.golden files
	Update    bool   // regenerate golden files
	Trace     bool   // print each scenario's canonical trace
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "match", "mismatch", "updated" or empty when absent
	Errors []string `json:"errors,omitempty"`
	Trace  string   `json:"trace,omitempty"`
}

// ScenarioSummary holds the overall run result.
type ScenarioSummary struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario <file-or-dir>",
		Short: "Run query scenarios through the harness",
		Long: `Run YAML scenarios against a fresh element index, query graph,
interval set and in-memory resource store.

Each scenario's assertions are evaluated after its last step. When a golden
file named <scenario-name>.golden exists in the golden directory (by default
the "golden" directory next to the scenario's directory), the canonical trace
must match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  cdlcore scenario ./testdata/scenarios
  cdlcore scenario ./testdata/scenarios/cheap_items.yaml --trace
  cdlcore scenario ./testdata/scenarios --filter "tag_*" --update`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", "", "directory holding golden trace files")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "print each scenario's trace")

	return cmd
}

func runScenarios(opts *ScenarioOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if _, err := os.Stat(path); err != nil {
		return formatter.Fail(ExitCommandError, "scenario path not found",
			withCode(ErrCodeScenario, fmt.Errorf("scenario path not found: %s", path)))
	}

	files, err := findScenarioFiles(path, opts.Filter)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to find scenarios", withCode(ErrCodeScenario, err))
	}

	summary := ScenarioSummary{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, file := range files {
		formatter.VerboseLog("Running %s", file)
		res := runScenarioFile(opts, file)
		summary.Scenarios = append(summary.Scenarios, res)
		if res.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}

	if err := formatter.Success(&summary); err != nil {
		return err
	}

	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", summary.Failed, summary.Total))
	}
	return nil
}

// findScenarioFiles returns path itself when it is a file, or every YAML
// file below it in lexical order.
func findScenarioFiles(path, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(p), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, p)
		return nil
	})
	return files, err
}

func runScenarioFile(opts *ScenarioOptions, file string) ScenarioResult {
	res := ScenarioResult{Name: filepath.Base(file), File: file}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return res
	}
	res.Name = scenario.Name

	result, err := harness.Run(scenario)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return res
	}

	trace, err := harness.MarshalTrace(scenario.Name, result)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("failed to marshal trace: %v", err)}
		return res
	}
	if opts.Trace {
		res.Trace = string(trace)
	}

	res.Pass = result.Pass
	res.Errors = result.Errors

	goldenPath := goldenFilePath(opts.GoldenDir, file, scenario.Name)
	if opts.Update {
		if err := writeGoldenFile(goldenPath, trace); err != nil {
			res.Pass = false
			res.Errors = append(res.Errors, fmt.Sprintf("failed to update golden file: %v", err))
			return res
		}
		res.Golden = "updated"
		return res
	}

	golden, err := os.ReadFile(goldenPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		res.Pass = false
		res.Errors = append(res.Errors, fmt.Sprintf("failed to read golden file: %v", err))
	case bytes.Equal(bytes.TrimSpace(golden), trace):
		res.Golden = "match"
	default:
		res.Pass = false
		res.Golden = "mismatch"
		res.Errors = append(res.Errors, "trace does not match golden file (run with --update to regenerate)")
	}
	return res
}

// goldenFilePath places golden files in dir, or in the "golden" directory
// beside the scenario's directory when dir is empty.
func goldenFilePath(dir, scenarioFile, name string) string {
	if dir == "" {
		dir = filepath.Join(filepath.Dir(filepath.Dir(scenarioFile)), "golden")
	}
	return filepath.Join(dir, name+".golden")
}

func writeGoldenFile(path string, trace []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	return os.WriteFile(path, trace, 0o644)
}

func (sum *ScenarioSummary) writeText(w, _ io.Writer) {
	if sum.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}
	for _, s := range sum.Scenarios {
		mark := "✓"
		if !s.Pass {
			mark = "✗"
		}
		switch s.Golden {
		case "updated":
			fmt.Fprintf(w, "%s %s (golden updated)\n", mark, s.Name)
		default:
			fmt.Fprintf(w, "%s %s\n", mark, s.Name)
		}
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		if s.Trace != "" {
			fmt.Fprintf(w, "  %s\n", s.Trace)
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", sum.Passed, sum.Failed, sum.Total)
}
