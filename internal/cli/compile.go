package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cdlcore/internal/compiler"
	"github.com/roach88/cdlcore/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Root      string   // class to expand
	Optimize  bool
	Constants []string // attr[@level]=value, added to the CUE context
	Output    string   // output file path
}

// CompileResult summarizes one path tree compilation.
type CompileResult struct {
	Root       string          `json:"root"`
	Files      int             `json:"files"`
	Classes    int             `json:"classes"`
	Nodes      int             `json:"nodes"`
	Infos      int             `json:"infos"`
	Optimized  bool            `json:"optimized"`
	Discarded  int             `json:"discarded"`
	ClassUsage map[string]int  `json:"class_usage"`
	Output     string          `json:"output,omitempty"`
	Tree       json.RawMessage `json:"tree,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <classes-dir>",
		Short: "Compile CUE class definitions into a path tree",
		Long: `Compile the CUE class definitions in a directory into the path tree
of one root class and print its canonical JSON dump.

The directory must hold a single CUE package with "class", and optionally
"context" and "domain", fields. With --optimize the tree is reduced against
the package's constant context and qualifier domains.

Exit codes:
  0 - Tree compiled without errors
  1 - Validation or tree compilation errors
  2 - Command error (missing directory, CUE load failure, etc.)

Examples:
  cdlcore compile ./classes --root Button
  cdlcore compile ./classes --root Button --optimize -o button.json
  cdlcore compile ./classes --root Button --optimize --constants theme=light`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Root, "root", "", "root class to compile (required)")
	cmd.Flags().BoolVar(&opts.Optimize, "optimize", false, "optimize the tree against context and domains")
	cmd.Flags().StringSliceVar(&opts.Constants, "constants", nil, "known constants as attr[@level]=value")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the tree dump to a file")
	_ = cmd.MarkFlagRequired("root")

	return cmd
}

func runCompile(opts *CompileOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	prog, loadErrs := compiler.LoadDir(dir)
	if prog == nil {
		return formatter.Fail(ExitCommandError, "loading classes failed", loadErrs[0])
	}
	if len(loadErrs) > 0 {
		return formatter.Fail(ExitCommandError, "Compilation failed", loadErrs...)
	}
	formatter.VerboseLog("Loaded %d class(es) from %d CUE file(s) in %s", len(prog.Classes), prog.FileCount, dir)

	for _, c := range opts.Constants {
		if err := setConstant(prog, c); err != nil {
			return formatter.Fail(ExitCommandError, "invalid constant", withCode(ErrCodeBadConstant, err))
		}
	}

	if verrs := compiler.Validate(prog); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, v := range verrs {
			errs[i] = v
		}
		return formatter.Fail(ExitFailure, "Validation failed", errs...)
	}

	tree, report := prog.Build(opts.Root, opts.Optimize)
	if len(report.Errors) > 0 {
		errs := make([]error, len(report.Errors))
		for i, e := range report.Errors {
			errs[i] = e
		}
		return formatter.Fail(ExitFailure, "Tree compilation failed", errs...)
	}

	dump, err := tree.DumpJSON()
	if err != nil {
		return formatter.Fail(ExitCommandError, "dumping tree", fmt.Errorf("dumping tree: %w", err))
	}

	result := &CompileResult{
		Root:       opts.Root,
		Files:      prog.FileCount,
		Classes:    len(prog.Classes),
		Nodes:      tree.Len(),
		Infos:      tree.InfoCount(),
		Optimized:  opts.Optimize,
		Discarded:  report.Discarded,
		ClassUsage: report.ClassUsage,
		Output:     opts.Output,
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, dump, 0o644); err != nil {
			return formatter.Fail(ExitCommandError, "writing output file",
				withCode(ErrCodeWriteFailed, fmt.Errorf("writing output file: %w", err)))
		}
	} else {
		result.Tree = dump
	}

	return formatter.Success(result)
}

// setConstant parses "attr[@level]=value" into a program constant. Values
// that are not valid JSON are taken as strings.
func setConstant(prog *compiler.Program, entry string) error {
	label, raw, ok := strings.Cut(entry, "=")
	if !ok {
		return fmt.Errorf("expected attr[@level]=value, got %q", entry)
	}
	attr, level, err := compiler.ParseSlot(label)
	if err != nil {
		return err
	}
	v, err := ir.UnmarshalValue([]byte(raw))
	if err != nil {
		v = ir.String(raw)
	}
	prog.SetConstant(attr, level, v)
	return nil
}

func (r *CompileResult) writeText(w, diag io.Writer) {
	fmt.Fprintf(w, "✓ Compiled %s: %d node(s), %d path info(s)\n", r.Root, r.Nodes, r.Infos)
	if r.Discarded > 0 {
		fmt.Fprintf(w, "  %d variant(s) discarded as unsatisfiable\n", r.Discarded)
	}

	classes := make([]string, 0, len(r.ClassUsage))
	for name := range r.ClassUsage {
		classes = append(classes, name)
	}
	slices.Sort(classes)
	for _, name := range classes {
		fmt.Fprintf(diag, "  %s: used %d time(s)\n", name, r.ClassUsage[name])
	}

	if r.Output != "" {
		fmt.Fprintf(w, "Wrote path tree to %s\n", r.Output)
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, string(r.Tree))
}
