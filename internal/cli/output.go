package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/cdlcore/internal/compiler"
	"github.com/roach88/cdlcore/internal/pathtree"
	"github.com/roach88/cdlcore/internal/resource"
)

// Process exit statuses.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // a scenario, validation or tree compilation failed
	ExitCommandError = 2 // the command could not run: bad paths, unreadable input, database errors
)

// Error codes of the commands. E001-E006 are shared with the compiler
// package's loader; tree and validation errors carry their own codes.
const (
	ErrCodeGeneric      = "E001"
	ErrCodeWriteFailed  = "E007" // writing --output
	ErrCodeBadConstant  = "E008" // malformed --constants entry
	ErrCodeStoreFailed  = "E301"
	ErrCodeInvalidWrite = "E302"
	ErrCodeScenario     = "E401"
)

// ExitError carries the process exit status of a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the status carried by err, or ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the envelope of every --format json document.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is one reported error. A response listing several errors
// carries the first in Error and all of them in Data.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// textReport is implemented by command results. writeText prints the
// result to w; lines only wanted with --verbose go to diag.
type textReport interface {
	writeText(w, diag io.Writer)
}

// OutputFormatter renders command results and errors as text or as a
// CLIResponse.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose output; Writer when nil
	Verbose   bool
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

func (f *OutputFormatter) isJSON() bool { return f.Format == "json" }

// diag is where verbose lines go, io.Discard unless Verbose is set.
// JSON output never shares a writer with them.
func (f *OutputFormatter) diag() io.Writer {
	switch {
	case !f.Verbose:
		return io.Discard
	case f.ErrWriter != nil:
		return f.ErrWriter
	default:
		return f.Writer
	}
}

// Success prints result.
func (f *OutputFormatter) Success(result textReport) error {
	if f.isJSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: result})
	}
	result.writeText(f.Writer, f.diag())
	return nil
}

// VerboseLog prints one diagnostic line when Verbose is set.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	fmt.Fprintf(f.diag(), format+"\n", args...)
}

// Fail reports errs and returns the ExitError the command should return.
// A single error prints as "Error [code]: message"; several are listed
// under headline. Error codes come from classifyError.
func (f *OutputFormatter) Fail(exitCode int, headline string, errs ...error) error {
	if len(errs) == 0 {
		return NewExitError(exitCode, headline)
	}
	reports := make([]CLIError, len(errs))
	for i, err := range errs {
		reports[i] = classifyError(err)
	}

	if f.isJSON() {
		resp := CLIResponse{Status: "error", Error: &reports[0]}
		if len(reports) > 1 {
			resp.Data = reports
		}
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
	} else if len(reports) == 1 {
		fmt.Fprintf(f.Writer, "Error [%s]: %s\n", reports[0].Code, reports[0].Message)
	} else {
		fmt.Fprintf(f.Writer, "✗ %s\n\n", headline)
		for _, r := range reports {
			fmt.Fprintf(f.Writer, "  %s: %s\n", r.Code, r.Message)
		}
	}

	if len(errs) > 1 {
		return NewExitError(exitCode, fmt.Sprintf("%s with %d error(s)", headline, len(errs)))
	}
	return WrapExitError(exitCode, headline, errs[0])
}

// codedError attaches a command error code to an error that has none of
// its own.
type codedError struct {
	code string
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

func withCode(code string, err error) error {
	return &codedError{code: code, err: err}
}

// classifyError picks the code and message reported for err. Codes owned
// by the compiler, the path tree and the resource store win over the
// command's fallback code.
func classifyError(err error) CLIError {
	var (
		loadErr *compiler.LoadError
		treeErr *pathtree.CompileError
		v       compiler.ValidationError
		coded   *codedError
	)
	switch {
	case errors.As(err, &loadErr):
		return CLIError{Code: loadErr.Code, Message: loadErr.Message}
	case errors.As(err, &treeErr):
		return CLIError{Code: treeErr.Code, Message: treeErr.Error()}
	case errors.As(err, &v):
		return CLIError{Code: v.Code, Message: v.Field + ": " + v.Message}
	case resource.IsInvalidWrite(err):
		return CLIError{Code: ErrCodeInvalidWrite, Message: err.Error()}
	case errors.As(err, &coded):
		return CLIError{Code: coded.code, Message: err.Error()}
	}
	return CLIError{Code: ErrCodeGeneric, Message: err.Error()}
}
