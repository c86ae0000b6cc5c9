package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cdlcore/internal/compiler"
	"github.com/roach88/cdlcore/internal/resource"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(ResourceList{{Resource: "prefs", Revision: 3}}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []any{map[string]any{"resource": "prefs", "revision": float64(3)}}, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	result := &CompileResult{
		Root:       "Button",
		Nodes:      4,
		Infos:      2,
		Discarded:  1,
		ClassUsage: map[string]int{"Label": 2, "Button": 1},
		Output:     "button.json",
	}

	tests := []struct {
		name     string
		verbose  bool
		wantOut  string
		wantDiag string
	}{
		{
			name:    "quiet",
			wantOut: "✓ Compiled Button: 4 node(s), 2 path info(s)\n  1 variant(s) discarded as unsatisfiable\nWrote path tree to button.json\n",
		},
		{
			name:     "verbose",
			verbose:  true,
			wantOut:  "✓ Compiled Button: 4 node(s), 2 path info(s)\n  1 variant(s) discarded as unsatisfiable\nWrote path tree to button.json\n",
			wantDiag: "  Button: used 1 time(s)\n  Label: used 2 time(s)\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, diag := &bytes.Buffer{}, &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: out, ErrWriter: diag, Verbose: tt.verbose}

			require.NoError(t, formatter.Success(result))
			assert.Equal(t, tt.wantOut, out.String())
			assert.Equal(t, tt.wantDiag, diag.String())
		})
	}
}

func TestOutputFormatter_FailSingle(t *testing.T) {
	cause := errors.New("disk full")

	t.Run("text", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: buf}

		err := formatter.Fail(ExitCommandError, "write failed", withCode(ErrCodeStoreFailed, cause))
		assert.Equal(t, "Error [E301]: disk full\n", buf.String())
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "write failed: disk full", err.Error())
	})

	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "json", Writer: buf}

		_ = formatter.Fail(ExitCommandError, "write failed", withCode(ErrCodeStoreFailed, cause))

		var resp CLIResponse
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, CLIError{Code: "E301", Message: "disk full"}, *resp.Error)
		assert.Nil(t, resp.Data)
	})
}

func TestOutputFormatter_FailMany(t *testing.T) {
	errs := []error{
		compiler.ValidationError{Field: "class.Button", Message: "empty variant list", Code: "E101"},
		&compiler.LoadError{Code: "E004", Message: "bad syntax"},
	}

	t.Run("text", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: buf}

		err := formatter.Fail(ExitFailure, "Validation failed", errs...)
		assert.Equal(t, "✗ Validation failed\n\n  E101: class.Button: empty variant list\n  E004: bad syntax\n", buf.String())
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Equal(t, "Validation failed with 2 error(s)", err.Error())
	})

	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "json", Writer: buf}

		_ = formatter.Fail(ExitFailure, "Validation failed", errs...)

		var resp struct {
			Status string     `json:"status"`
			Data   []CLIError `json:"data"`
			Error  *CLIError  `json:"error"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "error", resp.Status)
		require.Len(t, resp.Data, 2)
		assert.Equal(t, resp.Data[0], *resp.Error)
		assert.Equal(t, "E004", resp.Data[1].Code)
	})
}

func TestClassifyError(t *testing.T) {
	invalid := &resource.Error{Code: resource.ErrCodeInvalidWrite, Op: "write", Message: "element a written twice"}

	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"plain", errors.New("boom"), ErrCodeGeneric},
		{"coded", withCode(ErrCodeScenario, errors.New("boom")), ErrCodeScenario},
		{"load error", fmt.Errorf("loading: %w", &compiler.LoadError{Code: "E005", Message: "no dir"}), "E005"},
		{"invalid write beats fallback", withCode(ErrCodeStoreFailed, invalid), ErrCodeInvalidWrite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, classifyError(tt.err).Code)
		})
	}
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: true}

	formatter.VerboseLog("found %d file(s)", 2)
	assert.Empty(t, out.String())
	assert.Equal(t, "found 2 file(s)\n", diag.String())

	quiet := &OutputFormatter{Format: "text", Writer: out}
	quiet.VerboseLog("dropped")
	assert.Empty(t, out.String())

	noErrWriter := &OutputFormatter{Format: "text", Writer: out, Verbose: true}
	noErrWriter.VerboseLog("kept")
	assert.Equal(t, "kept\n", out.String())
}

func TestGetExitCode(t *testing.T) {
	cause := errors.New("disk full")

	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "open failed", cause))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.ErrorIs(t, wrapped, cause)
}
