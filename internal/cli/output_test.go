package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/regeindary/internal/config"
	"github.com/roach88/regeindary/internal/engine"
	"github.com/roach88/regeindary/internal/source"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]int{"inserted": 2}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodePrecondition, "unknown strategy \"merge\"", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodePrecondition, resp.Error.Code)
	assert.Equal(t, "unknown strategy \"merge\"", resp.Error.Message)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"file": "irs.yaml", "field": "match.keyTransform"}
	err := formatter.Error(ErrCodePrecondition, "schema violation", details)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("2 attempted, 2 inserted")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "2 attempted, 2 inserted")
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error(ErrCodePrecondition, "unknown strategy \"merge\"", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [PRECONDITION]")
	assert.Contains(t, buf.String(), "unknown strategy \"merge\"")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	details := map[string]string{"file": "irs.yaml"}
	err := formatter.Error(ErrCodePrecondition, "unknown strategy \"merge\"", details)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [PRECONDITION]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("read %d records", 3)

			if tt.wantLog {
				assert.Contains(t, buf.String(), "read 3 records")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestCLIResponse_JSON(t *testing.T) {
	resp := CLIResponse{
		Status: "ok",
		Data:   map[string]int{"linked": 42},
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded CLIResponse
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "ok", decoded.Status)
}

func TestCLIError_JSON(t *testing.T) {
	cliErr := CLIError{
		Code:    ErrCodeIntegrity,
		Message: "registry \"IRS\" has 2 metadata records",
		Details: []string{"doc-0001", "doc-0002"},
	}

	data, err := json.Marshal(cliErr)
	require.NoError(t, err)

	var decoded CLIError
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, ErrCodeIntegrity, decoded.Code)
	assert.Equal(t, "registry \"IRS\" has 2 metadata records", decoded.Message)
}

func TestOutputFormatter_TextErrorUsesErrWriter(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errOut}

	require.NoError(t, formatter.Error(ErrCodeConfig, "no database", nil))
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "Error [CONFIG]: no database")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	wrapped := fmt.Errorf("run: %w", WrapExitError(ExitCommandError, "load", errors.New("missing")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
}

func TestExitError_Message(t *testing.T) {
	err := WrapExitError(ExitFailure, "import", errors.New("disk full"))
	assert.Equal(t, "import: disk full", err.Error())
	assert.Equal(t, "bad flag", NewExitError(ExitCommandError, "bad flag").Error())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantExit int
	}{
		{"no_database", config.ErrNoDatabase, ErrCodeConfig, ExitCommandError},
		{"unsupported_format", fmt.Errorf("%w: \".xml\"", source.ErrUnsupportedFormat), ErrCodeSource, ExitCommandError},
		{"missing_file", fmt.Errorf("read registry definition: %w", fs.ErrNotExist), ErrCodeNotFound, ExitCommandError},
		{"precondition", engine.NewPreconditionError("unknown strategy %q", "merge"), ErrCodePrecondition, ExitCommandError},
		{"integrity", engine.NewDuplicateRegistryError("IRS", 2), ErrCodeIntegrity, ExitFailure},
		{"data_quality", engine.NewDataQualityError("reg", "totalIncome", "not a number"), ErrCodeDataQuality, ExitFailure},
		{"other", errors.New("disk full"), ErrCodeGeneric, ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, exit := classify(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantExit, exit)
		})
	}
}

func TestFail_ReportsAndWraps(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := fail(formatter, "strategy", engine.NewPreconditionError("unknown strategy %q", "merge"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodePrecondition, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "merge")
}

func TestImportSummary_StringCountsEachWarningOnce(t *testing.T) {
	s := ImportSummary{
		Registry:        "Example Charities",
		Level:           "filings",
		Strategy:        "insert",
		Attempted:       2,
		Inserted:        2,
		Warnings:        2,
		MappingWarnings: []string{"row 1: TOTREVENUE -> totalIncome", "row 2: TOTREVENUE -> totalIncome"},
	}
	assert.Equal(t,
		"Example Charities filings: 2 attempted, 2 inserted, 0 updated, 0 skipped, 0 failed\n2 data-quality warnings",
		s.String())

	s.MappingWarnings = nil
	assert.NotContains(t, s.String(), "data-quality")
}
