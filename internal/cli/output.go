package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"alienrisk/internal/blob"
	"alienrisk/pkg/domain"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failed: unknown id, storage failure, rejected import
	ExitCommandError = 2 // Command error: bad flags, invalid input, unusable config
)

// Error codes reported in JSON output.
const (
	ErrCodeUsage       = "E_USAGE"
	ErrCodeValidation  = "E_VALIDATION"
	ErrCodeNotFound    = "E_NOT_FOUND"
	ErrCodePersistence = "E_PERSISTENCE"
	ErrCodeImport      = "E_IMPORT"
	ErrCodeGeneric     = "E_FAILURE"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (ExitFailure or ExitCommandError)
	Kind    string // One of the ErrCode constants
	Message string
	Err     error // Underlying error (optional)
	Details any   // Extra payload for JSON output (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, kind, message string) *ExitError {
	return &ExitError{Code: code, Kind: kind, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, kind, message string, err error) *ExitError {
	return &ExitError{Code: code, Kind: kind, Message: message, Err: err}
}

// classify turns a store or archive error into an ExitError.
func classify(message string, err error) *ExitError {
	var exitErr *ExitError
	var notFound domain.ErrNotFound
	switch {
	case errors.As(err, &exitErr):
		return exitErr
	case errors.As(err, &notFound), errors.Is(err, blob.ErrNotFound):
		return WrapExitError(ExitFailure, ErrCodeNotFound, message, err)
	case errors.Is(err, domain.ErrValidation):
		return WrapExitError(ExitCommandError, ErrCodeValidation, message, err)
	case errors.Is(err, domain.ErrPersistence):
		return WrapExitError(ExitFailure, ErrCodePersistence, message, err)
	default:
		return WrapExitError(ExitFailure, ErrCodeGeneric, message, err)
	}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Diagnostics; defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command's output.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs data. In text mode render draws it; a nil render prints data with fmt.
func (f *OutputFormatter) Success(data any, render func(io.Writer) error) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	if render != nil {
		return render(f.Writer)
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error outputs an error in the configured format. Text errors go to ErrWriter.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	w := f.GetErrWriter()
	fmt.Fprintf(w, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(w, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
