package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/bullion/internal/coordinator"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected request or failed check
	ExitCommandError = 2 // Command error (bad flags, database not found, etc.)
	ExitNeedsRecalc  = 3 // A write failed mid-chain; run recalc
)

// Error codes for JSON output that are not coordinator codes.
const (
	ErrCodeGeneric = "E001"
	ErrCodeUsage   = "E002"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code
	Message string // Error message
	Err     error  // Underlying error (optional)

	reported bool // already written by OutputFormatter.Fail
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
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// Reported reports whether err was already written to the user by
// OutputFormatter.Fail, so main should not print it again.
func Reported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.reported
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// mutationError wraps a coordinator error with the exit code its class maps
// to. Partial writes get their own code so scripts can trigger a recalc.
func mutationError(op string, err error) *ExitError {
	var wf *coordinator.WriteFailure
	switch {
	case errors.As(err, &wf) && wf.NeedsRecalc():
		return WrapExitError(ExitNeedsRecalc, op+" partially applied", err)
	case coordinator.IsValidation(err), coordinator.IsNotFound(err):
		return WrapExitError(ExitFailure, op+" rejected", err)
	default:
		return WrapExitError(ExitCommandError, op+" failed", err)
	}
}

// ErrorCode returns the JSON error code for err.
func ErrorCode(err error) string {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		if exitErr.Code == ExitCommandError {
			return ErrCodeUsage
		}
		return ErrCodeGeneric
	}
	if code := coordinator.CodeOf(err); code != coordinator.ErrCodeInternal {
		return string(code)
	}
	return ErrCodeGeneric
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "VALIDATION", "E001", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a result. In text mode text is printed instead of data.
func (f *OutputFormatter) Success(data any, text string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, text)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err in the configured format and returns it for the exit code.
func (f *OutputFormatter) Fail(err error) error {
	var details any
	var ve *coordinator.ValidationError
	if errors.As(err, &ve) {
		details = ve.Fields
	}
	_ = f.Error(ErrorCode(err), err.Error(), details)
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		exitErr.reported = true
	}
	return err
}

// VerboseLog outputs a message only if verbose mode is enabled.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
