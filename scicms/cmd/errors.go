package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/borisblack/scicms-client-sub000/types"
)

// CLIError represents a user-friendly CLI error with context and suggestions
type CLIError struct {
	Operation   string   // The operation that failed (e.g., "create", "list")
	Cause       string   // The underlying cause (e.g., "unknown item")
	Details     string   // Additional technical details
	Suggestions []string // Helpful suggestions for the user
	Underlying  error    // Original error for debugging
}

// Error implements the error interface
func (e *CLIError) Error() string {
	var msg strings.Builder

	if e.Operation != "" {
		msg.WriteString(fmt.Sprintf("Failed to %s", e.Operation))
	} else {
		msg.WriteString("Operation failed")
	}
	if e.Cause != "" {
		msg.WriteString(fmt.Sprintf(": %s", e.Cause))
	}
	if e.Details != "" {
		msg.WriteString(fmt.Sprintf(" (%s)", e.Details))
	}

	if len(e.Suggestions) > 0 {
		msg.WriteString("\n\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			msg.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}
	return msg.String()
}

// Unwrap returns the underlying error for error chain compatibility
func (e *CLIError) Unwrap() error {
	return e.Underlying
}

// NewConfigError creates an error for configuration issues
func NewConfigError(operation, issue string, suggestions ...string) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       fmt.Sprintf("configuration error: %s", issue),
		Suggestions: suggestions,
	}
}

// NewUsageError creates an error for malformed command line values
func NewUsageError(operation, flag, value string, suggestions ...string) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       fmt.Sprintf("invalid --%s value %q", flag, value),
		Suggestions: suggestions,
	}
}

// WrapError wraps an error with CLI-friendly context, picking suggestions
// from the kind of failure
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		if cliErr.Operation == "" {
			cliErr.Operation = operation
		}
		return cliErr
	}

	wrapped := &CLIError{Operation: operation, Cause: err.Error(), Underlying: err}

	var transportErr *types.TransportError
	switch {
	case errors.Is(err, types.ErrSchema):
		wrapped.Cause = "schema error"
		wrapped.Details = err.Error()
		wrapped.Suggestions = []string{CommonSuggestions.CheckItems, CommonSuggestions.CheckSchema}
	case errors.Is(err, types.ErrValidation):
		wrapped.Cause = "operation not allowed"
		wrapped.Details = err.Error()
		wrapped.Suggestions = []string{CommonSuggestions.CheckItem}
	case errors.As(err, &transportErr):
		wrapped.Cause = transportErr.Message
		wrapped.Details = transportErr.Detail()
		wrapped.Suggestions = []string{CommonSuggestions.CheckEndpoint}
	case strings.Contains(strings.ToLower(err.Error()), "no such file"):
		wrapped.Cause = "file not found"
		wrapped.Details = err.Error()
		wrapped.Suggestions = []string{CommonSuggestions.CheckSchema, CommonSuggestions.CheckConfig}
	}
	return wrapped
}

// CommonSuggestions are shared hints attached to CLI errors
var CommonSuggestions = struct {
	CheckItems    string
	CheckItem     string
	CheckSchema   string
	CheckEndpoint string
	CheckConfig   string
	RunHelp       string
}{
	CheckItems:    "Run 'scicms items' to see the available items",
	CheckItem:     "Run 'scicms items <name>' to see the flags of an item",
	CheckSchema:   "Verify --schema points to a YAML file or directory of item descriptors",
	CheckEndpoint: "Verify --endpoint and --token, or use --db for a local store",
	CheckConfig:   "Check your configuration file or SCICMS_* environment variables",
	RunHelp:       "Run command with --help for usage information",
}
