// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types, friendly messages and exit codes for the CLI.
//
// Commands return errors; the caller displays them with DisplayError and
// exits with GetExitCode.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/openrouter"
	"github.com/jeranaias/chatstream/internal/session"
	"github.com/jeranaias/chatstream/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates the API key was rejected
	ExitAuthError = 4
	// ExitNetworkError indicates network or connectivity error
	ExitNetworkError = 5
	// ExitAPIError indicates OpenRouter returned an error
	ExitAPIError = 6
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates the stream stalled
	ExitTimeoutError = 8
	// ExitCancelled follows the shell convention for SIGINT
	ExitCancelled = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // Command that failed (e.g., "config", "setup")
	Action  string // Action being performed (e.g., "set", "save")
	Reason  string // Human-readable reason
	Err     error  // Underlying error (if any)
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ValidationError represents a validation failure for user input.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   string // The invalid value
	Reason  string // Why it's invalid
	Example string // Optional usage hint
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s", e.Field)
	if e.Value != "" {
		msg += fmt.Sprintf(" %q", e.Value)
	}
	msg += ": " + e.Reason
	if e.Example != "" {
		msg += fmt.Sprintf(" (example: %s)", e.Example)
	}
	return msg
}

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewCommandError creates a command error.
func NewCommandError(command, action, reason string, err error) error {
	return &CommandError{Command: command, Action: action, Reason: reason, Err: err}
}

// NewValidationError creates a validation error.
func NewValidationError(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// NewValidationErrorWithExample creates a validation error with a usage hint.
func NewValidationErrorWithExample(field, value, reason, example string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason, Example: example}
}

// ErrMissingArgument creates an error for missing required arguments.
func ErrMissingArgument(argName, usage string) error {
	return NewValidationErrorWithExample(argName, "", "required argument missing", usage)
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// FormatError returns the one-line message shown for err. OpenRouter and
// session failures get the same wording the other surfaces use.
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var cfgErrs config.ValidateErrors
	if errors.As(err, &cfgErrs) {
		return "Configuration is invalid: " + cfgErrs.Error()
	}

	switch {
	case errors.Is(err, context.Canceled):
		return "Cancelled."
	case errors.Is(err, session.ErrBusy):
		return "A response is already streaming."
	case errors.Is(err, storage.ErrRecordNotFound):
		return "Conversation not found."
	}

	var apiErr *openrouter.APIError
	var vErr *openrouter.ValidationError
	if errors.As(err, &apiErr) || errors.As(err, &vErr) {
		return openrouter.UserMessage(err)
	}
	return err.Error()
}

// DisplayError writes err to w in the standard format.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), FormatError(err))
}

// GetExitCode determines the appropriate exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var cliValidation *ValidationError
	var apiValidation *openrouter.ValidationError
	var notFound *NotFoundError
	var cfgErrs config.ValidateErrors
	var apiErr *openrouter.APIError

	switch {
	case errors.Is(err, context.Canceled):
		return ExitCancelled
	case errors.Is(err, openrouter.ErrNotConfigured), errors.As(err, &cfgErrs):
		return ExitConfigError
	case errors.As(err, &cliValidation), errors.As(err, &apiValidation):
		return ExitUsageError
	case errors.As(err, &notFound), errors.Is(err, storage.ErrRecordNotFound):
		return ExitNotFoundError
	case errors.Is(err, openrouter.ErrAuthFailed):
		return ExitAuthError
	case errors.Is(err, openrouter.ErrReadTimeout):
		return ExitTimeoutError
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == 0 {
			if apiErr.Timeout() {
				return ExitTimeoutError
			}
			return ExitNetworkError
		}
		return ExitAPIError
	}

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.Command == "config" {
		return ExitConfigError
	}
	return ExitGeneralError
}

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
