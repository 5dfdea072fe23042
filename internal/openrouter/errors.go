// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openrouter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Error variables for common OpenRouter failures.
// An *APIError matches these with errors.Is based on its HTTP status.
var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("OpenRouter API key not configured")

	// ErrAuthFailed indicates authentication failed (invalid or expired API key).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")

	// ErrInsufficientCredits indicates the account has insufficient credits.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrReadTimeout indicates no stream data arrived within the per-chunk read timeout.
	ErrReadTimeout = errors.New("stream read timed out")

	// ErrStreamClosed is returned by Next after the caller closed the stream.
	ErrStreamClosed = errors.New("stream closed")
)

// =============================================================================
// VALIDATION ERROR
// =============================================================================

// ValidationError reports a request that was rejected before any network call.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is matches ErrNotConfigured for a missing API key.
func (e *ValidationError) Is(target error) bool {
	return target == ErrNotConfigured && e.Field == "api_key"
}

// IsValidationError reports whether err is (or wraps) a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// =============================================================================
// API ERROR
// =============================================================================

// APIError is the single failure kind for HTTP errors, transport faults and
// stalled streams. StatusCode is zero when no HTTP status was involved.
type APIError struct {
	StatusCode int
	Code       string // OpenRouter error code from the error envelope, if any
	Message    string
	Body       string // raw response body for non-2xx responses
	Err        error  // underlying cause
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.StatusCode > 0 && e.Code != "":
		return fmt.Sprintf("OpenRouter error [%s] (HTTP %d): %s", e.Code, e.StatusCode, msg)
	case e.StatusCode > 0:
		return fmt.Sprintf("OpenRouter error (HTTP %d): %s", e.StatusCode, msg)
	default:
		return fmt.Sprintf("OpenRouter error: %s", msg)
	}
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is maps HTTP statuses onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAuthFailed:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrInsufficientCredits:
		return e.StatusCode == http.StatusPaymentRequired
	case ErrModelNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// Timeout reports whether the failure was a timeout.
func (e *APIError) Timeout() bool {
	if errors.Is(e.Err, ErrReadTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// apiErrorEnvelope is the error shape OpenRouter uses both in non-2xx bodies and
// in mid-stream data payloads.
type apiErrorEnvelope struct {
	Error *struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
	} `json:"error"`
}

// code returns the error code as text; OpenRouter sends numbers or strings.
func (env apiErrorEnvelope) code() string {
	if env.Error == nil || len(env.Error.Code) == 0 {
		return ""
	}
	return strings.Trim(string(env.Error.Code), `"`)
}

// newStatusError converts a non-2xx response into an *APIError.
func newStatusError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: statusCode,
		Body:       string(body),
	}

	var env apiErrorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil && env.Error.Message != "" {
		apiErr.Code = env.code()
		apiErr.Message = env.Error.Message
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(statusCode)
	}
	return apiErr
}

// newTransportError wraps a network, TLS or timeout failure.
func newTransportError(msg string, err error) *APIError {
	return &APIError{Message: fmt.Sprintf("%s: %v", msg, err), Err: err}
}

// =============================================================================
// USER-FACING MESSAGES
// =============================================================================

// UserMessage turns an error from this package into a one-line message for
// display, with a hint where the fix is known. Surfaces show it as a
// transient notification.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		if vErr.Field == "question" {
			return "Please enter a question."
		}
		if vErr.Field == "api_key" {
			return "OpenRouter API key is not configured. Set OPENROUTER_API_KEY or run 'chatstream setup'."
		}
		return fmt.Sprintf("Invalid %s: %s", vErr.Field, vErr.Message)
	}

	switch {
	case errors.Is(err, ErrAuthFailed):
		return "Authentication failed. Check your OpenRouter API key."
	case errors.Is(err, ErrInsufficientCredits):
		return "Insufficient OpenRouter credits. Add credits at https://openrouter.ai/credits."
	case errors.Is(err, ErrRateLimited):
		return "Rate limited by OpenRouter. Wait a moment and try again."
	case errors.Is(err, ErrModelNotFound):
		return "Model not found. Pick another model."
	case errors.Is(err, ErrReadTimeout):
		return "The response stalled and timed out. Try again."
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 0 && apiErr.Timeout() {
			return "Connection to OpenRouter timed out. Check your network and try again."
		}
		return apiErr.Error()
	}
	return fmt.Sprintf("Error: %v", err)
}
