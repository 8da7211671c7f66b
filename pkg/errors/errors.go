package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorType categorizes different error types
type ErrorType string

const (
	// Network errors
	ErrorTypeNetwork ErrorType = "network"
	ErrorTypeTimeout ErrorType = "timeout"

	// Authentication errors
	ErrorTypeUnauthorized  ErrorType = "unauthorized"
	ErrorTypeNotAuthorized ErrorType = "not_authorized"

	// Validation errors
	ErrorTypeValidation ErrorType = "validation"

	// Server errors
	ErrorTypeServer    ErrorType = "server"
	ErrorTypeNotFound  ErrorType = "not_found"
	ErrorTypeRateLimit ErrorType = "rate_limit"

	ErrorTypeUnknown ErrorType = "unknown"
)

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	HTTPStatus() int
}

// CLIError represents a structured error with context
type CLIError struct {
	Type       ErrorType
	Message    string
	Cause      error
	Suggestion string
	StatusCode int
}

// Error implements the error interface
func (e *CLIError) Error() string {
	if e.Cause != nil && e.Type != ErrorTypeValidation {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// WithSuggestion adds a helpful suggestion to the error
func (e *CLIError) WithSuggestion(suggestion string) *CLIError {
	e.Suggestion = suggestion
	return e
}

// HasSuggestion returns true if the error has a suggestion
func (e *CLIError) HasSuggestion() bool {
	return e.Suggestion != ""
}

// Unwrap returns the underlying error
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// IsTransient reports whether the failure may succeed if the user tries again.
func (e *CLIError) IsTransient() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeServer, ErrorTypeRateLimit:
		return true
	}
	return false
}

// NewCLIError creates a new CLI error
func NewCLIError(errorType ErrorType, message string, cause error) *CLIError {
	return &CLIError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NetworkError creates a transient network error
func NetworkError(message string, cause error) *CLIError {
	err := NewCLIError(ErrorTypeNetwork, message, cause)
	err.Suggestion = "Check your connection and try again."
	return err
}

// TimeoutError creates a timeout error
func TimeoutError(cause error) *CLIError {
	err := NewCLIError(ErrorTypeTimeout, "Request timed out", cause)
	err.Suggestion = "The server is taking too long to respond. Try again in a moment."
	return err
}

// UnauthorizedError creates an error for a missing or expired session
func UnauthorizedError(cause error) *CLIError {
	err := NewCLIError(ErrorTypeUnauthorized, "Your session is missing or has expired", cause)
	err.StatusCode = 401
	err.Suggestion = "Run 'sidechain-chat auth use' with a fresh token."
	return err
}

// NotAuthorizedError creates an error for acting on a conversation the user is not part of
func NotAuthorizedError(cause error) *CLIError {
	err := NewCLIError(ErrorTypeNotAuthorized, "You are not a participant of this conversation", cause)
	err.StatusCode = 403
	return err
}

// ValidationError creates a validation error
func ValidationError(field, reason string) *CLIError {
	message := fmt.Sprintf("Validation error: %s - %s", field, reason)
	return NewCLIError(ErrorTypeValidation, message, nil)
}

// ServerError creates a server error
func ServerError(cause error) *CLIError {
	err := NewCLIError(ErrorTypeServer, "Server error", cause)
	err.Suggestion = "The server encountered an error. Try again in a few moments."
	return err
}

// NotFoundError creates a not found error
func NotFoundError(resourceType, identifier string) *CLIError {
	err := NewCLIError(ErrorTypeNotFound,
		fmt.Sprintf("%s not found: %s", resourceType, identifier),
		nil)
	err.StatusCode = 404
	return err
}

// RateLimitError creates a rate limit error
func RateLimitError(cause error) *CLIError {
	err := NewCLIError(ErrorTypeRateLimit, "Rate limit exceeded. Too many requests.", cause)
	err.StatusCode = 429
	err.Suggestion = "Wait a moment before trying again."
	return err
}

// CategorizeError converts a standard error into a CLIError
func CategorizeError(err error) *CLIError {
	if err == nil {
		return nil
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr
	}

	var coder StatusCoder
	if errors.As(err, &coder) {
		return fromStatus(coder.HTTPStatus(), err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return TimeoutError(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return TimeoutError(err)
		}
		return NetworkError("Could not reach the server", err)
	}

	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "connection refused"):
		return NetworkError("Could not connect to server. Make sure it's running.", err)
	case strings.Contains(errMsg, "timeout"):
		return TimeoutError(err)
	default:
		return NewCLIError(ErrorTypeUnknown, errMsg, err)
	}
}

func fromStatus(status int, cause error) *CLIError {
	switch {
	case status == 401:
		return UnauthorizedError(cause)
	case status == 403:
		return NotAuthorizedError(cause)
	case status == 404:
		e := NewCLIError(ErrorTypeNotFound, "Resource not found", cause)
		e.StatusCode = status
		return e
	case status == 429:
		return RateLimitError(cause)
	case status >= 500:
		e := ServerError(cause)
		e.StatusCode = status
		return e
	default:
		e := NewCLIError(ErrorTypeUnknown, "Request failed", cause)
		e.StatusCode = status
		return e
	}
}

func isType(err error, t ErrorType) bool {
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Type == t
	}
	return false
}

// IsValidation reports whether err was rejected locally before any network call.
func IsValidation(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsNotFound reports whether err means the resource no longer exists.
func IsNotFound(err error) bool {
	if isType(err, ErrorTypeNotFound) {
		return true
	}
	var coder StatusCoder
	return errors.As(err, &coder) && coder.HTTPStatus() == 404
}

// IsNotAuthorized reports whether the server refused the action for this user.
func IsNotAuthorized(err error) bool {
	return isType(err, ErrorTypeNotAuthorized)
}

// IsTransient reports whether err is a retryable transport or server failure.
func IsTransient(err error) bool {
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr.IsTransient()
	}
	return false
}

// FormatError returns a user-friendly error message
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	cliErr := CategorizeError(err)
	var sb strings.Builder

	sb.WriteString("Error")
	if cliErr.Type != ErrorTypeUnknown {
		sb.WriteString(" (")
		sb.WriteString(string(cliErr.Type))
		sb.WriteString(")")
	}
	sb.WriteString(": ")
	sb.WriteString(cliErr.Message)
	sb.WriteString("\n")

	if cliErr.HasSuggestion() {
		sb.WriteString("\nSuggestion: ")
		sb.WriteString(cliErr.Suggestion)
		sb.WriteString("\n")
	}

	return sb.String()
}
