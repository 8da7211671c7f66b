package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr struct{ status int }

func (e *statusErr) Error() string   { return fmt.Sprintf("status %d", e.status) }
func (e *statusErr) HTTPStatus() int { return e.status }

func TestNewCLIError(t *testing.T) {
	cause := errors.New("underlying error")
	err := NewCLIError(ErrorTypeServer, "Test error", cause)

	require.NotNil(t, err)
	assert.Equal(t, ErrorTypeServer, err.Type)
	assert.Equal(t, cause, err.Cause)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "underlying error")
}

func TestValidationErrorMessage(t *testing.T) {
	err := ValidationError("content", "message cannot be empty")

	assert.Equal(t, ErrorTypeValidation, err.Type)
	assert.Equal(t, "Validation error: content - message cannot be empty", err.Error())
	assert.True(t, IsValidation(err))
	assert.True(t, IsValidation(fmt.Errorf("send: %w", err)))
	assert.False(t, IsTransient(err))
}

func TestWithSuggestion(t *testing.T) {
	err := NewCLIError(ErrorTypeValidation, "Test", nil).WithSuggestion("Try something else")

	assert.True(t, err.HasSuggestion())
	assert.Equal(t, "Try something else", err.Suggestion)
}

func TestCategorizeError_StatusCodes(t *testing.T) {
	tests := []struct {
		status    int
		want      ErrorType
		transient bool
	}{
		{401, ErrorTypeUnauthorized, false},
		{403, ErrorTypeNotAuthorized, false},
		{404, ErrorTypeNotFound, false},
		{429, ErrorTypeRateLimit, true},
		{500, ErrorTypeServer, true},
		{503, ErrorTypeServer, true},
		{409, ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			cliErr := CategorizeError(&statusErr{status: tt.status})
			require.NotNil(t, cliErr)
			assert.Equal(t, tt.want, cliErr.Type)
			assert.Equal(t, tt.transient, cliErr.IsTransient())
			assert.Equal(t, tt.status, cliErr.StatusCode)
		})
	}
}

func TestCategorizeError_Transport(t *testing.T) {
	assert.Nil(t, CategorizeError(nil))

	timeout := CategorizeError(fmt.Errorf("get: %w", context.DeadlineExceeded))
	assert.Equal(t, ErrorTypeTimeout, timeout.Type)
	assert.True(t, IsTransient(timeout))

	refused := CategorizeError(errors.New("dial tcp 127.0.0.1:8787: connect: connection refused"))
	assert.Equal(t, ErrorTypeNetwork, refused.Type)
	assert.True(t, refused.HasSuggestion())

	unknown := CategorizeError(errors.New("something odd"))
	assert.Equal(t, ErrorTypeUnknown, unknown.Type)
}

func TestCategorizeError_Passthrough(t *testing.T) {
	original := NotFoundError("Message", "m-1")
	assert.Same(t, original, CategorizeError(fmt.Errorf("wrapped: %w", original)))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NotFoundError("Conversation", "c-1")))
	assert.True(t, IsNotFound(&statusErr{status: 404}))
	assert.False(t, IsNotFound(&statusErr{status: 500}))
	assert.False(t, IsNotFound(errors.New("plain")))
}

func TestFormatError(t *testing.T) {
	assert.Equal(t, "", FormatError(nil))

	out := FormatError(RateLimitError(nil))
	assert.True(t, strings.HasPrefix(out, "Error (rate_limit): "))
	assert.Contains(t, out, "Suggestion: ")
}
