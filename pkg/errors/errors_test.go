package errors

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	t.Run("with operation", func(t *testing.T) {
		err := NewTransientAI("upstream timeout").WithOperation("summarize")
		assert.Equal(t, "[transient_ai_error] upstream timeout (operation=summarize)", err.Error())
	})

	t.Run("without operation", func(t *testing.T) {
		err := NewValidation("text is required")
		assert.Equal(t, "[validation_error] text is required", err.Error())
	})
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{NewValidation("x"), http.StatusBadRequest},
		{NewAuthentication("x"), http.StatusUnauthorized},
		{NewAuthorization("x"), http.StatusForbidden},
		{NewRateLimit("x", 0), http.StatusTooManyRequests},
		{NewTransientAI("x"), http.StatusServiceUnavailable},
		{NewPermanentAI("x"), http.StatusBadGateway},
		{NewInfrastructure("x"), http.StatusServiceUnavailable},
		{NewConfiguration("x"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.err.HTTPStatusCode(), string(tc.err.Kind))
	}
}

func TestRetryability(t *testing.T) {
	assert.True(t, IsRetryable(NewTransientAI("timeout")))
	assert.True(t, IsRetryable(NewRateLimit("slow down", time.Second)))
	assert.True(t, IsRetryable(NewInfrastructure("redis down")))
	assert.False(t, IsRetryable(NewPermanentAI("bad request")))
	assert.False(t, IsRetryable(NewValidation("empty")))
	assert.False(t, IsRetryable(fmt.Errorf("plain error")))
}

func TestUnwrapAndKind(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := NewTransientAI("provider call failed").WithCause(cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, KindTransientAI, KindOf(err))
	assert.Equal(t, KindTransientAI, KindOf(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, KindInfrastructure, KindOf(fmt.Errorf("plain")))
}

func TestRetryAfterOf(t *testing.T) {
	err := NewRateLimit("throttled", 3*time.Second)
	assert.Equal(t, 3*time.Second, RetryAfterOf(err))
	assert.Equal(t, time.Duration(0), RetryAfterOf(NewTransientAI("x")))
}
