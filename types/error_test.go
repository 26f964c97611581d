package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorChaining(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewError(ErrUpstreamError, "request failed").
		WithCause(cause).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("openai")

	assert.Contains(t, err.Error(), "UPSTREAM_ERROR")
	assert.Contains(t, err.Error(), "connection reset")
	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, ErrUpstreamError, GetErrorCode(err))
}

func TestAsError(t *testing.T) {
	assert.Nil(t, AsError(nil))

	plain := errors.New("boom")
	wrapped := AsError(plain)
	assert.Equal(t, ErrInternalError, wrapped.Code)
	assert.False(t, wrapped.Retryable)

	typed := NewError(ErrRateLimited, "slow down").WithRetryable(true)
	assert.Same(t, typed, AsError(typed))
}
