package providers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/fanoutllm/fanout/types"
)

// MapHTTPError converts an upstream HTTP status into a *types.Error with
// the code and retryability shared by all adapters. Provider-specific
// status codes are handled by the adapters before falling through here.
func MapHTTPError(status int, msg, provider string) *types.Error {
	switch status {
	case http.StatusUnauthorized:
		return types.NewError(types.ErrAuthentication, msg).WithHTTPStatus(status).WithProvider(provider)
	case http.StatusForbidden:
		return types.NewError(types.ErrForbidden, msg).WithHTTPStatus(status).WithProvider(provider)
	case http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, msg).WithHTTPStatus(status).WithRetryable(true).WithProvider(provider)
	case http.StatusBadRequest:
		return types.NewError(types.ErrInvalidRequest, msg).WithHTTPStatus(status).WithProvider(provider)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return types.NewError(types.ErrTimeout, msg).WithHTTPStatus(status).WithRetryable(true).WithProvider(provider)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return types.NewError(types.ErrUpstreamError, msg).WithHTTPStatus(status).WithRetryable(true).WithProvider(provider)
	default:
		return types.NewError(types.ErrUpstreamError, msg).
			WithHTTPStatus(status).
			WithRetryable(status >= 500).
			WithProvider(provider)
	}
}

// MapTransportError converts a transport-level failure (connection error,
// context deadline) into a *types.Error.
func MapTransportError(err error, provider string) *types.Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewError(types.ErrTimeout, "request deadline exceeded").
			WithRetryable(true).WithProvider(provider).WithCause(err)
	case errors.Is(err, context.Canceled):
		return types.NewError(types.ErrCancelled, "request cancelled").
			WithProvider(provider).WithCause(err)
	default:
		return types.NewError(types.ErrUpstreamError, err.Error()).
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).
			WithProvider(provider).
			WithCause(err)
	}
}

// ReadErrorBody drains an error response body for inclusion in messages,
// capped to keep log lines bounded.
func ReadErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	return string(data)
}
