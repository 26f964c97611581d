// Package providers defines the uniform adapter contract for LLM backends
// and the explicit registry the batch engine dispatches through.
//
// Each adapter hides one backend's wire format and authentication. The
// engine depends only on the Completer capability; provider-specific types
// never leak past their own package.
package providers

import (
	"context"

	"github.com/fanoutllm/fanout/types"
)

// CacheTTL values understood by providers with explicit cache markers.
const (
	CacheTTL5m = "5m"
	CacheTTL1h = "1h"
)

// Request is the provider-agnostic form of one model call.
type Request struct {
	Model       string
	Messages    []types.Message
	MaxTokens   int
	Temperature float32

	// CacheBoundary is the number of leading messages forming the cacheable
	// prefix, zero when the call does not participate in prefix caching.
	// Adapters translate it into their backend's marker (Anthropic
	// cache_control) or ignore it where caching is automatic.
	CacheBoundary int

	// CacheTTL is the requested cache lifetime ("5m" or "1h"); only
	// meaningful when CacheBoundary > 0.
	CacheTTL string

	// CacheKey is an optional routing hint forwarded verbatim to providers
	// that accept one (OpenAI prompt_cache_key).
	CacheKey string
}

// Response is the provider-agnostic result of one model call.
type Response struct {
	Content string
	Model   string
	Usage   types.UsageStats
}

// Completer is the uniform capability one backend adapter exposes.
// Complete returns either a Response or a *types.Error carrying the
// retryability and error code the scheduler's retry loop consumes.
type Completer interface {
	// Name returns the provider identifier the adapter serves.
	Name() string

	// Complete performs one model call. Implementations must honor ctx
	// cancellation and deadlines.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// ValidateCredentials reports whether the adapter has usable
	// credentials. Called once per provider before any dispatch.
	ValidateCredentials() error
}
