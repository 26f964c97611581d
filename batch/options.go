package batch

import (
	"time"

	"github.com/fanoutllm/fanout/types"
)

const (
	defaultMaxConcurrency = 16
	defaultMaxAttempts    = 3
	defaultSchemaRetries  = 1
)

// Options configures one Run call.
type Options struct {
	// Provider and Model are the batch defaults; rows may override both.
	Provider string
	Model    string

	MaxTokens   int
	Temperature float32

	// Schema requests structured output: the planner prepends the schema
	// instruction block and the validator enforces the shape.
	Schema *types.JSONSchema

	// Cache is the prefix-caching intent. Nil disables prefix caching.
	Cache *CacheDirective

	// TrackUsage switches outputs to usage-wrapped JSON records.
	TrackUsage bool

	// MaxConcurrency bounds in-flight calls per (provider, model).
	MaxConcurrency int
	// MaxAttempts bounds provider calls per row for transient errors,
	// including the first.
	MaxAttempts int
	// AttemptTimeout cancels a single call; the timeout counts as a
	// retryable row error, not a batch failure.
	AttemptTimeout time.Duration
	// SchemaRetries is the number of corrective follow-ups after a failed
	// structured-output validation.
	SchemaRetries int

	schemaRetriesSet bool
}

// WithSchemaRetries sets the corrective follow-up budget explicitly,
// allowing zero.
func (o Options) WithSchemaRetries(k int) Options {
	o.SchemaRetries = k
	o.schemaRetriesSet = true
	return o
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = defaultMaxConcurrency
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.SchemaRetries <= 0 && !o.schemaRetriesSet {
		o.SchemaRetries = defaultSchemaRetries
	}
	if o.SchemaRetries < 0 {
		o.SchemaRetries = 0
	}
	o.Cache = o.Cache.normalized()
	return o
}
