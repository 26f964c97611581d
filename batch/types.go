package batch

import (
	"fmt"

	"github.com/fanoutllm/fanout/types"
)

// Row is one immutable input unit. Either Prompt or Messages is set;
// Provider and Model override the batch defaults when non-empty.
type Row struct {
	Index    int
	Prompt   string
	Messages []types.Message
	Provider string
	Model    string
	// Cache overrides the batch-level directive for this row when non-nil.
	// Rows only group together when their directives are identical.
	Cache *CacheDirective
}

// CacheStrategy selects how the grouper picks cacheable prefixes.
type CacheStrategy string

const (
	// CacheNone disables prefix caching for the request.
	CacheNone CacheStrategy = "none"
	// CacheAuto finds the longest common prefix shared by at least two
	// requests targeting the same provider and model.
	CacheAuto CacheStrategy = "auto"
	// CacheSystemPrompt caches the leading system messages.
	CacheSystemPrompt CacheStrategy = "system_prompt"
	// CacheSchema caches the leading system messages including the schema
	// instruction block.
	CacheSchema CacheStrategy = "schema"
	// CacheFullPrefix caches everything except the final user message.
	CacheFullPrefix CacheStrategy = "full_prefix"
)

// CacheDirective is the caller's caching intent for a batch (or row).
type CacheDirective struct {
	Strategy      CacheStrategy
	MinTokens     int    // prefixes below this estimate are never cached
	TTL           string // "5m" or "1h"
	CacheKey      string // explicit routing key; overrides the derived group key
	ReportMetrics bool

	minTokensSet bool
}

// WithMinTokens sets the caching threshold explicitly, allowing zero so
// prefixes of any size are cached.
func (d *CacheDirective) WithMinTokens(n int) *CacheDirective {
	d.MinTokens = n
	d.minTokensSet = true
	return d
}

// normalized returns a defaulted copy; the caller's directive is never
// mutated.
func (d *CacheDirective) normalized() *CacheDirective {
	if d == nil {
		return nil
	}
	c := *d
	if c.Strategy == "" {
		c.Strategy = CacheAuto
	}
	if c.MinTokens == 0 && !c.minTokensSet {
		c.MinTokens = 1024
	}
	if c.MinTokens < 0 {
		c.MinTokens = 0
	}
	if c.TTL == "" {
		c.TTL = "5m"
	}
	return &c
}

// scope folds the fields that define group identity: requests with differing
// directives never share a prefix group.
func (d *CacheDirective) scope() string {
	return fmt.Sprintf("%s\x00%d\x00%s", d.Strategy, d.MinTokens, d.TTL)
}

// DefaultCacheDirective returns the default caching intent.
func DefaultCacheDirective() *CacheDirective {
	return &CacheDirective{
		Strategy:      CacheAuto,
		MinTokens:     1024,
		TTL:           "5m",
		ReportMetrics: true,
	}
}

// CacheClass is the grouper's verdict for one request.
type CacheClass string

const (
	// ClassWrite marks the first request of a group: it pays the cache write.
	ClassWrite CacheClass = "write"
	// ClassRead marks later requests of a group: they read the warm prefix.
	ClassRead CacheClass = "read"
	// ClassSkip marks requests that never touch the prefix cache.
	ClassSkip CacheClass = "skip"
)

// CacheAnnotation is attached by the grouper before dispatch and read-only
// afterwards.
type CacheAnnotation struct {
	// PrefixBoundary is the number of leading messages in the cacheable
	// prefix. Zero means no prefix.
	PrefixBoundary int
	Class          CacheClass
	// GroupKey identifies the shared prefix: requests carry equal keys iff
	// their messages are byte-identical up to the boundary, they target the
	// same provider and model, and their directives agree.
	GroupKey     string
	PrefixTokens int
}

// Request is one planned provider call. The planner owns creation; only the
// grouper mutates it afterwards, and only to set Annotation.
type Request struct {
	Index    int
	ID       string
	Provider string
	Model    string
	Messages []types.Message

	Schema    *types.JSONSchema
	Directive *CacheDirective

	Annotation *CacheAnnotation

	// PlanErr marks a malformed row. The request occupies its slot but is
	// never dispatched.
	PlanErr *types.Error
}

// Outcome is the terminal result for one request: exactly one per request,
// after all retries and validation.
type Outcome struct {
	Index    int
	Content  string
	Usage    types.UsageStats
	CacheHit bool
	// FromResponseCache is set when the exact-match response cache
	// short-circuited dispatch.
	FromResponseCache bool
	Attempts          int
	Err               *types.Error
}

// BatchResult is what Run returns: outputs and outcomes are row-aligned and
// always length N.
type BatchResult struct {
	Outputs  []string
	Outcomes []*Outcome
	Metrics  *types.BatchMetrics
}
