// Package retry implements jittered exponential backoff for provider calls.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/fanoutllm/fanout/types"
)

// Policy configures the retry behavior of one dispatch loop.
type Policy struct {
	MaxAttempts  int           // total attempts including the first (minimum 1)
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // upper bound on any single delay
	Multiplier   float64       // exponential growth factor
	Jitter       bool          // randomize each delay by ±25%

	// OnRetry, when set, is invoked before each backoff wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy returns the policy used when the caller supplies none:
// three attempts with jittered exponential backoff.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

func (p *Policy) normalize() {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}
}

// Retryer executes functions under a Policy. Errors are retried only when
// types.IsRetryable reports them as transient; configuration and validation
// errors pass through on the first attempt.
type Retryer struct {
	policy *Policy
	logger *zap.Logger
}

// New creates a Retryer. A nil policy selects DefaultPolicy; a nil logger
// selects a no-op logger.
func New(policy *Policy, logger *zap.Logger) *Retryer {
	if policy == nil {
		policy = DefaultPolicy()
	}
	policy.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retryer{policy: policy, logger: logger}
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempt budget is exhausted. The backoff wait observes ctx cancellation.
// On exhaustion the last error is returned with Retryable forced to false
// so callers can tell terminal failures from transient ones.
func (r *Retryer) Do(ctx context.Context, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := r.delay(attempt)
			r.logger.Debug("retrying after backoff",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", r.policy.MaxAttempts),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}
			select {
			case <-ctx.Done():
				return types.NewError(types.ErrCancelled, "retry cancelled").WithCause(ctx.Err())
			case <-time.After(delay):
			}
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			if attempt > 1 {
				r.logger.Debug("retry succeeded", zap.Int("attempt", attempt))
			}
			return nil
		}

		if !types.IsRetryable(lastErr) {
			return lastErr
		}
	}

	r.logger.Warn("retry attempts exhausted",
		zap.Int("attempts", r.policy.MaxAttempts),
		zap.Error(lastErr),
	)
	return exhausted(lastErr)
}

// delay computes the backoff before the given attempt (attempt >= 2).
func (r *Retryer) delay(attempt int) time.Duration {
	d := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-2))
	if d > float64(r.policy.MaxDelay) {
		d = float64(r.policy.MaxDelay)
	}
	if r.policy.Jitter {
		jitter := d * 0.25
		d += (rand.Float64()*2 - 1) * jitter
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// exhausted clears the retryable flag on the terminal error.
func exhausted(err error) error {
	e := types.AsError(err)
	out := *e
	out.Retryable = false
	return &out
}
