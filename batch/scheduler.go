package batch

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/fanoutllm/fanout/cache"
	"github.com/fanoutllm/fanout/metrics"
	"github.com/fanoutllm/fanout/providers"
	"github.com/fanoutllm/fanout/retry"
	"github.com/fanoutllm/fanout/structured"
	"github.com/fanoutllm/fanout/types"
)

// Scheduler dispatches annotated requests through the registry under a per
// (provider, model) in-flight limit. It produces exactly one outcome per
// request, row-aligned.
type Scheduler struct {
	registry  *providers.Registry
	respCache cache.ResponseCache
	collector *metrics.Collector
	limiter   *rate.Limiter
	tracer    trace.Tracer
	logger    *zap.Logger
}

// NewScheduler creates a scheduler. respCache, collector, and limiter are
// all optional.
func NewScheduler(registry *providers.Registry, respCache cache.ResponseCache,
	collector *metrics.Collector, limiter *rate.Limiter, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		registry:  registry,
		respCache: respCache,
		collector: collector,
		limiter:   limiter,
		tracer:    otel.Tracer("github.com/fanoutllm/fanout/batch"),
		logger:    logger,
	}
}

// Dispatch runs all requests concurrently and returns their outcomes in
// request order. Configuration errors (unknown provider, bad credentials)
// fail the batch before any network traffic; per-row errors land in the
// row's outcome. Cancellation of ctx fails the whole batch.
func (s *Scheduler) Dispatch(ctx context.Context, requests []*Request, opts Options) ([]*Outcome, error) {
	completers, err := s.resolveCompleters(requests)
	if err != nil {
		return nil, err
	}

	sems := make(map[string]*semaphore.Weighted)
	for _, req := range requests {
		if req.PlanErr != nil {
			continue
		}
		key := req.Provider + "/" + req.Model
		if _, ok := sems[key]; !ok {
			sems[key] = semaphore.NewWeighted(int64(opts.MaxConcurrency))
		}
	}

	outcomes := make([]*Outcome, len(requests))
	g, gctx := errgroup.WithContext(ctx)
	for _, req := range requests {
		req := req
		if req.PlanErr != nil {
			outcomes[req.Index] = &Outcome{Index: req.Index, Err: req.PlanErr}
			continue
		}
		sem := sems[req.Provider+"/"+req.Model]
		completer := completers[req.Provider]

		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			if s.limiter != nil {
				if err := s.limiter.Wait(gctx); err != nil {
					return err
				}
			}

			outcome := s.execute(gctx, completer, req, opts)
			if gctx.Err() != nil {
				// Whole-batch cancellation: no partial outputs.
				return gctx.Err()
			}
			outcomes[req.Index] = outcome
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, types.NewError(types.ErrCancelled, "batch cancelled").WithCause(err)
	}
	return outcomes, nil
}

// resolveCompleters looks up and credential-checks every provider the batch
// touches, once each, before any dispatch.
func (s *Scheduler) resolveCompleters(requests []*Request) (map[string]providers.Completer, error) {
	completers := make(map[string]providers.Completer)
	for _, req := range requests {
		if req.PlanErr != nil {
			continue
		}
		if _, ok := completers[req.Provider]; ok {
			continue
		}
		c, err := s.registry.Get(req.Provider)
		if err != nil {
			return nil, err
		}
		if err := c.ValidateCredentials(); err != nil {
			return nil, types.AsError(err)
		}
		completers[req.Provider] = c
	}
	return completers, nil
}

// execute drives one request to its terminal outcome: response-cache lookup,
// retried dispatch, then structured-output validation.
func (s *Scheduler) execute(ctx context.Context, completer providers.Completer, req *Request, opts Options) *Outcome {
	ctx, span := s.tracer.Start(ctx, "batch.dispatch",
		trace.WithAttributes(
			attribute.String("provider", req.Provider),
			attribute.String("model", req.Model),
			attribute.Int("row", req.Index),
			attribute.String("request_id", req.ID),
		))
	defer span.End()

	preq := s.buildProviderRequest(req, opts)

	if s.respCache != nil {
		key := cache.Key(req.Provider, preq)
		if entry, err := s.respCache.Get(ctx, key); err == nil {
			span.SetAttributes(attribute.Bool("response_cache.hit", true))
			return &Outcome{
				Index:             req.Index,
				Content:           entry.Content,
				Usage:             entry.Usage,
				CacheHit:          entry.Usage.CacheUsed(),
				FromResponseCache: true,
			}
		}
	}

	outcome := &Outcome{Index: req.Index}
	resp, attempts, err := s.callWithRetry(ctx, completer, req, preq, opts)
	outcome.Attempts = attempts
	if err != nil {
		outcome.Err = types.AsError(err)
		span.SetStatus(codes.Error, outcome.Err.Message)
		return outcome
	}

	content := resp.Content
	usage := resp.Usage

	if req.Schema != nil {
		validated, err := s.validate(ctx, completer, req, opts, content, &usage, &outcome.Attempts)
		if err != nil {
			outcome.Err = types.AsError(err)
			outcome.Usage = usage
			span.SetStatus(codes.Error, outcome.Err.Message)
			return outcome
		}
		content = validated
	}

	outcome.Content = content
	outcome.Usage = usage
	outcome.CacheHit = usage.CacheUsed()

	if s.respCache != nil {
		entry := &cache.Entry{Content: content, Model: resp.Model, Usage: usage}
		if err := s.respCache.Set(ctx, cache.Key(req.Provider, preq), entry); err != nil {
			s.logger.Warn("response cache write failed", zap.Error(err))
		}
	}
	return outcome
}

func (s *Scheduler) buildProviderRequest(req *Request, opts Options) *providers.Request {
	preq := &providers.Request{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	if ann := req.Annotation; ann != nil && ann.Class != ClassSkip {
		preq.CacheBoundary = ann.PrefixBoundary
		preq.CacheTTL = req.Directive.TTL
		preq.CacheKey = ann.GroupKey
	}
	return preq
}

// callWithRetry performs one provider call under the transient-error retry
// policy and the per-attempt deadline.
func (s *Scheduler) callWithRetry(ctx context.Context, completer providers.Completer,
	req *Request, preq *providers.Request, opts Options) (*providers.Response, int, error) {
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = opts.MaxAttempts
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		if s.collector != nil {
			s.collector.RecordRetry(req.Provider, req.Model)
		}
	}
	retryer := retry.New(policy, s.logger)

	var resp *providers.Response
	attempts := 0
	start := time.Now()
	err := retryer.Do(ctx, func(attempt int) error {
		attempts = attempt
		actx := ctx
		if opts.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, opts.AttemptTimeout)
			defer cancel()
		}
		r, err := completer.Complete(actx, preq)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})

	if s.collector != nil && reportMetrics(req) {
		status := "success"
		u := types.UsageStats{}
		if err != nil {
			status = "error"
		} else {
			u = resp.Usage
		}
		s.collector.RecordRequest(req.Provider, req.Model, status, time.Since(start),
			u.PromptTokens, u.CompletionTokens, u.CacheReadTokens, u.CacheWriteTokens)
	}
	if err != nil {
		return nil, attempts, err
	}
	return resp, attempts, nil
}

// validate enforces the response schema, issuing at most opts.SchemaRetries
// corrective follow-ups. Usage from follow-up calls accumulates into usage.
func (s *Scheduler) validate(ctx context.Context, completer providers.Completer,
	req *Request, opts Options, content string, usage *types.UsageStats, attempts *int) (string, error) {
	validator := structured.NewValidator()

	for k := 0; ; k++ {
		extracted := structured.ExtractJSON(content)
		verr := validator.Validate([]byte(extracted), req.Schema)
		if verr == nil {
			return extracted, nil
		}
		if k >= opts.SchemaRetries {
			return "", types.NewError(types.ErrSchemaValidation,
				fmt.Sprintf("response failed schema validation after %d corrective attempts: %v", k, verr)).
				WithProvider(req.Provider)
		}

		s.logger.Debug("schema validation failed, issuing corrective follow-up",
			zap.Int("row", req.Index), zap.Int("attempt", k+1), zap.Error(verr))

		followup := make([]types.Message, 0, len(req.Messages)+2)
		followup = append(followup, req.Messages...)
		followup = append(followup,
			types.NewAssistantMessage(content),
			structured.CorrectiveMessage(verr))

		// Corrective calls never carry cache markers: the prefix no longer
		// matches the group.
		preq := &providers.Request{
			Model:       req.Model,
			Messages:    followup,
			MaxTokens:   opts.MaxTokens,
			Temperature: opts.Temperature,
		}
		resp, n, err := s.callWithRetry(ctx, completer, req, preq, opts)
		*attempts += n
		if err != nil {
			return "", err
		}
		usage.Add(resp.Usage)
		content = resp.Content
	}
}

func reportMetrics(req *Request) bool {
	return req.Directive == nil || req.Directive.ReportMetrics
}
