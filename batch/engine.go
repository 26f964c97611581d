package batch

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fanoutllm/fanout/cache"
	"github.com/fanoutllm/fanout/metrics"
	"github.com/fanoutllm/fanout/providers"
	"github.com/fanoutllm/fanout/tokenizer"
)

// Engine is the batch dispatch facade: plan, group, dispatch, validate,
// aggregate, assemble. It holds no per-batch state; one Engine serves any
// number of concurrent Run calls.
type Engine struct {
	registry   *providers.Registry
	logger     *zap.Logger
	counterFor func(model string) tokenizer.Counter
	respCache  cache.ResponseCache
	collector  *metrics.Collector
	limiter    *rate.Limiter
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithTokenCounter overrides the per-model token counter selector used for
// prefix size estimation.
func WithTokenCounter(counterFor func(model string) tokenizer.Counter) Option {
	return func(e *Engine) { e.counterFor = counterFor }
}

// WithResponseCache enables the exact-match response cache.
func WithResponseCache(c cache.ResponseCache) Option {
	return func(e *Engine) { e.respCache = c }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.collector = c }
}

// WithRateLimit applies a global requests-per-second ceiling across all
// providers, on top of the per (provider, model) concurrency bound.
func WithRateLimit(rps float64, burst int) Option {
	return func(e *Engine) { e.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// New creates an Engine over an explicitly constructed registry. There is no
// process-wide registry: callers own provider wiring.
func New(registry *providers.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:   registry,
		logger:     zap.NewNop(),
		counterFor: tokenizer.ForModel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run dispatches one batch and returns row-aligned outputs. The returned
// error is non-nil only for configuration errors and whole-batch
// cancellation; per-row failures land in outcomes and outputs.
func (e *Engine) Run(ctx context.Context, rows []Row, opts Options) (*BatchResult, error) {
	opts = opts.withDefaults()
	batchID := uuid.NewString()
	logger := e.logger.With(zap.String("batch_id", batchID))

	logger.Info("batch started",
		zap.Int("rows", len(rows)),
		zap.String("default_provider", opts.Provider),
		zap.String("default_model", opts.Model))

	requests, err := NewPlanner(logger).Plan(rows, opts)
	if err != nil {
		return nil, err
	}
	NewGrouper(e.counterFor, logger).Annotate(requests)

	scheduler := NewScheduler(e.registry, e.respCache, e.collector, e.limiter, logger)
	outcomes, err := scheduler.Dispatch(ctx, requests, opts)
	if err != nil {
		logger.Warn("batch failed", zap.Error(err))
		return nil, err
	}

	aggregator := NewAggregator(e.collector)
	for i, o := range outcomes {
		aggregator.Record(requests[i], o)
	}
	if e.collector != nil {
		e.collector.RecordBatch(opts.Provider, len(rows))
	}

	m := aggregator.Metrics()
	logger.Info("batch finished",
		zap.Int("requests", m.TotalRequests),
		zap.Int("cache_hits", m.CacheHits),
		zap.Float64("cache_hit_rate", m.CacheHitRate()))

	return &BatchResult{
		Outputs:  NewAssembler(logger).Assemble(outcomes, opts),
		Outcomes: outcomes,
		Metrics:  m,
	}, nil
}
