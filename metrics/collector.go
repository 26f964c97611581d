// Package metrics exposes Prometheus instrumentation for batch dispatch.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector records dispatch, token, and prefix-cache metrics.
type Collector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensUsed      *prometheus.CounterVec
	retriesTotal    *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheWrites *prometheus.CounterVec

	batchRows *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector registers the metric families on reg. A nil reg uses the
// default registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.requestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.requestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Provider request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.tokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion, cache_read, cache_write
	)

	c.retriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total number of retried provider calls",
		},
		[]string{"provider", "model"},
	)

	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of prompt cache hits",
		},
		[]string{"provider", "model"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of prompt cache misses",
		},
		[]string{"provider", "model"},
	)

	c.cacheWrites = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_writes_total",
			Help:      "Total number of prompt cache prefix writes",
		},
		[]string{"provider", "model"},
	)

	c.batchRows = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_rows",
			Help:      "Rows per dispatched batch",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"provider"},
	)

	return c
}

// RecordRequest records one completed provider call.
func (c *Collector) RecordRequest(provider, model, status string, duration time.Duration,
	promptTokens, completionTokens, cacheReadTokens, cacheWriteTokens int) {
	c.requestsTotal.WithLabelValues(provider, model, status).Inc()
	c.requestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.tokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.tokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	if cacheReadTokens > 0 {
		c.tokensUsed.WithLabelValues(provider, model, "cache_read").Add(float64(cacheReadTokens))
	}
	if cacheWriteTokens > 0 {
		c.tokensUsed.WithLabelValues(provider, model, "cache_write").Add(float64(cacheWriteTokens))
	}
}

// RecordRetry records one retried call.
func (c *Collector) RecordRetry(provider, model string) {
	c.retriesTotal.WithLabelValues(provider, model).Inc()
}

// RecordCacheHit records a prompt-cache hit.
func (c *Collector) RecordCacheHit(provider, model string) {
	c.cacheHits.WithLabelValues(provider, model).Inc()
}

// RecordCacheMiss records a prompt-cache miss.
func (c *Collector) RecordCacheMiss(provider, model string) {
	c.cacheMisses.WithLabelValues(provider, model).Inc()
}

// RecordCacheWrite records a prefix write.
func (c *Collector) RecordCacheWrite(provider, model string) {
	c.cacheWrites.WithLabelValues(provider, model).Inc()
}

// RecordBatch records the size of a dispatched batch.
func (c *Collector) RecordBatch(provider string, rows int) {
	c.batchRows.WithLabelValues(provider).Observe(float64(rows))
}
