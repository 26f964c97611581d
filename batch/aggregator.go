package batch

import (
	"sync"

	"github.com/fanoutllm/fanout/metrics"
	"github.com/fanoutllm/fanout/types"
)

// Aggregator merges outcomes into batch-level metrics. Merging is serialized
// behind a single mutex; correctness over cleverness at this volume.
type Aggregator struct {
	mu        sync.Mutex
	metrics   types.BatchMetrics
	collector *metrics.Collector
}

// NewAggregator creates an aggregator. collector is optional.
func NewAggregator(collector *metrics.Collector) *Aggregator {
	return &Aggregator{collector: collector}
}

// Record merges one outcome. Provider-reported cache usage wins over the
// predicted class; a predicted read that the provider did not confirm still
// counts as a hit only for providers that report nothing at all.
func (a *Aggregator) Record(req *Request, o *Outcome) {
	if !reportMetrics(req) {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.metrics.TotalRequests++
	if o.Err != nil {
		return
	}

	a.metrics.InputTokens += o.Usage.PromptTokens
	a.metrics.CachedTokens += o.Usage.CacheReadTokens
	a.metrics.CacheReadTokens += o.Usage.CacheReadTokens
	a.metrics.CacheWriteTokens += o.Usage.CacheWriteTokens

	predicted := CacheClass("")
	if o.FromResponseCache {
		predicted = ClassSkip
	} else if req.Annotation != nil {
		predicted = req.Annotation.Class
	}

	switch {
	case o.Usage.CacheReadTokens > 0:
		a.metrics.CacheHits++
		a.recordCache(req, "hit")
	case o.Usage.CacheWriteTokens > 0:
		a.metrics.CacheWrites++
		a.recordCache(req, "write")
	case predicted == ClassRead:
		// Providers without usage markers (Groq) report nothing; trust the
		// grouper's prediction.
		a.metrics.CacheHits++
		a.recordCache(req, "hit")
	case predicted == ClassWrite:
		a.metrics.CacheWrites++
		a.recordCache(req, "write")
	default:
		a.metrics.CacheMisses++
		a.recordCache(req, "miss")
	}
}

func (a *Aggregator) recordCache(req *Request, kind string) {
	if a.collector == nil {
		return
	}
	switch kind {
	case "hit":
		a.collector.RecordCacheHit(req.Provider, req.Model)
	case "write":
		a.collector.RecordCacheWrite(req.Provider, req.Model)
	case "miss":
		a.collector.RecordCacheMiss(req.Provider, req.Model)
	}
}

// Metrics returns a copy of the accumulated batch metrics.
func (a *Aggregator) Metrics() *types.BatchMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	m := a.metrics
	return &m
}
