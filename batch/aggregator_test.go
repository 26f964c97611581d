package batch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fanoutllm/fanout/types"
)

func annotated(class CacheClass) *Request {
	return &Request{
		Provider:   "openai",
		Model:      "gpt-4o",
		Directive:  &CacheDirective{Strategy: CacheSystemPrompt, ReportMetrics: true},
		Annotation: &CacheAnnotation{Class: class, GroupKey: "k", PrefixBoundary: 1},
	}
}

func TestAggregatorActualUsageWinsOverPrediction(t *testing.T) {
	a := NewAggregator(nil)

	// Predicted write, but the provider reports a read.
	a.Record(annotated(ClassWrite), &Outcome{
		Usage: types.UsageStats{PromptTokens: 100, CacheReadTokens: 90},
	})

	m := a.Metrics()
	assert.Equal(t, 1, m.CacheHits)
	assert.Equal(t, 0, m.CacheWrites)
	assert.Equal(t, 90, m.CachedTokens)
}

func TestAggregatorPredictedClassesWithoutUsage(t *testing.T) {
	a := NewAggregator(nil)
	a.Record(annotated(ClassWrite), &Outcome{Usage: types.UsageStats{PromptTokens: 10}})
	a.Record(annotated(ClassRead), &Outcome{Usage: types.UsageStats{PromptTokens: 10}})
	a.Record(annotated(ClassSkip), &Outcome{Usage: types.UsageStats{PromptTokens: 10}})

	m := a.Metrics()
	assert.Equal(t, 3, m.TotalRequests)
	assert.Equal(t, 1, m.CacheWrites)
	assert.Equal(t, 1, m.CacheHits)
	assert.Equal(t, 1, m.CacheMisses)
	assert.Equal(t, 30, m.InputTokens)
}

func TestAggregatorErrorsCountRequestsOnly(t *testing.T) {
	a := NewAggregator(nil)
	a.Record(annotated(ClassRead), &Outcome{Err: types.NewError(types.ErrTimeout, "t")})

	m := a.Metrics()
	assert.Equal(t, 1, m.TotalRequests)
	assert.Equal(t, 0, m.CacheHits)
	assert.Equal(t, 0, m.InputTokens)
}

func TestAggregatorSuppressedDirective(t *testing.T) {
	a := NewAggregator(nil)
	req := annotated(ClassWrite)
	req.Directive.ReportMetrics = false
	a.Record(req, &Outcome{Usage: types.UsageStats{PromptTokens: 10}})

	assert.Equal(t, 0, a.Metrics().TotalRequests)
}

func TestAggregatorConcurrentMerge(t *testing.T) {
	a := NewAggregator(nil)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Record(annotated(ClassRead), &Outcome{
				Usage: types.UsageStats{PromptTokens: 5, CacheReadTokens: 3},
			})
		}()
	}
	wg.Wait()

	m := a.Metrics()
	assert.Equal(t, 100, m.TotalRequests)
	assert.Equal(t, 100, m.CacheHits)
	assert.Equal(t, 500, m.InputTokens)
	assert.Equal(t, 300, m.CacheReadTokens)
}

func TestCacheHitRateBounds(t *testing.T) {
	m := &types.BatchMetrics{}
	assert.Zero(t, m.CacheHitRate())

	m.TotalRequests = 4
	m.CacheHits = 4
	assert.Equal(t, 1.0, m.CacheHitRate())
}
