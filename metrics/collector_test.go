package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("fanout", reg, nil)

	c.RecordRequest("openai", "gpt-4o", "success", 500*time.Millisecond, 100, 20, 80, 0)
	c.RecordRequest("openai", "gpt-4o", "error", time.Second, 0, 0, 0, 0)

	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.requestsTotal.WithLabelValues("openai", "gpt-4o", "success")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.requestsTotal.WithLabelValues("openai", "gpt-4o", "error")))
	assert.Equal(t, float64(100),
		testutil.ToFloat64(c.tokensUsed.WithLabelValues("openai", "gpt-4o", "prompt")))
	assert.Equal(t, float64(80),
		testutil.ToFloat64(c.tokensUsed.WithLabelValues("openai", "gpt-4o", "cache_read")))
}

func TestRecordCacheCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("fanout", reg, nil)

	c.RecordCacheWrite("anthropic", "claude-sonnet-4-5")
	c.RecordCacheHit("anthropic", "claude-sonnet-4-5")
	c.RecordCacheHit("anthropic", "claude-sonnet-4-5")
	c.RecordCacheMiss("anthropic", "claude-sonnet-4-5")

	assert.Equal(t, float64(2),
		testutil.ToFloat64(c.cacheHits.WithLabelValues("anthropic", "claude-sonnet-4-5")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.cacheMisses.WithLabelValues("anthropic", "claude-sonnet-4-5")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.cacheWrites.WithLabelValues("anthropic", "claude-sonnet-4-5")))
}

func TestRecordRetry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("fanout", reg, nil)

	c.RecordRetry("groq", "llama-3.3-70b-versatile")
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.retriesTotal.WithLabelValues("groq", "llama-3.3-70b-versatile")))
}
