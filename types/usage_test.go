package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUsageStatsAdd(t *testing.T) {
	u := UsageStats{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}
	u.Add(UsageStats{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5, CacheReadTokens: 3})

	assert.Equal(t, 13, u.PromptTokens)
	assert.Equal(t, 7, u.CompletionTokens)
	assert.Equal(t, 20, u.TotalTokens)
	assert.Equal(t, 3, u.CacheReadTokens)
	assert.True(t, u.CacheUsed())
}

func TestBatchMetricsCacheHitRate(t *testing.T) {
	var empty BatchMetrics
	assert.Equal(t, 0.0, empty.CacheHitRate())

	m := BatchMetrics{TotalRequests: 100, CacheHits: 90, CacheReadTokens: 90000}
	assert.InDelta(t, 0.9, m.CacheHitRate(), 1e-9)
}

func TestBatchMetricsEstimatedSavings(t *testing.T) {
	m := BatchMetrics{CacheReadTokens: 1_000_000}
	// $3/M input tokens, 90% discount on cache reads.
	assert.InDelta(t, 2.7, m.EstimatedSavings(3.0), 1e-9)

	var empty BatchMetrics
	assert.Equal(t, 0.0, empty.EstimatedSavings(3.0))
}
