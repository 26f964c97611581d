package types

// UsageStats represents token consumption for one request, including the
// provider-reported prompt-cache breakdown.
type UsageStats struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	CacheWriteTokens int `json:"cache_write_tokens,omitempty"`
	CacheReadTokens  int `json:"cache_read_tokens,omitempty"`
}

// Add accumulates another UsageStats into this one. Used when a row makes
// more than one provider call (corrective follow-ups).
func (u *UsageStats) Add(other UsageStats) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	u.CacheWriteTokens += other.CacheWriteTokens
	u.CacheReadTokens += other.CacheReadTokens
}

// CacheUsed reports whether the provider served any part of the prompt from
// its prefix cache.
func (u UsageStats) CacheUsed() bool {
	return u.CacheReadTokens > 0
}

// BatchMetrics aggregates usage and cache statistics over one batch.
// It is built once per batch and discarded after being returned.
type BatchMetrics struct {
	TotalRequests    int `json:"total_requests"`
	CacheHits        int `json:"cache_hits"`
	CacheMisses      int `json:"cache_misses"`
	CacheWrites      int `json:"cache_writes"`
	InputTokens      int `json:"input_tokens"`
	CachedTokens     int `json:"cached_tokens"`
	CacheWriteTokens int `json:"cache_write_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens"`
}

// CacheHitRate returns the fraction of requests that hit the provider cache,
// zero when no requests were made.
func (m *BatchMetrics) CacheHitRate() float64 {
	if m.TotalRequests == 0 {
		return 0
	}
	return float64(m.CacheHits) / float64(m.TotalRequests)
}

// EstimatedSavings estimates USD saved by cache reads given a price per
// million input tokens. Cache reads are modeled at a 90% discount.
func (m *BatchMetrics) EstimatedSavings(inputPricePerMillion float64) float64 {
	return float64(m.CacheReadTokens) * inputPricePerMillion * 0.9 / 1e6
}
