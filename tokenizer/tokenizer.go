// Package tokenizer estimates token counts for cache-prefix thresholds.
//
// Counts never have to match provider billing exactly; they gate the
// min-token threshold of cache grouping, so a stable approximation is
// enough. OpenAI-family models use a real tiktoken encoding, everything
// else falls back to a character-ratio estimator.
package tokenizer

import (
	"strings"

	"github.com/fanoutllm/fanout/types"
)

// Counter is the token counting interface consumed by cache grouping.
type Counter interface {
	// CountTokens returns the token count of a text string.
	CountTokens(text string) (int, error)

	// CountMessages returns the total token count of a message sequence,
	// including per-message overhead (role markers, separators).
	CountMessages(messages []types.Message) (int, error)

	// Name identifies the counter, for logging.
	Name() string
}

// ForModel selects a Counter for the given model name: a tiktoken encoding
// for OpenAI-family models, the estimator otherwise. The selection is pure;
// no process-wide registry is involved.
func ForModel(model string) Counter {
	if strings.HasPrefix(model, "gpt-") || strings.HasPrefix(model, "o1") ||
		strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "text-embedding-") {
		return NewTiktokenCounter(model)
	}
	return NewEstimator()
}
