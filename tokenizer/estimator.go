package tokenizer

import (
	"github.com/fanoutllm/fanout/types"
)

// Estimator is a character-ratio token estimator, CJK aware: CJK runs
// around 1.5 chars/token, everything else around 4 (the original heuristic
// was a flat len/4). It never errors, so grouping stays deterministic for
// providers without a public tokenizer.
type Estimator struct {
	msgOverhead int
}

// NewEstimator creates a new Estimator.
func NewEstimator() *Estimator {
	return &Estimator{msgOverhead: 4}
}

func (e *Estimator) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	var cjk, other int
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	tokens := int(float64(cjk)/1.5 + float64(other)/4.0)
	if tokens < 1 {
		tokens = 1
	}
	return tokens, nil
}

func (e *Estimator) CountMessages(messages []types.Message) (int, error) {
	total := 0
	for _, msg := range messages {
		total += e.msgOverhead
		n, _ := e.CountTokens(msg.Content)
		total += n
	}
	return total, nil
}

func (e *Estimator) Name() string { return "estimator" }

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK unified ideographs
		(r >= 0x3040 && r <= 0x30FF) || // hiragana + katakana
		(r >= 0xAC00 && r <= 0xD7AF) // hangul
}
