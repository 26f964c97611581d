package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/fanoutllm/fanout/types"
)

// TiktokenCounter wraps a tiktoken encoding for OpenAI-family models.
type TiktokenCounter struct {
	model    string
	encoding string

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// modelEncodings maps model name prefixes to tiktoken encodings.
var modelEncodings = map[string]string{
	"gpt-4o":           "o200k_base",
	"gpt-4.1":          "o200k_base",
	"o1":               "o200k_base",
	"o3":               "o200k_base",
	"gpt-4-turbo":      "cl100k_base",
	"gpt-4":            "cl100k_base",
	"gpt-3.5-turbo":    "cl100k_base",
	"text-embedding-3": "cl100k_base",
}

// NewTiktokenCounter creates a tiktoken-backed counter for the given model.
// Unknown models fall back to cl100k_base.
func NewTiktokenCounter(model string) *TiktokenCounter {
	encoding := "cl100k_base"
	for prefix, enc := range modelEncodings {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			encoding = enc
			break
		}
	}
	return &TiktokenCounter{model: model, encoding: encoding}
}

// init lazily loads the encoding; tiktoken may fetch data on first use.
func (t *TiktokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenCounter) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *TiktokenCounter) CountMessages(messages []types.Message) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	total := 0
	for _, msg := range messages {
		// Per-message overhead: <|start|>role\n content <|end|>\n
		total += 4
		total += len(t.enc.Encode(string(msg.Role), nil, nil))
		total += len(t.enc.Encode(msg.Content, nil, nil))
	}
	return total, nil
}

func (t *TiktokenCounter) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
