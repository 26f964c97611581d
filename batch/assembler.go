package batch

import (
	"encoding/json"

	"go.uber.org/zap"
)

// Assembler projects outcomes into the batch's declared output shape. Output
// is row-aligned and always length N: error outcomes render as error-marker
// records in the same column, never as a raised error.
type Assembler struct {
	logger *zap.Logger
}

// NewAssembler creates an assembler.
func NewAssembler(logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{logger: logger}
}

type usageRecord struct {
	Content          any `json:"content"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type errorRecord struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Assemble renders one output string per outcome.
//
// Shapes: plain text; usage record; schema record; schema record nested in a
// usage record. Selected by Options.TrackUsage and Options.Schema.
func (a *Assembler) Assemble(outcomes []*Outcome, opts Options) []string {
	outputs := make([]string, len(outcomes))
	for i, o := range outcomes {
		outputs[i] = a.render(o, opts)
	}
	return outputs
}

func (a *Assembler) render(o *Outcome, opts Options) string {
	if o.Err != nil {
		data, err := json.Marshal(errorRecord{Error: string(o.Err.Code), Message: o.Err.Message})
		if err != nil {
			return `{"error":"INTERNAL_ERROR","message":"unencodable error"}`
		}
		return string(data)
	}

	if !opts.TrackUsage {
		return o.Content
	}

	var content any = o.Content
	if opts.Schema != nil {
		// Validated schema output is already JSON; embed it raw instead of
		// re-quoting.
		content = json.RawMessage(o.Content)
	}

	record := usageRecord{
		Content:          content,
		PromptTokens:     o.Usage.PromptTokens,
		CompletionTokens: o.Usage.CompletionTokens,
		TotalTokens:      o.Usage.TotalTokens,
	}
	data, err := json.Marshal(record)
	if err != nil {
		a.logger.Warn("failed to encode usage record", zap.Int("row", o.Index), zap.Error(err))
		return o.Content
	}
	return string(data)
}
