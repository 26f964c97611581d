package batch

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fanoutllm/fanout/structured"
	"github.com/fanoutllm/fanout/types"
)

// Planner turns rows into dispatchable requests, order-preserving.
type Planner struct {
	logger *zap.Logger
}

// NewPlanner creates a planner.
func NewPlanner(logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{logger: logger}
}

// Plan resolves provider, model, and messages for every row. Missing
// defaults are configuration errors and fail the whole batch before any
// dispatch; malformed rows become pre-failed requests that keep their slot.
func (p *Planner) Plan(rows []Row, opts Options) ([]*Request, error) {
	var instruction types.Message
	if opts.Schema != nil {
		var err error
		instruction, err = structured.InstructionMessage(opts.Schema)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidRequest, "unencodable response schema").WithCause(err)
		}
	}

	requests := make([]*Request, len(rows))
	for i, row := range rows {
		provider := row.Provider
		if provider == "" {
			provider = opts.Provider
		}
		if provider == "" {
			return nil, types.NewError(types.ErrInvalidRequest,
				fmt.Sprintf("row %d: no provider set and no batch default", i))
		}

		model := row.Model
		if model == "" {
			model = opts.Model
		}
		if model == "" {
			return nil, types.NewError(types.ErrMissingModel,
				fmt.Sprintf("row %d: no model set and no batch default", i))
		}

		directive := opts.Cache
		if row.Cache != nil {
			directive = row.Cache.normalized()
		}

		req := &Request{
			Index:     i,
			ID:        uuid.NewString(),
			Provider:  provider,
			Model:     model,
			Schema:    opts.Schema,
			Directive: directive,
		}
		requests[i] = req

		messages, err := rowMessages(row)
		if err != nil {
			p.logger.Debug("row failed planning",
				zap.Int("row", i), zap.Error(err))
			req.PlanErr = err
			continue
		}
		if opts.Schema != nil {
			// The instruction block leads the message sequence so it is
			// part of the cacheable prefix.
			messages = append([]types.Message{instruction}, messages...)
		}
		req.Messages = messages
	}
	return requests, nil
}

func rowMessages(row Row) ([]types.Message, *types.Error) {
	if len(row.Messages) > 0 {
		if err := types.ValidateMessages(row.Messages); err != nil {
			return nil, types.NewError(types.ErrMalformedInput, err.Error())
		}
		return row.Messages, nil
	}
	if row.Prompt == "" {
		return nil, types.NewError(types.ErrMalformedInput, "row has neither prompt nor messages")
	}
	return []types.Message{types.NewUserMessage(row.Prompt)}, nil
}
