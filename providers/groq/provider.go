// Package groq implements the Groq adapter. Groq speaks the OpenAI
// chat-completions wire format; prompt caching is automatic on the service
// side with no request-level markers, so cache annotations only affect
// grouping, never the wire payload.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fanoutllm/fanout/providers"
	"github.com/fanoutllm/fanout/types"
)

const defaultBaseURL = "https://api.groq.com/openai/v1"

// Provider is the Groq adapter.
type Provider struct {
	cfg    providers.GroqConfig
	client *http.Client
	logger *zap.Logger
}

// New creates a Groq adapter.
func New(cfg providers.GroqConfig, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (p *Provider) Name() string { return "groq" }

// ValidateCredentials checks that an API key is configured.
func (p *Provider) ValidateCredentials() error {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return types.NewError(types.ErrAuthentication, "groq: missing API key").WithProvider(p.Name())
	}
	return nil
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
}

type wireResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type wireError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete implements providers.Completer.
func (p *Provider) Complete(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	body := wireRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, wireMessage{Role: string(m.Role), Content: m.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "groq: encode request").
			WithProvider(p.Name()).WithCause(err)
	}

	endpoint := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "groq: build request").
			WithProvider(p.Name()).WithCause(err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.MapTransportError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw := providers.ReadErrorBody(resp.Body)
		msg := raw
		var we wireError
		if err := json.Unmarshal([]byte(raw), &we); err == nil && we.Error.Message != "" {
			msg = we.Error.Message
		}
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "groq: decode response").
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).
			WithProvider(p.Name()).
			WithCause(err)
	}
	if len(wire.Choices) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "groq: response has no choices").
			WithRetryable(true).WithProvider(p.Name())
	}

	return &providers.Response{
		Content: wire.Choices[0].Message.Content,
		Model:   wire.Model,
		Usage: types.UsageStats{
			PromptTokens:     wire.Usage.PromptTokens,
			CompletionTokens: wire.Usage.CompletionTokens,
			TotalTokens:      wire.Usage.PromptTokens + wire.Usage.CompletionTokens,
		},
	}, nil
}
