// Package openai implements the OpenAI-compatible chat-completions adapter.
//
// OpenAI prompt caching is automatic on matching prefixes; the adapter only
// forwards the optional prompt_cache_key routing hint and extracts the
// cached-token breakdown from usage.prompt_tokens_details.
package openai

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

const defaultBaseURL = "https://api.openai.com/v1"

// Provider is the OpenAI-compatible adapter. Any backend speaking the
// chat-completions wire format works through a custom BaseURL.
type Provider struct {
	cfg    providers.OpenAIConfig
	client *http.Client
	logger *zap.Logger
}

// New creates an OpenAI adapter.
func New(cfg providers.OpenAIConfig, logger *zap.Logger) *Provider {
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

func (p *Provider) Name() string { return "openai" }

// ValidateCredentials checks that an API key is configured.
func (p *Provider) ValidateCredentials() error {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return types.NewError(types.ErrAuthentication, "openai: missing API key").WithProvider(p.Name())
	}
	return nil
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model          string        `json:"model"`
	Messages       []wireMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Temperature    float32       `json:"temperature,omitempty"`
	PromptCacheKey string        `json:"prompt_cache_key,omitempty"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	PromptTokensDetails struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`
}

type wireChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      wireMessage `json:"message"`
}

type wireResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   wireUsage    `json:"usage"`
}

type wireError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Complete implements providers.Completer.
func (p *Provider) Complete(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	body := wireRequest{
		Model:          req.Model,
		Messages:       toWireMessages(req.Messages),
		MaxTokens:      req.MaxTokens,
		Temperature:    req.Temperature,
		PromptCacheKey: req.CacheKey,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "openai: encode request").
			WithProvider(p.Name()).WithCause(err)
	}

	endpoint := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "openai: build request").
			WithProvider(p.Name()).WithCause(err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.MapTransportError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrMsg(resp)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "openai: decode response").
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).
			WithProvider(p.Name()).
			WithCause(err)
	}
	if len(wire.Choices) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "openai: response has no choices").
			WithRetryable(true).WithProvider(p.Name())
	}

	return &providers.Response{
		Content: wire.Choices[0].Message.Content,
		Model:   wire.Model,
		Usage: types.UsageStats{
			PromptTokens:     wire.Usage.PromptTokens,
			CompletionTokens: wire.Usage.CompletionTokens,
			TotalTokens:      wire.Usage.PromptTokens + wire.Usage.CompletionTokens,
			CacheReadTokens:  wire.Usage.PromptTokensDetails.CachedTokens,
		},
	}, nil
}

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.Organization != "" {
		req.Header.Set("OpenAI-Organization", p.cfg.Organization)
	}
}

func toWireMessages(msgs []types.Message) []wireMessage {
	out := make([]wireMessage, len(msgs))
	for i, m := range msgs {
		out[i] = wireMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

func readErrMsg(resp *http.Response) string {
	raw := providers.ReadErrorBody(resp.Body)
	var we wireError
	if err := json.Unmarshal([]byte(raw), &we); err == nil && we.Error.Message != "" {
		return fmt.Sprintf("%s (type: %s)", we.Error.Message, we.Error.Type)
	}
	return raw
}
