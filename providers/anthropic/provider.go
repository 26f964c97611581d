// Package anthropic implements the Anthropic messages adapter.
//
// Anthropic prompt caching is explicit: the adapter marks the content block
// at the request's cache boundary with a cache_control marker, and the API
// reports cache writes and reads as separate usage fields.
package anthropic

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

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"

	// The API refuses requests without max_tokens.
	defaultMaxTokens = 4096
)

// Provider is the Anthropic messages adapter.
type Provider struct {
	cfg    providers.AnthropicConfig
	client *http.Client
	logger *zap.Logger
}

// New creates an Anthropic adapter.
func New(cfg providers.AnthropicConfig, logger *zap.Logger) *Provider {
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

func (p *Provider) Name() string { return "anthropic" }

// ValidateCredentials checks that an API key is configured.
func (p *Provider) ValidateCredentials() error {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return types.NewError(types.ErrAuthentication, "anthropic: missing API key").WithProvider(p.Name())
	}
	return nil
}

type cacheControl struct {
	Type string `json:"type"`
}

type contentBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type wireMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type wireRequest struct {
	Model       string         `json:"model"`
	System      []contentBlock `json:"system,omitempty"`
	Messages    []wireMessage  `json:"messages"`
	MaxTokens   int            `json:"max_tokens"`
	Temperature float32        `json:"temperature,omitempty"`
}

type wireUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

type wireResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string    `json:"stop_reason"`
	Usage      wireUsage `json:"usage"`
}

type wireError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete implements providers.Completer.
func (p *Provider) Complete(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	body, err := p.buildBody(req)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "anthropic: encode request").
			WithProvider(p.Name()).WithCause(err)
	}

	endpoint := fmt.Sprintf("%s/v1/messages", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "anthropic: build request").
			WithProvider(p.Name()).WithCause(err)
	}
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.MapTransportError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, p.mapError(resp)
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "anthropic: decode response").
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).
			WithProvider(p.Name()).
			WithCause(err)
	}

	var text strings.Builder
	for _, block := range wire.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	prompt := wire.Usage.InputTokens + wire.Usage.CacheCreationInputTokens + wire.Usage.CacheReadInputTokens
	return &providers.Response{
		Content: text.String(),
		Model:   wire.Model,
		Usage: types.UsageStats{
			PromptTokens:     prompt,
			CompletionTokens: wire.Usage.OutputTokens,
			TotalTokens:      prompt + wire.Usage.OutputTokens,
			CacheWriteTokens: wire.Usage.CacheCreationInputTokens,
			CacheReadTokens:  wire.Usage.CacheReadInputTokens,
		},
	}, nil
}

// buildBody splits leading system messages into system blocks and places the
// cache_control marker on the block at the cache boundary.
func (p *Provider) buildBody(req *providers.Request) (*wireRequest, error) {
	body := &wireRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if body.MaxTokens == 0 {
		body.MaxTokens = defaultMaxTokens
	}

	systemEnd := 0
	for systemEnd < len(req.Messages) && req.Messages[systemEnd].Role == types.RoleSystem {
		systemEnd++
	}

	for _, m := range req.Messages[:systemEnd] {
		body.System = append(body.System, contentBlock{Type: "text", Text: m.Content})
	}
	for _, m := range req.Messages[systemEnd:] {
		if m.Role == types.RoleSystem {
			return nil, types.NewError(types.ErrInvalidRequest,
				"anthropic: system message after conversation start").WithProvider(p.Name())
		}
		body.Messages = append(body.Messages, wireMessage{
			Role:    string(m.Role),
			Content: []contentBlock{{Type: "text", Text: m.Content}},
		})
	}

	if req.CacheBoundary > 0 && req.CacheBoundary <= len(req.Messages) {
		marker := &cacheControl{Type: cacheType(req.CacheTTL)}
		last := req.CacheBoundary - 1
		if last < systemEnd {
			body.System[last].CacheControl = marker
		} else {
			blocks := body.Messages[last-systemEnd].Content
			blocks[len(blocks)-1].CacheControl = marker
		}
	}
	return body, nil
}

func cacheType(ttl string) string {
	if ttl == providers.CacheTTL1h {
		return "ephemeral_1h"
	}
	return "ephemeral"
}

func (p *Provider) mapError(resp *http.Response) error {
	raw := providers.ReadErrorBody(resp.Body)
	msg := raw
	var we wireError
	if err := json.Unmarshal([]byte(raw), &we); err == nil && we.Error.Message != "" {
		msg = fmt.Sprintf("%s (type: %s)", we.Error.Message, we.Error.Type)
	}

	switch {
	case resp.StatusCode == 529:
		return types.NewError(types.ErrModelOverloaded, "anthropic: "+msg).
			WithHTTPStatus(resp.StatusCode).
			WithRetryable(true).
			WithProvider(p.Name())
	case resp.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(msg), "credit"):
		return types.NewError(types.ErrQuotaExceeded, "anthropic: "+msg).
			WithHTTPStatus(resp.StatusCode).
			WithProvider(p.Name())
	default:
		return providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}
}
