// Package gemini implements the Google Gemini generateContent adapter.
//
// Gemini caches implicitly: there are no request-level markers, but
// usageMetadata reports the cached share of the prompt, so cache annotations
// affect grouping only while hits still surface in usage.
package gemini

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

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Provider is the Gemini adapter.
type Provider struct {
	cfg    providers.GeminiConfig
	client *http.Client
	logger *zap.Logger
}

// New creates a Gemini adapter.
func New(cfg providers.GeminiConfig, logger *zap.Logger) *Provider {
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

func (p *Provider) Name() string { return "gemini" }

// ValidateCredentials checks that an API key is configured.
func (p *Provider) ValidateCredentials() error {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return types.NewError(types.ErrAuthentication, "gemini: missing API key").WithProvider(p.Name())
	}
	return nil
}

type wirePart struct {
	Text string `json:"text"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"` // user or model
	Parts []wirePart `json:"parts"`
}

type wireGenerationConfig struct {
	Temperature     float32 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type wireRequest struct {
	Contents          []wireContent         `json:"contents"`
	SystemInstruction *wireContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *wireGenerationConfig `json:"generationConfig,omitempty"`
}

type wireUsageMetadata struct {
	PromptTokenCount        int `json:"promptTokenCount"`
	CandidatesTokenCount    int `json:"candidatesTokenCount"`
	TotalTokenCount         int `json:"totalTokenCount"`
	CachedContentTokenCount int `json:"cachedContentTokenCount"`
}

type wireCandidate struct {
	Content      wireContent `json:"content"`
	FinishReason string      `json:"finishReason,omitempty"`
}

type wireResponse struct {
	Candidates    []wireCandidate    `json:"candidates"`
	ModelVersion  string             `json:"modelVersion,omitempty"`
	UsageMetadata *wireUsageMetadata `json:"usageMetadata,omitempty"`
}

type wireError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Complete implements providers.Completer.
func (p *Provider) Complete(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	body := p.buildBody(req)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "gemini: encode request").
			WithProvider(p.Name()).WithCause(err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimRight(p.cfg.BaseURL, "/"), req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "gemini: build request").
			WithProvider(p.Name()).WithCause(err)
	}
	httpReq.Header.Set("x-goog-api-key", p.cfg.APIKey)
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
			msg = fmt.Sprintf("%s (status: %s)", we.Error.Message, we.Error.Status)
		}
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "gemini: decode response").
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).
			WithProvider(p.Name()).
			WithCause(err)
	}
	if len(wire.Candidates) == 0 || len(wire.Candidates[0].Content.Parts) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "gemini: response has no candidates").
			WithRetryable(true).WithProvider(p.Name())
	}

	var text strings.Builder
	for _, part := range wire.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	usage := types.UsageStats{}
	if um := wire.UsageMetadata; um != nil {
		usage = types.UsageStats{
			PromptTokens:     um.PromptTokenCount,
			CompletionTokens: um.CandidatesTokenCount,
			TotalTokens:      um.PromptTokenCount + um.CandidatesTokenCount,
			CacheReadTokens:  um.CachedContentTokenCount,
		}
	}

	model := wire.ModelVersion
	if model == "" {
		model = req.Model
	}
	return &providers.Response{
		Content: text.String(),
		Model:   model,
		Usage:   usage,
	}, nil
}

// buildBody splits leading system messages into the systemInstruction block
// and maps assistant turns to Gemini's "model" role.
func (p *Provider) buildBody(req *providers.Request) *wireRequest {
	body := &wireRequest{}

	systemEnd := 0
	for systemEnd < len(req.Messages) && req.Messages[systemEnd].Role == types.RoleSystem {
		systemEnd++
	}
	if systemEnd > 0 {
		instr := &wireContent{}
		for _, m := range req.Messages[:systemEnd] {
			instr.Parts = append(instr.Parts, wirePart{Text: m.Content})
		}
		body.SystemInstruction = instr
	}

	for _, m := range req.Messages[systemEnd:] {
		role := "user"
		if m.Role == types.RoleAssistant {
			role = "model"
		}
		body.Contents = append(body.Contents, wireContent{
			Role:  role,
			Parts: []wirePart{{Text: m.Content}},
		})
	}

	if req.Temperature != 0 || req.MaxTokens != 0 {
		body.GenerationConfig = &wireGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
	}
	return body
}
