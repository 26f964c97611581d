package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanoutllm/fanout/providers"
	"github.com/fanoutllm/fanout/types"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(providers.AnthropicConfig{
		APIKey:  "sk-ant-test",
		BaseURL: srv.URL,
	}, nil)
}

const successBody = `{
	"id": "msg_01",
	"model": "claude-sonnet-4-5",
	"content": [{"type": "text", "text": "bonjour"}],
	"stop_reason": "end_turn",
	"usage": {"input_tokens": 20, "output_tokens": 5,
		"cache_creation_input_tokens": 1500, "cache_read_input_tokens": 0}
}`

func TestCompleteSuccess(t *testing.T) {
	var gotKey, gotVersion, gotPath string
	p := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		gotPath = r.URL.Path
		w.Write([]byte(successBody))
	})

	resp, err := p.Complete(context.Background(), &providers.Request{
		Model: "claude-sonnet-4-5",
		Messages: []types.Message{
			types.NewSystemMessage("You are terse."),
			types.NewUserMessage("Say hello in French."),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "sk-ant-test", gotKey)
	assert.Equal(t, apiVersion, gotVersion)
	assert.Equal(t, "/v1/messages", gotPath)

	assert.Equal(t, "bonjour", resp.Content)
	// Prompt tokens fold the cache breakdown back in.
	assert.Equal(t, 1520, resp.Usage.PromptTokens)
	assert.Equal(t, 5, resp.Usage.CompletionTokens)
	assert.Equal(t, 1525, resp.Usage.TotalTokens)
	assert.Equal(t, 1500, resp.Usage.CacheWriteTokens)
	assert.Equal(t, 0, resp.Usage.CacheReadTokens)
}

func TestCacheControlOnSystemBoundary(t *testing.T) {
	var gotBody map[string]any
	p := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(successBody))
	})

	_, err := p.Complete(context.Background(), &providers.Request{
		Model: "claude-sonnet-4-5",
		Messages: []types.Message{
			types.NewSystemMessage("persona"),
			types.NewSystemMessage("context docs"),
			types.NewUserMessage("question"),
		},
		CacheBoundary: 2,
		CacheTTL:      providers.CacheTTL5m,
	})
	require.NoError(t, err)

	system := gotBody["system"].([]any)
	require.Len(t, system, 2)

	first := system[0].(map[string]any)
	_, marked := first["cache_control"]
	assert.False(t, marked, "only the boundary block carries the marker")

	second := system[1].(map[string]any)
	cc := second["cache_control"].(map[string]any)
	assert.Equal(t, "ephemeral", cc["type"])

	msgs := gotBody["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
}

func TestCacheControlBeyondSystemMessages(t *testing.T) {
	var gotBody map[string]any
	p := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(successBody))
	})

	_, err := p.Complete(context.Background(), &providers.Request{
		Model: "claude-sonnet-4-5",
		Messages: []types.Message{
			types.NewSystemMessage("persona"),
			types.NewUserMessage("long shared context"),
			types.NewUserMessage("the actual question"),
		},
		CacheBoundary: 2,
		CacheTTL:      providers.CacheTTL1h,
	})
	require.NoError(t, err)

	msgs := gotBody["messages"].([]any)
	require.Len(t, msgs, 2)

	blocks := msgs[0].(map[string]any)["content"].([]any)
	cc := blocks[0].(map[string]any)["cache_control"].(map[string]any)
	assert.Equal(t, "ephemeral_1h", cc["type"])

	tail := msgs[1].(map[string]any)["content"].([]any)
	_, marked := tail[0].(map[string]any)["cache_control"]
	assert.False(t, marked)
}

func TestNoCacheControlWithoutBoundary(t *testing.T) {
	var gotBody map[string]any
	p := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(successBody))
	})

	_, err := p.Complete(context.Background(), &providers.Request{
		Model: "claude-sonnet-4-5",
		Messages: []types.Message{
			types.NewSystemMessage("persona"),
			types.NewUserMessage("question"),
		},
	})
	require.NoError(t, err)

	system := gotBody["system"].([]any)
	_, marked := system[0].(map[string]any)["cache_control"]
	assert.False(t, marked)
}

func TestInterleavedSystemRejected(t *testing.T) {
	p := New(providers.AnthropicConfig{APIKey: "sk-ant-test"}, nil)
	_, err := p.Complete(context.Background(), &providers.Request{
		Model: "claude-sonnet-4-5",
		Messages: []types.Message{
			types.NewUserMessage("hi"),
			types.NewSystemMessage("late system"),
		},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestOverloadedMapsRetryable(t *testing.T) {
	p := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
		w.Write([]byte(`{"error":{"type":"overloaded_error","message":"Overloaded"}}`))
	})

	_, err := p.Complete(context.Background(), &providers.Request{
		Model:    "claude-sonnet-4-5",
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrModelOverloaded, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestCreditExhaustionMapsQuota(t *testing.T) {
	p := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Your credit balance is too low"}}`))
	})

	_, err := p.Complete(context.Background(), &providers.Request{
		Model:    "claude-sonnet-4-5",
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrQuotaExceeded, types.GetErrorCode(err))
	assert.False(t, types.IsRetryable(err))
}

func TestCacheReadUsage(t *testing.T) {
	p := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model":"claude-sonnet-4-5",
			"content":[{"type":"text","text":"ok"}],
			"usage":{"input_tokens":10,"output_tokens":2,
				"cache_creation_input_tokens":0,"cache_read_input_tokens":1500}}`))
	})

	resp, err := p.Complete(context.Background(), &providers.Request{
		Model:    "claude-sonnet-4-5",
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1500, resp.Usage.CacheReadTokens)
	assert.True(t, resp.Usage.CacheUsed())
	assert.Equal(t, 1510, resp.Usage.PromptTokens)
}

func TestValidateCredentials(t *testing.T) {
	assert.NoError(t, New(providers.AnthropicConfig{APIKey: "k"}, nil).ValidateCredentials())
	err := New(providers.AnthropicConfig{}, nil).ValidateCredentials()
	assert.Equal(t, types.ErrAuthentication, types.GetErrorCode(err))
}
