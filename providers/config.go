package providers

import "time"

// OpenAIConfig configures the OpenAI-compatible adapter.
type OpenAIConfig struct {
	APIKey       string        `json:"api_key" yaml:"api_key"`
	BaseURL      string        `json:"base_url" yaml:"base_url"`
	Organization string        `json:"organization,omitempty" yaml:"organization,omitempty"`
	Model        string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// AnthropicConfig configures the Anthropic adapter.
type AnthropicConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// GeminiConfig configures the Google Gemini adapter.
type GeminiConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// GroqConfig configures the Groq adapter (OpenAI wire format).
type GroqConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}
