// Package config loads dispatcher configuration from YAML with environment
// variable expansion for credentials, and builds a provider registry from
// the configured adapters.
//
// Precedence: zero values, then YAML, then ${VAR} expansion at read time.
// Callers that manage credentials out of band can skip this package and
// construct a providers.Registry directly.
package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fanoutllm/fanout/providers"
	"github.com/fanoutllm/fanout/providers/anthropic"
	"github.com/fanoutllm/fanout/providers/gemini"
	"github.com/fanoutllm/fanout/providers/groq"
	"github.com/fanoutllm/fanout/providers/openai"
)

// Config is the full dispatcher configuration.
type Config struct {
	Providers ProvidersConfig `yaml:"providers"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Cache     CacheConfig     `yaml:"cache"`
}

// ProvidersConfig holds one optional block per adapter. A block with an
// empty api_key is treated as absent.
type ProvidersConfig struct {
	OpenAI    *providers.OpenAIConfig    `yaml:"openai,omitempty"`
	Anthropic *providers.AnthropicConfig `yaml:"anthropic,omitempty"`
	Gemini    *providers.GeminiConfig    `yaml:"gemini,omitempty"`
	Groq      *providers.GroqConfig      `yaml:"groq,omitempty"`
}

// DispatchConfig tunes the scheduler.
type DispatchConfig struct {
	MaxConcurrency int           `yaml:"max_concurrency"`
	MaxAttempts    int           `yaml:"max_attempts"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	RatePerSecond  float64       `yaml:"rate_per_second"`
}

// CacheConfig enables the exact-match response cache.
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled"`
	RedisAddr string        `yaml:"redis_addr"`
	RedisDB   int           `yaml:"redis_db"`
	TTL       time.Duration `yaml:"ttl"`
}

// Load reads a YAML config file. ${VAR} references expand from the process
// environment before parsing, so credentials never live in the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses YAML config bytes with ${VAR} expansion.
func Parse(data []byte) (*Config, error) {
	expanded := os.Expand(string(data), func(name string) string {
		return os.Getenv(name)
	})

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// BuildRegistry constructs adapters for every configured provider.
func (c *Config) BuildRegistry(logger *zap.Logger) *providers.Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := providers.NewRegistry()
	if p := c.Providers.OpenAI; p != nil && p.APIKey != "" {
		reg.Register(openai.New(*p, logger))
	}
	if p := c.Providers.Anthropic; p != nil && p.APIKey != "" {
		reg.Register(anthropic.New(*p, logger))
	}
	if p := c.Providers.Gemini; p != nil && p.APIKey != "" {
		reg.Register(gemini.New(*p, logger))
	}
	if p := c.Providers.Groq; p != nil && p.APIKey != "" {
		reg.Register(groq.New(*p, logger))
	}
	return reg
}
