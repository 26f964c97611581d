// Package testutil provides test doubles for batch dispatch tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fanoutllm/fanout/providers"
	"github.com/fanoutllm/fanout/types"
)

// Step is one scripted outcome. A zero Usage gets a plausible default.
type Step struct {
	Content string
	Usage   types.UsageStats
	Err     error
	Delay   time.Duration
}

// MockProvider is a scripted providers.Completer. Steps are consumed in call
// order; once the script is exhausted the last step repeats. With no script,
// every call echoes the final user message.
type MockProvider struct {
	mu sync.Mutex

	name    string
	script  []Step
	calls   int
	reqs    []*providers.Request
	credErr error

	// DelayFor overrides per-request delay by final user message content.
	DelayFor map[string]time.Duration
	// ErrorFor injects an error by final user message content, regardless
	// of the script.
	ErrorFor map[string]error
}

// NewMockProvider creates a mock with the given provider name.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

// Script appends scripted steps.
func (m *MockProvider) Script(steps ...Step) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, steps...)
	return m
}

// FailCredentials makes ValidateCredentials return err.
func (m *MockProvider) FailCredentials(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credErr = err
	return m
}

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) ValidateCredentials() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.credErr
}

// Complete implements providers.Completer.
func (m *MockProvider) Complete(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	m.mu.Lock()
	step := m.stepLocked()
	m.calls++
	m.reqs = append(m.reqs, req)
	delay := step.Delay
	if d, ok := m.DelayFor[lastUserContent(req)]; ok {
		delay = d
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, providers.MapTransportError(ctx.Err(), m.name)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, providers.MapTransportError(err, m.name)
	}

	if err, ok := m.ErrorFor[lastUserContent(req)]; ok {
		return nil, err
	}
	if step.Err != nil {
		return nil, step.Err
	}

	content := step.Content
	if content == "" && len(m.script) == 0 {
		content = fmt.Sprintf("echo: %s", lastUserContent(req))
	}
	usage := step.Usage
	if usage == (types.UsageStats{}) {
		usage = types.UsageStats{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}
	}
	return &providers.Response{Content: content, Model: req.Model, Usage: usage}, nil
}

// stepLocked returns the step for the current call. Callers hold mu.
func (m *MockProvider) stepLocked() Step {
	if len(m.script) == 0 {
		return Step{}
	}
	if m.calls < len(m.script) {
		return m.script[m.calls]
	}
	return m.script[len(m.script)-1]
}

// Calls returns the number of Complete invocations.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests returns every request seen, in call order.
func (m *MockProvider) Requests() []*providers.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*providers.Request, len(m.reqs))
	copy(out, m.reqs)
	return out
}

func lastUserContent(req *providers.Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == types.RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}
