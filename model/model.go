package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentbus/core"
)

// MockProvider is a lightweight in-memory LLM provider useful for tests and
// examples. Responses are keyed by the last user message; unknown prompts
// echo a deterministic placeholder.
type MockProvider struct {
	name string

	mu        sync.Mutex
	responses map[string]string
	calls     int
}

// NewMockProvider constructs a MockProvider with the given registry name.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		name:      name,
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockProvider) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Name implements core.Provider.
func (m *MockProvider) Name() string { return m.name }

// IsHealthy implements core.Provider; the mock is always ready.
func (m *MockProvider) IsHealthy(_ context.Context) bool { return true }

// Call implements core.LLMProvider.
func (m *MockProvider) Call(ctx context.Context, req core.LLMRequest) (*core.LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}

	var prompt string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			prompt = req.Messages[i].Content
			break
		}
	}

	m.mu.Lock()
	m.calls++
	content := m.responses[prompt]
	m.mu.Unlock()

	if content == "" {
		content = fmt.Sprintf("Mock response to: %s", prompt)
	}

	promptTokens := 0
	for _, msg := range req.Messages {
		promptTokens += len(msg.Content) / 4
	}
	completionTokens := len(content) / 4

	return &core.LLMResponse{
		Content:      content,
		Model:        m.name,
		FinishReason: "stop",
		Usage: core.ResourceUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}, nil
}

// Calls returns how many completions this mock served.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ core.LLMProvider = (*MockProvider)(nil)
