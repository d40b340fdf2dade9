// Package openai provides an LLM provider backed by the OpenAI Chat
// Completions API. It adapts the normalized chat request into the SDK's
// message format and back.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/hupe1980/agentbus/core"
)

// Options configure the OpenAI provider. Fields mirror a subset of Chat
// Completion parameters intentionally kept minimal; extend via functional
// options without breaking callers.
type Options struct {
	// Name is the provider's registry name; defaults to "openai".
	Name                string
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Provider wraps the OpenAI Chat Completions API behind core.LLMProvider.
type Provider struct {
	client *openai.Client
	opts   Options
}

// New creates a new OpenAI provider using the official client.
func New(optFns ...func(o *Options)) *Provider {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a new OpenAI provider from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Name:                "openai",
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

// Name implements core.Provider.
func (p *Provider) Name() string { return p.opts.Name }

// IsHealthy implements core.Provider. Reachability problems surface on the
// call itself and feed the circuit breaker there.
func (p *Provider) IsHealthy(_ context.Context) bool { return true }

// Call implements core.LLMProvider.
func (p *Provider) Call(ctx context.Context, req core.LLMRequest) (*core.LLMResponse, error) {
	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	ch0 := resp.Choices[0]
	return &core.LLMResponse{
		Content:      ch0.Message.Content,
		Model:        resp.Model,
		FinishReason: ch0.FinishReason,
		Usage: core.ResourceUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// buildParams assembles the OpenAI request parameters from the normalized
// request, preferring per-request bounds over the provider defaults.
func (p *Provider) buildParams(req core.LLMRequest) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	for _, m := range req.Messages {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	temperature := p.opts.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	maxTokens := p.opts.MaxCompletionTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	return openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               p.opts.Model,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}
}

var _ core.LLMProvider = (*Provider)(nil)
