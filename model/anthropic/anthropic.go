// Package anthropic provides an LLM provider backed by the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/agentbus/core"
)

// Options configures the Anthropic provider (model id, max tokens, API key).
// Extend via functional options to preserve stability.
type Options struct {
	// Name is the provider's registry name; defaults to "anthropic".
	Name        string
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Provider wraps the Anthropic Messages API behind core.LLMProvider.
type Provider struct {
	client *anthropic.Client
	opts   Options
}

func defaultProviderOptions() Options {
	return Options{
		Name:        "anthropic",
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// New creates a new Anthropic provider using the official client.
func New(optFns ...func(o *Options)) *Provider {
	opts := defaultProviderOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)
	return &Provider{client: &client, opts: opts}
}

// NewFromClient creates a new Anthropic provider from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Provider {
	opts := defaultProviderOptions()
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

// Call implements core.LLMProvider by adapting the normalized chat request
// into Anthropic message params and back.
func (p *Provider) Call(ctx context.Context, req core.LLMRequest) (*core.LLMResponse, error) {
	maxTokens := p.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	temperature := p.opts.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}

	params := anthropic.MessageNewParams{
		Model:       p.opts.Model,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
	}
	if systemBlocks := extractSystemBlocks(req.Messages); len(systemBlocks) > 0 {
		params.System = systemBlocks
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}

	finishReason := "stop"
	if resp.StopReason != "" {
		finishReason = string(resp.StopReason)
	}

	return &core.LLMResponse{
		Content:      sb.String(),
		Model:        string(resp.Model),
		FinishReason: finishReason,
		Usage: core.ResourceUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

// buildMessages converts normalized chat messages to Anthropic message
// format. System messages are handled separately.
func buildMessages(msgs []core.LLMMessage) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, m := range msgs {
		if m.Content == "" || m.Role == "system" {
			continue
		}
		switch m.Role {
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			// Treat unknown roles as user
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return messages
}

// extractSystemBlocks collects system messages into Anthropic system blocks.
func extractSystemBlocks(msgs []core.LLMMessage) []anthropic.TextBlockParam {
	var systemBlocks []anthropic.TextBlockParam
	for _, m := range msgs {
		if m.Role == "system" && m.Content != "" {
			systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: m.Content})
		}
	}
	return systemBlocks
}

var _ core.LLMProvider = (*Provider)(nil)
