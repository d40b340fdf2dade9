package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/agentbus/core"
	"github.com/hupe1980/agentbus/registry"
)

// LLMBus routes completion requests to language model providers. Requests
// may carry a domain tag; the registry excludes providers registered for a
// different domain before any selection runs, so domain isolation holds
// structurally. Selection defaults to latency-based routing.
type LLMBus struct {
	*baseBus
}

// NewLLMBus creates the LLM bus.
func NewLLMBus(reg *registry.ServiceRegistry, optFns ...func(o *Options)) *LLMBus {
	opts := defaultOptions()
	opts.Strategy = core.StrategyLatencyBased
	for _, fn := range optFns {
		fn(&opts)
	}
	return &LLMBus{baseBus: newBaseBus(core.ServiceTypeLLM, reg, opts)}
}

// CallOptions configures a completion call.
type CallOptions struct {
	// Handler names the originating handler for log correlation.
	Handler string

	// Domain restricts routing to providers registered for this domain or
	// for "general". Empty routes to any provider.
	Domain string

	// Capabilities restricts routing to providers declaring every listed
	// capability, e.g. "vision" or "tool_use".
	Capabilities []string
}

// Call performs one completion against the best available provider for the
// requested domain.
func (b *LLMBus) Call(ctx context.Context, req core.LLMRequest, optFns ...func(o *CallOptions)) (*core.LLMResponse, error) {
	var opts CallOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	refs := b.registry.GetProviders(core.ServiceTypeLLM, registry.Query{
		Capabilities: opts.Capabilities,
		Domain:       opts.Domain,
	})
	if len(refs) == 0 {
		return nil, &core.ProviderUnavailableError{Service: core.ServiceTypeLLM, Domain: opts.Domain}
	}

	start := time.Now()
	var resp *core.LLMResponse
	err := b.dispatch(ctx, refs, opts.Handler, func(ctx context.Context, ref *registry.ProviderRef) error {
		provider, ok := ref.Provider().(core.LLMProvider)
		if !ok {
			return fmt.Errorf("provider %q does not implement completions", ref.Name())
		}
		r, err := provider.Call(ctx, req)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("provider %q returned no response", ref.Name())
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.logger.Info("completion served",
		"model", resp.Model,
		"domain", opts.Domain,
		"handler", opts.Handler,
		"total_tokens", resp.Usage.TotalTokens,
		"duration", time.Since(start))
	return resp, nil
}

// AverageLatency reports the running average call latency recorded for a
// provider, feeding observability on top of the routing data.
func (b *LLMBus) AverageLatency(providerName string) (time.Duration, bool) {
	return b.latency.Average(providerName)
}
