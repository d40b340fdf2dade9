package bus

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hupe1980/agentbus/core"
	"github.com/hupe1980/agentbus/internal/util"
	"github.com/hupe1980/agentbus/registry"
)

// DefaultRecentResults is the capacity of the recent tool result cache.
const DefaultRecentResults = 256

// ToolBus routes tool executions to the providers that declare the tool name
// as a registration capability. Routing is purely declarative: a provider
// that never declared a tool is never asked to run it.
type ToolBus struct {
	*baseBus
	results *lru.Cache[string, *core.ToolResult]
}

// NewToolBus creates the tool bus.
func NewToolBus(reg *registry.ServiceRegistry, optFns ...func(o *Options)) *ToolBus {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	results, _ := lru.New[string, *core.ToolResult](DefaultRecentResults)
	return &ToolBus{
		baseBus: newBaseBus(core.ServiceTypeTool, reg, opts),
		results: results,
	}
}

// ExecOptions configures a tool execution.
type ExecOptions struct {
	// Handler names the originating handler for log correlation.
	Handler string

	// CorrelationID identifies the execution; generated when empty.
	CorrelationID string
}

// ExecuteTool runs the named tool on a provider that declares it. When no
// registered provider hosts the tool, a NOT_FOUND result is returned rather
// than an error so callers can degrade. Provider errors and timeouts are
// circuit breaker failures and surface as typed errors after the fallback
// chain is exhausted.
func (b *ToolBus) ExecuteTool(ctx context.Context, name string, params map[string]any, optFns ...func(o *ExecOptions)) (*core.ToolResult, error) {
	opts := ExecOptions{CorrelationID: uuid.NewString()}
	for _, fn := range optFns {
		fn(&opts)
	}

	refs := b.registry.GetProviders(core.ServiceTypeTool, registry.Query{Capabilities: []string{name}})
	if len(refs) == 0 {
		result := &core.ToolResult{
			ToolName:      name,
			Status:        core.ToolStatusNotFound,
			Error:         fmt.Sprintf("no provider hosts tool %q", name),
			CorrelationID: opts.CorrelationID,
		}
		b.results.Add(opts.CorrelationID, result)
		b.logger.Info("tool not found",
			"tool_name", name,
			"handler", opts.Handler,
			"correlation_id", opts.CorrelationID)
		return result, nil
	}

	if err := b.validateArgs(ctx, refs, name, params); err != nil {
		result := &core.ToolResult{
			ToolName:      name,
			Status:        core.ToolStatusFailed,
			Error:         err.Error(),
			CorrelationID: opts.CorrelationID,
		}
		b.results.Add(opts.CorrelationID, result)
		return result, nil
	}

	var result *core.ToolResult
	err := b.dispatch(ctx, refs, opts.Handler, func(ctx context.Context, ref *registry.ProviderRef) error {
		provider, ok := ref.Provider().(core.ToolProvider)
		if !ok {
			return fmt.Errorf("provider %q does not implement tool execution", ref.Name())
		}
		r, err := provider.ExecuteTool(ctx, name, params)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("provider %q returned no result", ref.Name())
		}
		result = r
		return nil
	})
	if err != nil {
		status := core.ToolStatusFailed
		var timeoutErr *core.OperationTimeoutError
		if errors.As(err, &timeoutErr) {
			status = core.ToolStatusTimeout
		}
		result = &core.ToolResult{
			ToolName:      name,
			Status:        status,
			Error:         err.Error(),
			CorrelationID: opts.CorrelationID,
		}
		b.results.Add(opts.CorrelationID, result)
		return result, err
	}

	result.ToolName = name
	result.CorrelationID = opts.CorrelationID
	if result.Status == "" {
		result.Status = core.ToolStatusCompleted
	}
	b.results.Add(opts.CorrelationID, result)
	return result, nil
}

// ExecuteToolAsync queues a tool execution and returns its correlation
// identifier immediately. The result becomes retrievable through
// RecentResult once the consumer loop has processed it.
func (b *ToolBus) ExecuteToolAsync(name string, params map[string]any, optFns ...func(o *ExecOptions)) (string, error) {
	opts := ExecOptions{CorrelationID: uuid.NewString()}
	for _, fn := range optFns {
		fn(&opts)
	}

	err := b.enqueue(task{
		handler:       opts.Handler,
		correlationID: opts.CorrelationID,
		run: func(ctx context.Context) error {
			_, err := b.ExecuteTool(ctx, name, params, func(o *ExecOptions) { *o = opts })
			return err
		},
	})
	if err != nil {
		return "", err
	}
	return opts.CorrelationID, nil
}

// RecentResult returns the cached result of a recent execution by its
// correlation identifier.
func (b *ToolBus) RecentResult(correlationID string) (*core.ToolResult, bool) {
	return b.results.Get(correlationID)
}

// AvailableTools returns the union of tool names across all available
// providers, sorted. Providers that fail to enumerate are skipped.
func (b *ToolBus) AvailableTools(ctx context.Context) ([]string, error) {
	refs := b.registry.GetProviders(core.ServiceTypeTool, registry.Query{})

	seen := make(map[string]struct{})
	for _, ref := range refs {
		provider, ok := ref.Provider().(core.ToolProvider)
		if !ok {
			continue
		}
		tools, err := provider.AvailableTools(ctx)
		if err != nil {
			b.logger.Warn("tool enumeration failed", "provider", ref.Name(), "error", err)
			continue
		}
		for _, t := range tools {
			seen[t] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for t := range seen {
		names = append(names, t)
	}
	sort.Strings(names)
	return names, nil
}

// DescribeTool returns metadata for the named tool from the first hosting
// provider that can describe it.
func (b *ToolBus) DescribeTool(ctx context.Context, name string) (*core.ToolInfo, error) {
	refs := b.registry.GetProviders(core.ServiceTypeTool, registry.Query{Capabilities: []string{name}})
	for _, ref := range refs {
		describer, ok := ref.Provider().(core.ToolDescriber)
		if !ok {
			continue
		}
		info, err := describer.DescribeTool(ctx, name)
		if err != nil || info == nil {
			continue
		}
		return info, nil
	}
	return nil, &core.ProviderUnavailableError{Service: core.ServiceTypeTool, Capabilities: []string{name}}
}

// validateArgs checks params against the tool's declared schema when a
// hosting provider can describe it. Validation failures are the caller's
// fault and never count against any breaker.
func (b *ToolBus) validateArgs(ctx context.Context, refs []*registry.ProviderRef, name string, params map[string]any) error {
	for _, ref := range refs {
		describer, ok := ref.Provider().(core.ToolDescriber)
		if !ok {
			continue
		}
		info, err := describer.DescribeTool(ctx, name)
		if err != nil || info == nil || info.Parameters == nil {
			continue
		}
		if params == nil {
			params = map[string]any{}
		}
		return util.ValidateParameters(params, info.Parameters)
	}
	return nil
}
