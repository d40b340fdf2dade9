package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentbus/core"
	"github.com/hupe1980/agentbus/internal/testutil"
	"github.com/hupe1980/agentbus/registry"
)

func registerTool(t *testing.T, reg *registry.ServiceRegistry, p core.Provider, tools []string, optFns ...func(o *registry.RegisterOptions)) {
	t.Helper()
	fns := append([]func(o *registry.RegisterOptions){
		func(o *registry.RegisterOptions) { o.Capabilities = tools },
	}, optFns...)
	_, err := reg.Register(core.ServiceTypeTool, p, fns...)
	require.NoError(t, err)
}

func TestExecuteTool(t *testing.T) {
	reg := registry.New()
	provider := testutil.NewFakeTool("files", testutil.FakeBehavior{}, "read_file")
	registerTool(t, reg, provider, []string{"read_file"})

	b := NewToolBus(reg)

	result, err := b.ExecuteTool(context.Background(), "read_file", map[string]any{"path": "/tmp/x"})
	require.NoError(t, err)
	assert.Equal(t, core.ToolStatusCompleted, result.Status)
	assert.True(t, result.Success)
	assert.Equal(t, "read_file", result.ToolName)
	assert.NotEmpty(t, result.CorrelationID)

	cached, ok := b.RecentResult(result.CorrelationID)
	require.True(t, ok)
	assert.Equal(t, result, cached)
}

func TestExecuteToolNotFoundIsSoft(t *testing.T) {
	reg := registry.New()
	registerTool(t, reg, testutil.NewFakeTool("files", testutil.FakeBehavior{}, "read_file"), []string{"read_file"})

	b := NewToolBus(reg)

	result, err := b.ExecuteTool(context.Background(), "launch_rocket", nil)
	require.NoError(t, err, "an unknown tool degrades, it does not error")
	assert.Equal(t, core.ToolStatusNotFound, result.Status)
	assert.False(t, result.Success)
}

func TestExecuteToolRoutesByDeclaredCapability(t *testing.T) {
	reg := registry.New()
	files := testutil.NewFakeTool("files", testutil.FakeBehavior{}, "read_file")
	shell := testutil.NewFakeTool("shell", testutil.FakeBehavior{}, "exec")
	registerTool(t, reg, files, []string{"read_file"})
	registerTool(t, reg, shell, []string{"exec"})

	b := NewToolBus(reg)

	_, err := b.ExecuteTool(context.Background(), "exec", map[string]any{"cmd": "ls"})
	require.NoError(t, err)
	assert.Zero(t, files.Calls(), "a provider that never declared the tool is never asked to run it")
	assert.Equal(t, 1, shell.Calls())
}

func TestExecuteToolValidatesArguments(t *testing.T) {
	reg := registry.New()
	provider := testutil.NewFakeTool("files", testutil.FakeBehavior{}, "read_file")
	provider.Tools["read_file"] = &core.ToolInfo{
		Name: "read_file",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
			},
			"required": []string{"path"},
		},
	}
	registerTool(t, reg, provider, []string{"read_file"})

	b := NewToolBus(reg)

	result, err := b.ExecuteTool(context.Background(), "read_file", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, core.ToolStatusFailed, result.Status)
	assert.Contains(t, result.Error, "required field is missing")
	assert.Zero(t, provider.Calls(), "invalid arguments never reach the provider")

	result, err = b.ExecuteTool(context.Background(), "read_file", map[string]any{"path": 42})
	require.NoError(t, err)
	assert.Equal(t, core.ToolStatusFailed, result.Status)
	assert.Zero(t, provider.Calls())
}

func TestExecuteToolFailureSurfacesTypedError(t *testing.T) {
	reg := registry.New()
	provider := testutil.NewFakeTool("flaky", testutil.FakeBehavior{FailFirst: 100}, "deploy")
	registerTool(t, reg, provider, []string{"deploy"})

	b := NewToolBus(reg)

	result, err := b.ExecuteTool(context.Background(), "deploy", nil)
	require.Error(t, err)
	var failed *core.OperationFailedError
	assert.ErrorAs(t, err, &failed)
	require.NotNil(t, result)
	assert.Equal(t, core.ToolStatusFailed, result.Status)
}

func TestExecuteToolTimeout(t *testing.T) {
	reg := registry.New()
	provider := testutil.NewFakeTool("slow", testutil.FakeBehavior{Delay: time.Second}, "crawl")
	registerTool(t, reg, provider, []string{"crawl"})

	b := NewToolBus(reg, func(o *Options) { o.CallTimeout = 50 * time.Millisecond })

	result, err := b.ExecuteTool(context.Background(), "crawl", nil)
	require.Error(t, err)
	var timeout *core.OperationTimeoutError
	assert.ErrorAs(t, err, &timeout)
	require.NotNil(t, result)
	assert.Equal(t, core.ToolStatusTimeout, result.Status)
}

// Two failures trip the primary provider's breaker; the third call skips it
// entirely and routes to the lower priority provider.
func TestToolFailoverAfterBreakerOpens(t *testing.T) {
	reg := registry.New(func(o *registry.Options) {
		o.BreakerConfig = registry.CircuitBreakerConfig{
			FailureThreshold: 2,
			RecoveryTimeout:  time.Hour,
			SuccessThreshold: 1,
		}
	})
	primary := testutil.NewFakeTool("primary", testutil.FakeBehavior{FailFirst: 100}, "deploy")
	backup := testutil.NewFakeTool("backup", testutil.FakeBehavior{}, "deploy")
	registerTool(t, reg, primary, []string{"deploy"},
		func(o *registry.RegisterOptions) {
			// Non-fallback strategy so each invocation attempts only
			// one provider.
			o.Strategy = core.StrategyRoundRobin
			o.Priority = core.PriorityNormal
		})
	registerTool(t, reg, backup, []string{"deploy"},
		func(o *registry.RegisterOptions) {
			o.Strategy = core.StrategyRoundRobin
			o.Priority = core.PriorityLow
		})

	b := NewToolBus(reg)

	_, err := b.ExecuteTool(context.Background(), "deploy", nil)
	require.Error(t, err)
	_, err = b.ExecuteTool(context.Background(), "deploy", nil)
	require.Error(t, err)

	assert.Equal(t, "open", breakerStats(t, reg, "tool", "primary").State)

	result, err := b.ExecuteTool(context.Background(), "deploy", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, primary.Calls(), "an open breaker removes the provider from routing")
	assert.Equal(t, 1, backup.Calls())
}

func TestExecuteToolAsync(t *testing.T) {
	reg := registry.New()
	registerTool(t, reg, testutil.NewFakeTool("files", testutil.FakeBehavior{}, "read_file"), []string{"read_file"})

	b := NewToolBus(reg)
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()

	correlationID, err := b.ExecuteToolAsync("read_file", map[string]any{"path": "/etc/hosts"})
	require.NoError(t, err)
	require.NotEmpty(t, correlationID)

	assert.Eventually(t, func() bool {
		result, ok := b.RecentResult(correlationID)
		return ok && result.Status == core.ToolStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAvailableTools(t *testing.T) {
	reg := registry.New()
	registerTool(t, reg, testutil.NewFakeTool("files", testutil.FakeBehavior{}, "read_file", "write_file"), []string{"read_file", "write_file"})
	registerTool(t, reg, testutil.NewFakeTool("shell", testutil.FakeBehavior{}, "exec", "read_file"), []string{"exec", "read_file"})

	b := NewToolBus(reg)

	tools, err := b.AvailableTools(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"exec", "read_file", "write_file"}, tools)
}

func TestDescribeTool(t *testing.T) {
	reg := registry.New()
	provider := testutil.NewFakeTool("files", testutil.FakeBehavior{}, "read_file")
	provider.Tools["read_file"] = &core.ToolInfo{Name: "read_file", Description: "reads a file"}
	registerTool(t, reg, provider, []string{"read_file"})

	b := NewToolBus(reg)

	info, err := b.DescribeTool(context.Background(), "read_file")
	require.NoError(t, err)
	assert.Equal(t, "reads a file", info.Description)

	_, err = b.DescribeTool(context.Background(), "missing")
	var unavailable *core.ProviderUnavailableError
	assert.ErrorAs(t, err, &unavailable)
}
