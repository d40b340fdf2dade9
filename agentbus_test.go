package agentbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentbus/config"
	"github.com/hupe1980/agentbus/core"
	"github.com/hupe1980/agentbus/internal/testutil"
	"github.com/hupe1980/agentbus/model"
	"github.com/hupe1980/agentbus/registry"
)

func TestBusManagerLifecycle(t *testing.T) {
	mesh := New()

	require.NoError(t, mesh.Start(context.Background()))

	stats := mesh.Stats()
	require.Len(t, stats, 5)
	types := make([]string, len(stats))
	for i, s := range stats {
		types[i] = s.ServiceType
		assert.True(t, s.Running, "%s bus should be running", s.ServiceType)
	}
	assert.Equal(t, []string{"communication", "tool", "llm", "wise", "runtime_control"}, types)

	assert.Error(t, mesh.Start(context.Background()), "second start must fail")

	mesh.Stop()
	for _, s := range mesh.Stats() {
		assert.False(t, s.Running)
	}
}

func TestBusManagerConfigPropagates(t *testing.T) {
	cfg := config.Default()
	cfg.Tool.QueueCapacity = 7

	mesh := New(func(o *Options) { o.Config = cfg })

	assert.Equal(t, 7, mesh.Tool().Stats().Capacity)
	assert.Equal(t, 1000, mesh.LLM().Stats().Capacity)
}

func TestBusManagerEndToEnd(t *testing.T) {
	mesh := New()
	require.NoError(t, mesh.Start(context.Background()))
	defer mesh.Stop()

	llm := model.NewMockProvider("mock-llm")
	llm.AddResponse("ping", "pong")
	_, err := mesh.Registry().Register(core.ServiceTypeLLM, llm)
	require.NoError(t, err)

	tool := testutil.NewFakeTool("files", testutil.FakeBehavior{}, "read_file")
	_, err = mesh.Registry().Register(core.ServiceTypeTool, tool,
		func(o *registry.RegisterOptions) { o.Capabilities = []string{"read_file"} })
	require.NoError(t, err)

	require.NoError(t, mesh.WaitReady(context.Background(), core.ServiceTypeLLM, core.ServiceTypeTool))

	resp, err := mesh.LLM().Call(context.Background(), core.LLMRequest{
		Messages: []core.LLMMessage{{Role: "user", Content: "ping"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Content)

	result, err := mesh.Tool().ExecuteTool(context.Background(), "read_file", map[string]any{"path": "/tmp/x"})
	require.NoError(t, err)
	assert.True(t, result.Success)

	snap := mesh.Registry().Snapshot()
	assert.Len(t, snap.Services["llm"], 1)
	assert.Len(t, snap.Services["tool"], 1)
}

func TestBusManagerWaitReadyTimeout(t *testing.T) {
	mesh := New()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := mesh.WaitReady(ctx, core.ServiceTypeWise)
	assert.Error(t, err)
}
