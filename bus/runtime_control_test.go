package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentbus/core"
	"github.com/hupe1980/agentbus/internal/testutil"
	"github.com/hupe1980/agentbus/registry"
)

func newRuntimeBus(t *testing.T, providers ...*testutil.FakeRuntime) *RuntimeControlBus {
	t.Helper()
	reg := registry.New()
	for _, p := range providers {
		_, err := reg.Register(core.ServiceTypeRuntimeControl, p)
		require.NoError(t, err)
	}
	return NewRuntimeControlBus(reg)
}

func TestPauseAndResume(t *testing.T) {
	processor := testutil.NewFakeRuntime("processor", testutil.FakeBehavior{})
	b := newRuntimeBus(t, processor)

	require.NoError(t, b.PauseProcessing(context.Background()))
	assert.True(t, processor.Paused())

	require.NoError(t, b.ResumeProcessing(context.Background()))
	assert.False(t, processor.Paused())
}

func TestQueueStatus(t *testing.T) {
	processor := testutil.NewFakeRuntime("processor", testutil.FakeBehavior{})
	processor.Status = &core.ProcessorQueueStatus{ProcessorName: "processor", QueueSize: 7, MaxSize: 100}
	b := newRuntimeBus(t, processor)

	status := b.QueueStatus(context.Background())
	require.NotNil(t, status)
	assert.Equal(t, 7, status.QueueSize)
}

func TestQueueStatusDegradesWithoutProviders(t *testing.T) {
	b := newRuntimeBus(t)

	status := b.QueueStatus(context.Background())
	require.NotNil(t, status, "status reads degrade instead of failing")
	assert.Equal(t, "unknown", status.ProcessorName)
}

func TestQueueStatusDegradesOnProviderError(t *testing.T) {
	broken := testutil.NewFakeRuntime("broken", testutil.FakeBehavior{Err: errors.New("unreachable")})
	b := newRuntimeBus(t, broken)

	status := b.QueueStatus(context.Background())
	require.NotNil(t, status)
	assert.Equal(t, "unknown", status.ProcessorName)
}

func TestShutdownBroadcastsToAllControllers(t *testing.T) {
	first := testutil.NewFakeRuntime("first", testutil.FakeBehavior{})
	second := testutil.NewFakeRuntime("second", testutil.FakeBehavior{})
	b := newRuntimeBus(t, first, second)

	require.NoError(t, b.Shutdown(context.Background(), "maintenance window"))

	down, reason := first.ShutdownReason()
	assert.True(t, down)
	assert.Equal(t, "maintenance window", reason)
	down, _ = second.ShutdownReason()
	assert.True(t, down)
	assert.True(t, b.ShuttingDown())
}

func TestShutdownIsIdempotent(t *testing.T) {
	processor := testutil.NewFakeRuntime("processor", testutil.FakeBehavior{})
	b := newRuntimeBus(t, processor)

	require.NoError(t, b.Shutdown(context.Background(), "first"))
	require.NoError(t, b.Shutdown(context.Background(), "second"))

	assert.Equal(t, 1, processor.Calls(), "repeated shutdowns never re-contact providers")
	_, reason := processor.ShutdownReason()
	assert.Equal(t, "first", reason)
}

func TestControlRefusedDuringShutdown(t *testing.T) {
	processor := testutil.NewFakeRuntime("processor", testutil.FakeBehavior{})
	b := newRuntimeBus(t, processor)

	require.NoError(t, b.Shutdown(context.Background(), "going down"))

	assert.ErrorIs(t, b.PauseProcessing(context.Background()), core.ErrShuttingDown)
	assert.ErrorIs(t, b.ResumeProcessing(context.Background()), core.ErrShuttingDown)
}

func TestShutdownPartialAcknowledgment(t *testing.T) {
	working := testutil.NewFakeRuntime("working", testutil.FakeBehavior{})
	broken := testutil.NewFakeRuntime("broken", testutil.FakeBehavior{Err: errors.New("gone")})
	b := newRuntimeBus(t, working, broken)

	require.NoError(t, b.Shutdown(context.Background(), "partial"), "one acknowledgment is enough")
}
