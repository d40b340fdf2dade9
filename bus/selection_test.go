package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentbus/core"
	"github.com/hupe1980/agentbus/registry"
)

func registerNamed(t *testing.T, reg *registry.ServiceRegistry, names []string, optFns ...func(o *registry.RegisterOptions)) {
	t.Helper()
	for _, name := range names {
		_, err := reg.Register(core.ServiceTypeLLM, &countingProvider{name: name}, optFns...)
		require.NoError(t, err)
	}
}

func selectionNames(refs []*registry.ProviderRef) []string {
	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = ref.Name()
	}
	return names
}

func TestFallbackKeepsPriorityOrder(t *testing.T) {
	reg := registry.New()
	registerNamed(t, reg, []string{"high"}, func(o *registry.RegisterOptions) { o.Priority = core.PriorityHigh })
	registerNamed(t, reg, []string{"normal"})

	b := newBaseBus(core.ServiceTypeLLM, reg, defaultOptions())

	for i := 0; i < 5; i++ {
		ordered, strategy := b.selectOrder(reg.GetProviders(core.ServiceTypeLLM, registry.Query{}))
		assert.Equal(t, core.StrategyFallback, strategy)
		assert.Equal(t, []string{"high", "normal"}, selectionNames(ordered),
			"fallback always prefers the highest priority provider")
	}
}

func TestRoundRobinDistributesEvenly(t *testing.T) {
	reg := registry.New()
	registerNamed(t, reg, []string{"a", "b", "c"},
		func(o *registry.RegisterOptions) { o.Strategy = core.StrategyRoundRobin })

	b := newBaseBus(core.ServiceTypeLLM, reg, defaultOptions())

	counts := map[string]int{}
	for i := 0; i < 10; i++ {
		ordered, strategy := b.selectOrder(reg.GetProviders(core.ServiceTypeLLM, registry.Query{}))
		require.Equal(t, core.StrategyRoundRobin, strategy)
		require.Len(t, ordered, 3)
		counts[ordered[0].Name()]++
	}

	max, min := 0, 10
	for _, name := range []string{"a", "b", "c"} {
		if counts[name] > max {
			max = counts[name]
		}
		if counts[name] < min {
			min = counts[name]
		}
	}
	assert.LessOrEqual(t, max-min, 1, "ten selections over three providers differ by at most one: %v", counts)
}

func TestRoundRobinRotatesOnlyWithinTiers(t *testing.T) {
	reg := registry.New()
	registerNamed(t, reg, []string{"critical"},
		func(o *registry.RegisterOptions) {
			o.Priority = core.PriorityCritical
			o.Strategy = core.StrategyRoundRobin
		})
	registerNamed(t, reg, []string{"n1", "n2"},
		func(o *registry.RegisterOptions) { o.Strategy = core.StrategyRoundRobin })

	b := newBaseBus(core.ServiceTypeLLM, reg, defaultOptions())

	for i := 0; i < 6; i++ {
		ordered, _ := b.selectOrder(reg.GetProviders(core.ServiceTypeLLM, registry.Query{}))
		require.Len(t, ordered, 3)
		assert.Equal(t, "critical", ordered[0].Name(),
			"rotation must never promote a lower tier above a higher one")
	}
}

func TestRoundRobinSkipsUnavailableWithoutConsumingSlot(t *testing.T) {
	reg := registry.New(func(o *registry.Options) {
		o.BreakerConfig = registry.CircuitBreakerConfig{
			FailureThreshold: 1,
			RecoveryTimeout:  time.Hour,
			SuccessThreshold: 1,
		}
	})
	registerNamed(t, reg, []string{"a", "b", "c"},
		func(o *registry.RegisterOptions) { o.Strategy = core.StrategyRoundRobin })

	// Trip b's breaker; the registry filter removes it so rotation only
	// ever sees a and c.
	for _, ref := range reg.GetProviders(core.ServiceTypeLLM, registry.Query{}) {
		if ref.Name() == "b" {
			ref.RecordFailure()
		}
	}

	b := newBaseBus(core.ServiceTypeLLM, reg, defaultOptions())

	counts := map[string]int{}
	for i := 0; i < 10; i++ {
		ordered, _ := b.selectOrder(reg.GetProviders(core.ServiceTypeLLM, registry.Query{}))
		require.Len(t, ordered, 2)
		counts[ordered[0].Name()]++
	}
	assert.Zero(t, counts["b"])
	assert.Equal(t, 5, counts["a"])
	assert.Equal(t, 5, counts["c"])
}

func TestLatencyBasedPrefersFastestProvider(t *testing.T) {
	reg := registry.New()
	registerNamed(t, reg, []string{"slow", "fast"},
		func(o *registry.RegisterOptions) { o.Strategy = core.StrategyLatencyBased })

	b := newBaseBus(core.ServiceTypeLLM, reg, defaultOptions())
	b.latency.Record("slow", 500*time.Millisecond)
	b.latency.Record("fast", 20*time.Millisecond)

	ordered, strategy := b.selectOrder(reg.GetProviders(core.ServiceTypeLLM, registry.Query{}))
	assert.Equal(t, core.StrategyLatencyBased, strategy)
	assert.Equal(t, []string{"fast", "slow"}, selectionNames(ordered))
}

func TestLatencyBasedTriesUnmeasuredFirst(t *testing.T) {
	reg := registry.New()
	registerNamed(t, reg, []string{"measured", "fresh"},
		func(o *registry.RegisterOptions) { o.Strategy = core.StrategyLatencyBased })

	b := newBaseBus(core.ServiceTypeLLM, reg, defaultOptions())
	b.latency.Record("measured", 5*time.Millisecond)

	ordered, _ := b.selectOrder(reg.GetProviders(core.ServiceTypeLLM, registry.Query{}))
	assert.Equal(t, []string{"fresh", "measured"}, selectionNames(ordered),
		"a provider with no data is tried before any measured one")
}

func TestLatencyBasedTieBreaksByRegistrationOrder(t *testing.T) {
	reg := registry.New()
	registerNamed(t, reg, []string{"first", "second"},
		func(o *registry.RegisterOptions) { o.Strategy = core.StrategyLatencyBased })

	b := newBaseBus(core.ServiceTypeLLM, reg, defaultOptions())
	b.latency.Record("first", 10*time.Millisecond)
	b.latency.Record("second", 10*time.Millisecond)

	ordered, _ := b.selectOrder(reg.GetProviders(core.ServiceTypeLLM, registry.Query{}))
	assert.Equal(t, []string{"first", "second"}, selectionNames(ordered))
}

func TestLatencyTrackerRunningAverage(t *testing.T) {
	tr := newLatencyTracker()

	_, ok := tr.Average("p")
	assert.False(t, ok)

	tr.Record("p", 100*time.Millisecond)
	tr.Record("p", 300*time.Millisecond)

	avg, ok := tr.Average("p")
	require.True(t, ok)
	assert.InDelta(t, float64(200*time.Millisecond), float64(avg), float64(time.Millisecond))
}

func TestDispatchRoundRobinAlternates(t *testing.T) {
	reg := registry.New()
	a := &countingProvider{name: "a"}
	b2 := &countingProvider{name: "b"}
	for _, p := range []*countingProvider{a, b2} {
		_, err := reg.Register(core.ServiceTypeLLM, p,
			func(o *registry.RegisterOptions) { o.Strategy = core.StrategyRoundRobin })
		require.NoError(t, err)
	}

	b := newBaseBus(core.ServiceTypeLLM, reg, defaultOptions())
	for i := 0; i < 4; i++ {
		err := b.dispatch(context.Background(), reg.GetProviders(core.ServiceTypeLLM, registry.Query{}), "",
			func(_ context.Context, ref *registry.ProviderRef) error {
				ref.Provider().(*countingProvider).calls++
				return nil
			})
		require.NoError(t, err)
	}

	assert.Equal(t, 2, a.calls)
	assert.Equal(t, 2, b2.calls)
}
