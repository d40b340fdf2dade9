package bus

import (
	"sort"

	"github.com/hupe1980/agentbus/core"
	"github.com/hupe1980/agentbus/registry"
)

// selectOrder turns the registry's priority-ordered candidate list into the
// attempt order for one dispatch, applying the effective selection strategy.
// The effective strategy is the first non-default strategy declared by a
// candidate, falling back to the bus-level default.
func (b *baseBus) selectOrder(refs []*registry.ProviderRef) ([]*registry.ProviderRef, core.SelectionStrategy) {
	strategy := b.strategy
	for _, ref := range refs {
		if s := ref.Strategy(); s != core.StrategyFallback {
			strategy = s
			break
		}
	}

	switch strategy {
	case core.StrategyRoundRobin:
		return b.rotated(refs), strategy
	case core.StrategyLatencyBased:
		return b.byLatency(refs), strategy
	default:
		return refs, core.StrategyFallback
	}
}

// rotated rotates providers tied at the same (priority, priority group) by a
// per-bus counter so repeated selections distribute evenly. Tiers keep their
// relative order; only members within a tier move. Unavailable providers
// were already filtered by the registry, so they never consume a rotation
// slot.
func (b *baseBus) rotated(refs []*registry.ProviderRef) []*registry.ProviderRef {
	turn := int(b.rotation.Add(1) - 1)

	out := make([]*registry.ProviderRef, 0, len(refs))
	for i := 0; i < len(refs); {
		j := i + 1
		for j < len(refs) &&
			refs[j].Priority() == refs[i].Priority() &&
			refs[j].PriorityGroup() == refs[i].PriorityGroup() {
			j++
		}

		tier := refs[i:j]
		k := turn % len(tier)
		out = append(out, tier[k:]...)
		out = append(out, tier[:k]...)
		i = j
	}
	return out
}

// byLatency orders providers by their running average call latency, lowest
// first. Providers with no recorded calls sort ahead of measured ones so
// every provider gets tried at least once; remaining ties keep the
// registry's registration order.
func (b *baseBus) byLatency(refs []*registry.ProviderRef) []*registry.ProviderRef {
	out := make([]*registry.ProviderRef, len(refs))
	copy(out, refs)

	sort.SliceStable(out, func(i, j int) bool {
		ai, iOK := b.latency.Average(out[i].Name())
		aj, jOK := b.latency.Average(out[j].Name())
		if iOK != jOK {
			return !iOK
		}
		if !iOK {
			return false
		}
		return ai < aj
	})
	return out
}
