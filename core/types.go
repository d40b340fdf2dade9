package core

// ServiceType identifies the kind of capability a provider implements. Each
// service type is served by exactly one bus instance.
type ServiceType int

const (
	// ServiceTypeCommunication covers outbound/inbound message adapters
	// (chat platforms, CLI, HTTP callbacks).
	ServiceTypeCommunication ServiceType = iota
	// ServiceTypeTool covers structured tool execution.
	ServiceTypeTool
	// ServiceTypeLLM covers language model completion providers.
	ServiceTypeLLM
	// ServiceTypeWise covers wisdom/guidance authorities.
	ServiceTypeWise
	// ServiceTypeRuntimeControl covers processor lifecycle control.
	ServiceTypeRuntimeControl
)

// ServiceTypes lists every service type in registration order. Useful for
// iterating all buses (stats, resets, readiness checks).
var ServiceTypes = []ServiceType{
	ServiceTypeCommunication,
	ServiceTypeTool,
	ServiceTypeLLM,
	ServiceTypeWise,
	ServiceTypeRuntimeControl,
}

// String returns the canonical lowercase name of the service type.
func (s ServiceType) String() string {
	switch s {
	case ServiceTypeCommunication:
		return "communication"
	case ServiceTypeTool:
		return "tool"
	case ServiceTypeLLM:
		return "llm"
	case ServiceTypeWise:
		return "wise"
	case ServiceTypeRuntimeControl:
		return "runtime_control"
	default:
		return "unknown"
	}
}

// Priority orders providers for fallback selection. Lower values sort first.
// The gap before PriorityFallback is intentional: it leaves room for future
// tiers while keeping fallback providers strictly last.
type Priority int

const (
	// PriorityCritical providers are tried before all others.
	PriorityCritical Priority = 0
	// PriorityHigh providers are preferred over normal operation providers.
	PriorityHigh Priority = 1
	// PriorityNormal is the default registration priority.
	PriorityNormal Priority = 2
	// PriorityLow providers are only used when better tiers are unavailable.
	PriorityLow Priority = 3
	// PriorityFallback providers are the last resort.
	PriorityFallback Priority = 9
)

// String returns the uppercase name of the priority tier.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	case PriorityFallback:
		return "FALLBACK"
	default:
		return "UNKNOWN"
	}
}

// SelectionStrategy decides how a bus picks among providers tied at the same
// priority and priority group.
type SelectionStrategy int

const (
	// StrategyFallback always prefers the highest-priority available
	// provider and retries the next one on failure.
	StrategyFallback SelectionStrategy = iota
	// StrategyRoundRobin rotates through providers tied at the same
	// priority; unavailable providers never consume a rotation slot.
	StrategyRoundRobin
	// StrategyLatencyBased selects the available provider with the lowest
	// running average latency; never-called providers are tried first.
	StrategyLatencyBased
)

// String returns the snake_case name of the strategy.
func (s SelectionStrategy) String() string {
	switch s {
	case StrategyFallback:
		return "fallback"
	case StrategyRoundRobin:
		return "round_robin"
	case StrategyLatencyBased:
		return "latency_based"
	default:
		return "unknown"
	}
}
