package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/agentbus/core"
	"github.com/hupe1980/agentbus/logging"
)

// RegisterOptions configures a provider registration using the functional
// options pattern.
type RegisterOptions struct {
	// Priority orders this provider against others of the same type.
	// Defaults to PriorityNormal.
	Priority core.Priority

	// PriorityGroup is the secondary ordering key within a priority tier.
	PriorityGroup int

	// Capabilities are the string tags this provider declares. Requests
	// carrying required capabilities only match providers whose set is a
	// superset.
	Capabilities []string

	// Strategy selects how a bus picks among providers tied at the same
	// priority and group. Defaults to StrategyFallback.
	Strategy core.SelectionStrategy

	// Metadata carries free-form key/value pairs. The "domain" key is
	// significant: it scopes LLM providers to a request domain.
	Metadata map[string]string

	// BreakerConfig overrides the registry's default circuit breaker
	// configuration for this provider.
	BreakerConfig *CircuitBreakerConfig
}

// Registration is the handle returned by Register. It identifies one
// provider registration for later removal.
type Registration struct {
	ID          string
	ServiceType core.ServiceType
	Name        string
}

// providerEntry pairs a registered provider with its selection attributes and
// its circuit breaker. Entries are owned by the registry and never escape it;
// buses interact through ProviderRef views.
type providerEntry struct {
	id           string
	provider     core.Provider
	name         string
	priority     core.Priority
	group        int
	capabilities map[string]struct{}
	strategy     core.SelectionStrategy
	metadata     map[string]string
	breaker      *CircuitBreaker
	order        int
}

// Query filters GetProviders results.
type Query struct {
	// Capabilities the provider must declare (superset match).
	Capabilities []string

	// Domain restricts providers to those whose "domain" metadata equals
	// the requested domain or "general". Empty matches everything.
	Domain string
}

// ServiceRegistry owns the set of registered providers per service type,
// each paired with a dedicated circuit breaker. It is the only component
// allowed to mutate provider attributes or breaker wiring; buses obtain
// read-only, breaker-aware views via GetProviders.
type ServiceRegistry struct {
	mu         sync.RWMutex
	providers  map[core.ServiceType][]*providerEntry
	byID       map[string]*providerEntry
	seq        int
	defaultCfg CircuitBreakerConfig
	logger     logging.Logger
}

// Options configures a ServiceRegistry.
type Options struct {
	// Logger receives registration, reset and breaker transition events.
	// Defaults to NoOpLogger.
	Logger logging.Logger

	// BreakerConfig is the default circuit breaker configuration applied
	// to providers registered without an override.
	BreakerConfig CircuitBreakerConfig
}

// New creates an empty service registry.
func New(optFns ...func(o *Options)) *ServiceRegistry {
	opts := Options{
		Logger:        logging.NoOpLogger{},
		BreakerConfig: DefaultCircuitBreakerConfig(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &ServiceRegistry{
		providers:  make(map[core.ServiceType][]*providerEntry),
		byID:       make(map[string]*providerEntry),
		defaultCfg: opts.BreakerConfig,
		logger:     opts.Logger,
	}
}

// Register adds a provider for a service type and creates a fresh circuit
// breaker for it. The provider name must be unique within the type;
// duplicates return core.ErrDuplicateProvider.
func (r *ServiceRegistry) Register(
	serviceType core.ServiceType,
	provider core.Provider,
	optFns ...func(o *RegisterOptions),
) (*Registration, error) {
	if provider == nil {
		return nil, fmt.Errorf("cannot register nil provider for %s", serviceType)
	}
	name := provider.Name()
	if name == "" {
		return nil, fmt.Errorf("cannot register unnamed provider for %s", serviceType)
	}

	opts := RegisterOptions{Priority: core.PriorityNormal}
	for _, fn := range optFns {
		fn(&opts)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.providers[serviceType] {
		if e.name == name {
			return nil, fmt.Errorf("%w: %s/%s", core.ErrDuplicateProvider, serviceType, name)
		}
	}

	breakerCfg := r.defaultCfg
	if opts.BreakerConfig != nil {
		breakerCfg = *opts.BreakerConfig
	}

	caps := make(map[string]struct{}, len(opts.Capabilities))
	for _, c := range opts.Capabilities {
		caps[c] = struct{}{}
	}

	meta := make(map[string]string, len(opts.Metadata))
	for k, v := range opts.Metadata {
		meta[k] = v
	}

	r.seq++
	entry := &providerEntry{
		id:           uuid.NewString(),
		provider:     provider,
		name:         name,
		priority:     opts.Priority,
		group:        opts.PriorityGroup,
		capabilities: caps,
		strategy:     opts.Strategy,
		metadata:     meta,
		breaker:      NewCircuitBreaker(fmt.Sprintf("%s/%s", serviceType, name), breakerCfg, r.logger),
		order:        r.seq,
	}

	r.providers[serviceType] = append(r.providers[serviceType], entry)
	sortEntries(r.providers[serviceType])
	r.byID[entry.id] = entry

	r.logger.Info("provider registered",
		"service", serviceType.String(),
		"provider", name,
		"priority", opts.Priority.String(),
		"priority_group", opts.PriorityGroup,
		"strategy", opts.Strategy.String(),
		"capabilities", opts.Capabilities)

	return &Registration{ID: entry.id, ServiceType: serviceType, Name: name}, nil
}

// Unregister removes a provider and its breaker. It is idempotent and
// nil-safe: unknown or already-removed handles are ignored.
func (r *ServiceRegistry) Unregister(reg *Registration) {
	if reg == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byID[reg.ID]
	if !ok {
		return
	}
	delete(r.byID, reg.ID)

	entries := r.providers[reg.ServiceType]
	for i, e := range entries {
		if e == entry {
			r.providers[reg.ServiceType] = append(entries[:i], entries[i+1:]...)
			break
		}
	}

	r.logger.Info("provider unregistered", "service", reg.ServiceType.String(), "provider", entry.name)
}

// GetProviders returns breaker-aware views of every provider of the given
// type that declares the required capabilities, matches the requested domain
// and is currently available. Results are ordered by (priority, priority
// group, registration order); an open breaker whose recovery timeout elapsed
// is half-open eligible and therefore included.
func (r *ServiceRegistry) GetProviders(serviceType core.ServiceType, q Query) []*ProviderRef {
	r.mu.RLock()
	entries := make([]*providerEntry, len(r.providers[serviceType]))
	copy(entries, r.providers[serviceType])
	r.mu.RUnlock()

	refs := make([]*ProviderRef, 0, len(entries))
	for _, e := range entries {
		if !e.hasCapabilities(q.Capabilities) {
			continue
		}
		if !e.matchesDomain(q.Domain) {
			continue
		}
		if !e.breaker.IsAvailable() {
			continue
		}
		refs = append(refs, &ProviderRef{entry: e})
	}

	// Within a tier an exact domain match outranks a general provider, so
	// a domain specialist is preferred over a generalist of equal standing.
	if q.Domain != "" {
		sort.SliceStable(refs, func(i, j int) bool {
			a, b := refs[i].entry, refs[j].entry
			if a.priority != b.priority {
				return a.priority < b.priority
			}
			if a.group != b.group {
				return a.group < b.group
			}
			return a.domainRank(q.Domain) < b.domainRank(q.Domain)
		})
	}
	return refs
}

// Count returns the number of registered providers for a type, regardless of
// availability.
func (r *ServiceRegistry) Count(serviceType core.ServiceType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers[serviceType])
}

// ResetCircuitBreakers forces the breakers of the listed service types back
// to closed with zeroed counters. With no arguments every breaker is reset.
// Resets are always logged for audit.
func (r *ServiceRegistry) ResetCircuitBreakers(types ...core.ServiceType) {
	if len(types) == 0 {
		types = core.ServiceTypes
	}

	r.mu.RLock()
	var breakers []*CircuitBreaker
	for _, st := range types {
		for _, e := range r.providers[st] {
			breakers = append(breakers, e.breaker)
		}
	}
	r.mu.RUnlock()

	for _, cb := range breakers {
		cb.Reset()
	}
	names := make([]string, len(types))
	for i, st := range types {
		names[i] = st.String()
	}
	r.logger.Warn("administrative circuit breaker reset", "providers", len(breakers), "services", names)
}

// ProviderInfo is the read-only diagnostic view of one registration.
type ProviderInfo struct {
	Name          string            `json:"name"`
	Priority      string            `json:"priority"`
	PriorityGroup int               `json:"priority_group"`
	Strategy      string            `json:"strategy"`
	Capabilities  []string          `json:"capabilities"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Breaker       BreakerStats      `json:"circuit_breaker"`
}

// Snapshot is a point-in-time diagnostic view of the whole registry.
type Snapshot struct {
	Services map[string][]ProviderInfo `json:"services"`
}

// Snapshot returns the registry's current providers and breaker states. It
// has no side effects; open breakers are reported as-is without the
// half-open eligibility check.
func (r *ServiceRegistry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := &Snapshot{Services: make(map[string][]ProviderInfo, len(r.providers))}
	for st, entries := range r.providers {
		infos := make([]ProviderInfo, 0, len(entries))
		for _, e := range entries {
			caps := make([]string, 0, len(e.capabilities))
			for c := range e.capabilities {
				caps = append(caps, c)
			}
			sort.Strings(caps)

			meta := make(map[string]string, len(e.metadata))
			for k, v := range e.metadata {
				meta[k] = v
			}

			infos = append(infos, ProviderInfo{
				Name:          e.name,
				Priority:      e.priority.String(),
				PriorityGroup: e.group,
				Strategy:      e.strategy.String(),
				Capabilities:  caps,
				Metadata:      meta,
				Breaker:       e.breaker.Stats(),
			})
		}
		snap.Services[st.String()] = infos
	}
	return snap
}

// WaitReady blocks until every listed service type has at least one
// registered provider or the context expires. With no arguments it waits for
// all service types. Useful during bootstrap when adapters register
// asynchronously.
func (r *ServiceRegistry) WaitReady(ctx context.Context, types ...core.ServiceType) error {
	if len(types) == 0 {
		types = core.ServiceTypes
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		missing := r.missingTypes(types)
		if len(missing) == 0 {
			r.logger.Info("service registry ready")
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("service registry readiness: missing %v: %w", missing, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (r *ServiceRegistry) missingTypes(types []core.ServiceType) []core.ServiceType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []core.ServiceType
	for _, st := range types {
		if len(r.providers[st]) == 0 {
			missing = append(missing, st)
		}
	}
	return missing
}

// sortEntries orders by priority, then priority group, then registration
// order. Registration order is the only tie-break: it is the sole
// deterministic, implementation-independent ordering for otherwise equal
// providers.
func sortEntries(entries []*providerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		if a.group != b.group {
			return a.group < b.group
		}
		return a.order < b.order
	})
}

func (e *providerEntry) hasCapabilities(required []string) bool {
	for _, c := range required {
		if _, ok := e.capabilities[c]; !ok {
			return false
		}
	}
	return true
}

// matchesDomain treats providers without a domain tag as "general". General
// providers serve every domain; tagged providers only serve their own.
func (e *providerEntry) matchesDomain(domain string) bool {
	if domain == "" {
		return true
	}
	d, ok := e.metadata["domain"]
	if !ok || d == "" {
		d = "general"
	}
	return d == domain || d == "general"
}

// domainRank orders exact domain matches (0) ahead of general providers (1)
// when a domain-filtered query sorts within a tier.
func (e *providerEntry) domainRank(domain string) int {
	if e.metadata["domain"] == domain {
		return 0
	}
	return 1
}

// ProviderRef is a read-only, breaker-aware view of one registered provider
// handed to buses by GetProviders. Recording outcomes through the ref is the
// only way bus code may influence breaker state.
type ProviderRef struct {
	entry *providerEntry
}

// Name returns the provider's registered name.
func (pr *ProviderRef) Name() string { return pr.entry.name }

// Priority returns the registration priority.
func (pr *ProviderRef) Priority() core.Priority { return pr.entry.priority }

// PriorityGroup returns the secondary ordering key.
func (pr *ProviderRef) PriorityGroup() int { return pr.entry.group }

// Strategy returns the selection strategy declared at registration.
func (pr *ProviderRef) Strategy() core.SelectionStrategy { return pr.entry.strategy }

// Metadata returns the value for a metadata key, or "".
func (pr *ProviderRef) Metadata(key string) string { return pr.entry.metadata[key] }

// Provider returns the underlying provider instance. Callers type-assert to
// the service-specific interface.
func (pr *ProviderRef) Provider() core.Provider { return pr.entry.provider }

// Acquire checks availability and claims a half-open probe slot when the
// breaker caps probes. The release func must be called once the provider
// call finishes.
func (pr *ProviderRef) Acquire() (release func(), ok bool) { return pr.entry.breaker.Acquire() }

// RecordSuccess reports a successful call to the provider's breaker.
func (pr *ProviderRef) RecordSuccess() { pr.entry.breaker.RecordSuccess() }

// RecordFailure reports a failed or timed-out call to the provider's breaker.
func (pr *ProviderRef) RecordFailure() { pr.entry.breaker.RecordFailure() }
