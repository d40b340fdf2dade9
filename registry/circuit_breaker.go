package registry

import (
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/agentbus/logging"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// StateClosed allows requests to proceed normally.
	StateClosed CircuitState = iota
	// StateOpen blocks all requests until the recovery timeout elapses.
	StateOpen
	// StateHalfOpen allows probe requests to test recovery.
	StateHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of cumulative failures in the closed
	// state that trips the breaker open.
	FailureThreshold int

	// RecoveryTimeout is how long an open breaker waits before permitting
	// probe calls.
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of consecutive half-open successes
	// required to close the breaker again.
	SuccessThreshold int

	// MaxHalfOpenProbes caps concurrent probe calls while half-open.
	// Zero means unlimited, which recovers fastest but risks flooding a
	// just-recovering provider.
	MaxHalfOpenProbes int64
}

// DefaultCircuitBreakerConfig returns the default configuration.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 3,
	}
}

// BreakerStats is a read-only snapshot of a breaker's state and counters.
type BreakerStats struct {
	Name        string    `json:"name"`
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
	Successes   int       `json:"successes"`
	LastFailure time.Time `json:"last_failure,omitempty"`
}

// CircuitBreaker is a per-provider health state machine. It stops a provider
// from being invoked after repeated failures and periodically permits trial
// calls to detect recovery.
//
// State transitions:
//
//	CLOSED    --failures >= threshold-->  OPEN
//	OPEN      --recovery timeout-->       HALF_OPEN (on availability check)
//	HALF_OPEN --successes >= threshold--> CLOSED
//	HALF_OPEN --any failure-->            OPEN
//
// All reads and writes are serialized by one mutex so concurrent bus
// consumers can never observe conflicting transitions.
type CircuitBreaker struct {
	mu          sync.Mutex
	name        string
	cfg         CircuitBreakerConfig
	state       CircuitState
	failures    int
	successes   int
	lastFailure time.Time
	probes      *semaphore.Weighted
	logger      logging.Logger

	// now is swapped out in tests for deterministic timeout checks.
	now func() time.Time
}

// NewCircuitBreaker creates a closed breaker for the named provider.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, logger logging.Logger) *CircuitBreaker {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	cb := &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		state:  StateClosed,
		logger: logger,
		now:    time.Now,
	}
	if cfg.MaxHalfOpenProbes > 0 {
		cb.probes = semaphore.NewWeighted(cfg.MaxHalfOpenProbes)
	}
	return cb
}

// IsAvailable reports whether the provider behind this breaker may be
// invoked. An open breaker whose recovery timeout has elapsed transitions to
// half-open as a side effect of this check.
func (cb *CircuitBreaker) IsAvailable() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastFailure) >= cb.cfg.RecoveryTimeout {
			cb.transitionTo(StateHalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

// Acquire combines the availability check with a half-open probe slot. The
// returned release func must be called after the provider call completes; it
// is a no-op unless a probe slot was taken. ok is false when the breaker is
// unavailable or all probe slots are busy.
func (cb *CircuitBreaker) Acquire() (release func(), ok bool) {
	if !cb.IsAvailable() {
		return func() {}, false
	}

	cb.mu.Lock()
	halfOpen := cb.state == StateHalfOpen
	cb.mu.Unlock()

	if halfOpen && cb.probes != nil {
		if !cb.probes.TryAcquire(1) {
			return func() {}, false
		}
		return func() { cb.probes.Release(1) }, true
	}
	return func() {}, true
}

// RecordSuccess tracks a successful provider call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.transitionTo(StateClosed)
		}
	case StateOpen:
		// A success can only arrive here from a call that started before
		// the breaker tripped; it does not reopen the path.
	}
}

// RecordFailure tracks a failed provider call. Timeouts count as failures.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		cb.transitionTo(StateOpen)
	case StateOpen:
		cb.lastFailure = cb.now()
	}
}

// Reset forces the breaker closed and zeroes all counters. Administrative
// use only; the reset is always logged.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.logger.Warn("circuit breaker administratively reset", "breaker", cb.name, "from", cb.state.String())
	cb.transitionTo(StateClosed)
}

// State returns the current circuit state without side effects.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a snapshot of the breaker's state and counters.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerStats{
		Name:        cb.name,
		State:       cb.state.String(),
		Failures:    cb.failures,
		Successes:   cb.successes,
		LastFailure: cb.lastFailure,
	}
}

// transitionTo changes state and applies the entry side effects. Caller must
// hold the mutex.
func (cb *CircuitBreaker) transitionTo(state CircuitState) {
	from := cb.state
	cb.state = state

	switch state {
	case StateOpen:
		cb.lastFailure = cb.now()
		cb.failures = 0
		cb.successes = 0
	case StateClosed:
		cb.failures = 0
		cb.successes = 0
	case StateHalfOpen:
		cb.successes = 0
	}

	cb.logger.Warn("circuit breaker state change", "breaker", cb.name, "from", from.String(), "to", state.String())
}
