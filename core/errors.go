package core

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by buses and the registry. Callers match them with
// errors.Is.
var (
	// ErrQueueFull is returned when an async submission is rejected because
	// the bus queue is at capacity. The operation is dropped, not retried.
	ErrQueueFull = errors.New("bus queue at capacity, operation dropped")

	// ErrBusNotRunning is returned when an operation is submitted to a bus
	// that has not been started or was stopped.
	ErrBusNotRunning = errors.New("bus is not running")

	// ErrDuplicateProvider is returned when a provider name is already
	// registered for the same service type.
	ErrDuplicateProvider = errors.New("provider name already registered for service type")

	// ErrShuttingDown is returned by the runtime control bus when an
	// operation arrives after a shutdown broadcast has started.
	ErrShuttingDown = errors.New("runtime shutdown in progress")
)

// ProviderUnavailableError indicates that no registered provider passed the
// capability, domain and availability filters. Buses return it where the
// caller cannot reasonably degrade; operations with a natural empty result
// (tool not found, queue status) degrade instead.
type ProviderUnavailableError struct {
	Service      ServiceType
	Capabilities []string
	Domain       string
}

// Error implements the error interface.
func (e *ProviderUnavailableError) Error() string {
	msg := fmt.Sprintf("no %s provider available", e.Service)
	if len(e.Capabilities) > 0 {
		msg += fmt.Sprintf(" with capabilities %v", e.Capabilities)
	}
	if e.Domain != "" {
		msg += fmt.Sprintf(" for domain %q", e.Domain)
	}
	return msg
}

// OperationTimeoutError indicates a provider call exceeded its time bound.
// It is recorded as a circuit breaker failure exactly once.
type OperationTimeoutError struct {
	Provider string
	Timeout  time.Duration
}

// Error implements the error interface.
func (e *OperationTimeoutError) Error() string {
	return fmt.Sprintf("provider %q did not respond within %s", e.Provider, e.Timeout)
}

// OperationFailedError wraps an error returned by a provider invocation.
// Apart from caller-initiated cancellation it is recorded as a circuit
// breaker failure; under the fallback strategy the bus retries the next
// provider in order.
type OperationFailedError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("provider %q failed: %v", e.Provider, e.Err)
}

// Unwrap exposes the underlying provider error for errors.Is/As.
func (e *OperationFailedError) Unwrap() error { return e.Err }

// CapabilityProhibitedError indicates a guidance capability matched the
// domain firewall. It is raised before any provider routing, is never
// retried, and cannot be disabled at runtime.
type CapabilityProhibitedError struct {
	Capability string
	Match      string
}

// Error implements the error interface.
func (e *CapabilityProhibitedError) Error() string {
	return fmt.Sprintf("capability %q is prohibited (matched %q)", e.Capability, e.Match)
}
