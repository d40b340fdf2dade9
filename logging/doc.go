// Package logging provides a minimal logging interface and adapters for AgentBus.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the registry and buses use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - BusLogger with contextual helpers for bus and breaker events
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	mesh := agentbus.New(func(o *agentbus.Options) { o.Logger = logger })
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging
