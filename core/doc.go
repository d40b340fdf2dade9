// Package core defines the shared vocabulary of the AgentBus service mesh:
// service types, priorities, selection strategies, the provider contracts
// implemented by adapters, and the typed error taxonomy surfaced by the
// registry and buses.
//
// The package is dependency-free by design so that provider implementations,
// the registry and the buses can all import it without cycles.
package core
