// Package registry provides the service registry: the single authority for
// which providers exist, how they are prioritized and whether they are
// currently healthy. Every registration owns a dedicated circuit breaker;
// buses query the registry for availability-filtered, priority-ordered
// provider views and report call outcomes back through them.
package registry
