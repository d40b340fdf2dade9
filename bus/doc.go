// Package bus implements the message buses that sit between handlers and
// registered providers. One bus exists per service type; each owns a bounded
// FIFO queue with a single consumer loop and routes operations to providers
// selected through the service registry's availability and priority filters.
//
// Synchronous operations (tool execution, completions, guidance) dispatch
// inline with per-call timeouts and fallback across providers. Asynchronous
// operations (deferral broadcast, fire-and-forget sends) go through the
// queue; when the queue is full the submission is rejected rather than
// blocking the caller.
package bus
