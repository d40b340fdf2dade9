// Package testutil contains scriptable fake providers used across tests to
// reduce boilerplate when exercising bus routing, fallback and circuit
// breaker behavior. Each fake records its calls and can be scripted to fail,
// hang or answer with canned data. They are not intended for production
// usage.
package testutil
