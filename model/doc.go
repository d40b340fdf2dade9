// Package model and its subpackages provide concrete LLM providers for the
// LLM bus.
//
// Core goals:
//   - Normalize vendor chat APIs behind core.LLMProvider
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests and examples (MockProvider)
//
// Providers (e.g. OpenAI, Anthropic) are registered with the service
// registry under ServiceTypeLLM, typically with a "domain" metadata tag so
// the bus can enforce domain routing.
package model
