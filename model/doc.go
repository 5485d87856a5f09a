// Package model defines the provider-agnostic adapter contract PanelRun uses
// to talk to upstream AI services.
//
// Core goals:
//   - Normalize three materially different upstream streaming protocols
//     (chat-completions SSE, message events, content streaming) behind a
//     single token/final/error vocabulary
//   - Map provider-specific stop signals onto the shared finish reason enum
//   - Classify every upstream failure into the core error taxonomy at this
//     boundary, so nothing provider specific escapes into the engine
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (OpenAI, Anthropic, Gemini) implement the Model interface in
// their own subpackages and are looked up through a Registry keyed by the
// provider name carried in a panel config.
package model
