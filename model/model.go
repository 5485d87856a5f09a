package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/panelrun/core"
)

// Request captures the normalized input for one streaming generation call.
// Attachments are shared by reference with the owning run and must be
// treated as read-only by adapters.
type Request struct {
	Message     string
	System      string
	Attachments []core.Attachment
}

// Response is a (partial or final) chunk emitted by a streaming adapter.
// Partial responses carry one incremental token in Text; the final response
// carries the complete assembled text plus the normalized finish reason.
type Response struct {
	Partial      bool
	Text         string
	FinishReason core.FinishReason
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "gemini", ...
	ContextWindow int    `json:"context_window,omitempty"`
}

// Model is the minimal interface a provider adapter must satisfy.
//
// Stream contract:
//   - Partial responses are emitted in production order, followed by exactly
//     one non-partial response on success, after which both channels close.
//   - Failures are classified into *core.ProviderError and sent on the error
//     channel; no response follows an error.
//   - Once ctx is cancelled the adapter stops consuming upstream bytes,
//     releases the connection promptly and emits nothing further.
type Model interface {
	Stream(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Config carries the per-panel parameters an adapter factory needs.
type Config struct {
	Model           string
	APIKey          string
	MaxOutputTokens int64
}

// Factory constructs an adapter for one panel from its resolved config.
type Factory func(cfg Config) (Model, error)

// Registry maps provider names to adapter factories. It is safe for
// concurrent use; registration typically happens once at startup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for a provider name.
func (r *Registry) Register(provider string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[provider] = f
}

// New resolves the factory for provider and constructs an adapter.
func (r *Registry) New(provider string, cfg Config) (Model, error) {
	r.mu.RLock()
	f, ok := r.factories[provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownProvider, provider)
	}
	return f(cfg)
}

// Providers returns the registered provider names (unordered).
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// It streams scripted chunks, then either a final response, a classified
// error, or blocks until cancellation. It counts its Stream invocations so
// tests can assert the adapter was (or was not) touched.
type MockModel struct {
	info             Info
	chunks           []string
	finishReason     core.FinishReason
	err              error
	chunkDelay       time.Duration
	blockUntilCancel bool
	calls            atomic.Int32
}

// NewMockModel constructs a MockModel that finishes with FinishStop.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:         Info{Name: name, Provider: provider},
		finishReason: core.FinishStop,
	}
}

// SetChunks scripts the partial chunks emitted before the final response.
func (m *MockModel) SetChunks(chunks ...string) { m.chunks = chunks }

// SetFinishReason overrides the finish reason of the final response.
func (m *MockModel) SetFinishReason(r core.FinishReason) { m.finishReason = r }

// SetError makes the stream fail with err after the scripted chunks instead
// of emitting a final response.
func (m *MockModel) SetError(err error) { m.err = err }

// SetChunkDelay inserts a pause before each chunk, useful for interleaving
// and cancellation tests.
func (m *MockModel) SetChunkDelay(d time.Duration) { m.chunkDelay = d }

// SetBlockUntilCancel makes the stream hang after the scripted chunks until
// the context is cancelled.
func (m *MockModel) SetBlockUntilCancel(block bool) { m.blockUntilCancel = block }

// CallCount returns how many times Stream has been invoked.
func (m *MockModel) CallCount() int { return int(m.calls.Load()) }

// Stream implements Model; emits scripted chunks then the configured outcome.
func (m *MockModel) Stream(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	m.calls.Add(1)

	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		for _, chunk := range m.chunks {
			if m.chunkDelay > 0 {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case <-time.After(m.chunkDelay):
				}
			}
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case respCh <- Response{Partial: true, Text: chunk}:
			}
		}

		if m.blockUntilCancel {
			<-ctx.Done()
			errCh <- ctx.Err()
			return
		}

		if m.err != nil {
			errCh <- m.err
			return
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{
			Partial:      false,
			Text:         strings.Join(m.chunks, ""),
			FinishReason: m.finishReason,
		}:
		}
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
