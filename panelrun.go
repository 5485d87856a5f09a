// Package panelrun provides a high-level façade over the run engine and its
// collaborators (provider adapters, quota accounting & logging) enabling rapid
// construction of multi-bot chat backends. Most applications interact with
// this package by:
//  1. Creating a PanelRun via New() (optionally overriding defaults)
//  2. Starting runs with CreateRun (one message, many bot configs)
//  3. Consuming the ordered event stream (Events) or draining it synchronously (RunSync)
//
// The façade delegates orchestration to engine.Engine while keeping setup and
// usage ergonomics concise. The default registry ships the openai, anthropic
// and gemini adapters; all other defaults are safe for local development and
// testing. Production deployments typically supply platform credentials, a
// durable usage store and a structured logger.
package panelrun

import (
	"context"

	"github.com/hupe1980/panelrun/core"
	"github.com/hupe1980/panelrun/engine"
	"github.com/hupe1980/panelrun/logging"
	"github.com/hupe1980/panelrun/model"
	"github.com/hupe1980/panelrun/model/anthropic"
	"github.com/hupe1980/panelrun/model/gemini"
	"github.com/hupe1980/panelrun/model/openai"
	"github.com/hupe1980/panelrun/quota"
)

// Options configures the PanelRun instance.
type Options struct {
	// EngineConfig contains operational parameters (concurrency, buffers, TTL).
	EngineConfig engine.Config

	// Registry resolves provider names to adapter factories. Defaults to a
	// registry with the openai, anthropic and gemini adapters registered.
	Registry *model.Registry

	// Credentials supplies the platform's provider keys for panels that did
	// not bring their own. Defaults to an empty static map.
	Credentials engine.CredentialSource

	// UsageStore owns the per-account quota counters (defaults to in-memory).
	UsageStore core.UsageStore

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// PanelRun is the high-level façade aggregating the engine and its services.
type PanelRun struct {
	opts   Options
	engine *engine.Engine
}

// New creates a new PanelRun instance with optional overrides. Any unset
// collaborator is initialized with a default implementation.
func New(optFns ...func(o *Options)) *PanelRun {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Credentials:  engine.StaticCredentials{},
		UsageStore:   quota.NewInMemoryStore(),
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Registry == nil {
		opts.Registry = DefaultRegistry()
	}

	accountant := quota.NewAccountant(func(o *quota.Options) {
		o.Store = opts.UsageStore
		o.Logger = opts.Logger
	})

	e := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Registry = opts.Registry
		o.Credentials = opts.Credentials
		o.Accountant = accountant
		o.Logger = opts.Logger
	})

	return &PanelRun{opts: opts, engine: e}
}

// DefaultRegistry returns a registry with the built-in provider adapters.
func DefaultRegistry() *model.Registry {
	r := model.NewRegistry()
	r.Register("openai", openai.Factory)
	r.Register("anthropic", anthropic.Factory)
	r.Register("gemini", gemini.Factory)
	return r
}

// Engine exposes the underlying engine for transports that need direct access.
func (p *PanelRun) Engine() *engine.Engine { return p.engine }

// CreateRun validates and starts a run, returning its opaque id.
func (p *PanelRun) CreateRun(ctx context.Context, req engine.CreateRunRequest) (string, error) {
	return p.engine.CreateRun(ctx, req)
}

// Events claims the run's ordered event stream. The channel closes after the
// run-level terminal event; a stream can be claimed exactly once.
func (p *PanelRun) Events(runID string) (<-chan core.Event, error) {
	return p.engine.Events(runID)
}

// Cancel requests cooperative termination of an in-flight run.
func (p *PanelRun) Cancel(runID string) error { return p.engine.Cancel(runID) }

// RunState reports the current lifecycle state of a run.
func (p *PanelRun) RunState(runID string) (core.RunState, error) {
	return p.engine.RunState(runID)
}

// Close cancels every in-flight run and releases engine resources.
func (p *PanelRun) Close() { p.engine.Close() }

// RunSync is a synchronous helper that starts a run, drains its event stream
// and returns the collected events. On context cancellation it cancels the
// run and returns the events collected so far.
func (p *PanelRun) RunSync(ctx context.Context, req engine.CreateRunRequest) (string, []core.Event, error) {
	runID, err := p.engine.CreateRun(ctx, req)
	if err != nil {
		return "", nil, err
	}

	eventsCh, err := p.engine.Events(runID)
	if err != nil {
		return runID, nil, err
	}
	defer p.engine.Release(runID)

	var events []core.Event
	for {
		select {
		case <-ctx.Done():
			_ = p.engine.Cancel(runID)
			// Drain so the engine can settle and release the run.
			for ev := range eventsCh {
				events = append(events, ev)
			}
			return runID, events, ctx.Err()

		case ev, ok := <-eventsCh:
			if !ok {
				return runID, events, nil
			}
			events = append(events, ev)
		}
	}
}
