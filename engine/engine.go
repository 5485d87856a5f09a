package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/panelrun/core"
	"github.com/hupe1980/panelrun/logging"
	"github.com/hupe1980/panelrun/model"
	"github.com/hupe1980/panelrun/quota"
)

// Config defines tuning parameters for the engine's operational behavior.
type Config struct {
	// DefaultMaxParallel is applied when a run request omits maxParallel.
	DefaultMaxParallel int

	// GlobalMaxConcurrent optionally caps concurrently running panel tasks
	// across all runs of this process. 0 disables the global ceiling;
	// per-run maxParallel always applies.
	GlobalMaxConcurrent int

	// EventBufferSize sets the per-run event channel buffer. Larger buffers
	// decouple slow consumers from fast producers at the cost of memory.
	EventBufferSize int

	// RunTTL is how long a settled run stays resident before the janitor
	// evicts it, attachments included.
	RunTTL time.Duration

	// MaxAttachmentBytes is the per-attachment size ceiling enforced at run
	// creation.
	MaxAttachmentBytes int64
}

// DefaultConfig provides production-ready default configuration values.
var DefaultConfig = Config{
	DefaultMaxParallel: 3,
	EventBufferSize:    256,
	RunTTL:             5 * time.Minute,
	MaxAttachmentBytes: 50 << 20, // 50 MB
}

// Options configures an Engine instance using the functional options pattern.
type Options struct {
	// Config contains operational parameters for the engine behavior.
	Config Config

	// Registry resolves provider names to adapter factories. Defaults to an
	// empty registry; callers register the providers they support.
	Registry *model.Registry

	// Credentials supplies platform provider keys for non-BYOK panels.
	// Defaults to an empty static map (every platform-key panel fails auth).
	Credentials CredentialSource

	// Accountant handles quota pre-flight and settlement. Defaults to an
	// in-memory accountant.
	Accountant *quota.Accountant

	// Logger defaults to a NoOp logger.
	Logger logging.Logger
}

// Engine orchestrates runs. It owns the run registry, the per-run scheduler
// and multiplexer goroutines, and the settlement path into the quota
// accountant. All public methods are safe for concurrent use.
type Engine struct {
	config      Config
	registry    *model.Registry
	credentials CredentialSource
	accountant  *quota.Accountant
	logger      logging.Logger

	rootCtx    context.Context
	rootCancel context.CancelFunc
	globalSem  chan struct{}

	runs map[string]*runHandle
	mu   sync.RWMutex

	janitorStop chan struct{}
	janitorOnce sync.Once
}

// New creates an Engine with sensible defaults and optional configuration.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config:      DefaultConfig,
		Registry:    model.NewRegistry(),
		Credentials: StaticCredentials{},
		Accountant:  quota.NewAccountant(),
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())

	e := &Engine{
		config:      opts.Config,
		registry:    opts.Registry,
		credentials: opts.Credentials,
		accountant:  opts.Accountant,
		logger:      opts.Logger,
		rootCtx:     rootCtx,
		rootCancel:  rootCancel,
		runs:        make(map[string]*runHandle),
		janitorStop: make(chan struct{}),
	}
	if opts.Config.GlobalMaxConcurrent > 0 {
		e.globalSem = make(chan struct{}, opts.Config.GlobalMaxConcurrent)
	}

	go e.janitor()

	return e
}

// CreateRunRequest carries everything needed to start a run. AccountID comes
// from the authentication collaborator; ProviderKey fields inside configs
// arrive already decrypted.
type CreateRunRequest struct {
	AccountID   string
	Message     string
	Configs     []core.PanelConfig
	MaxParallel int
	Attachments []core.Attachment
}

// CreateRun validates the request, registers a new run and starts its
// dispatch in the background. It returns the opaque run id the caller uses
// to attach to the event stream. Validation failures reject the request
// before any run exists.
func (e *Engine) CreateRun(ctx context.Context, req CreateRunRequest) (string, error) {
	if err := core.ValidateConfigs(req.Configs); err != nil {
		return "", fmt.Errorf("invalid configs: %w", err)
	}
	for _, att := range req.Attachments {
		if att.Size() > e.config.MaxAttachmentBytes {
			return "", fmt.Errorf("attachment %q exceeds size ceiling (%d > %d bytes)",
				att.Filename, att.Size(), e.config.MaxAttachmentBytes)
		}
	}
	if err := e.rootCtx.Err(); err != nil {
		return "", fmt.Errorf("engine closed: %w", err)
	}

	maxParallel := req.MaxParallel
	if maxParallel <= 0 {
		maxParallel = e.config.DefaultMaxParallel
	}

	run := core.NewRun(req.AccountID, req.Message, req.Configs, maxParallel, req.Attachments)

	runCtx, cancel := context.WithCancel(e.rootCtx)
	h := &runHandle{
		run:    run,
		ctx:    runCtx,
		cancel: cancel,
		events: make(chan core.Event, e.config.EventBufferSize),
		done:   make(chan struct{}),
	}

	e.mu.Lock()
	e.runs[run.ID] = h
	e.mu.Unlock()

	e.logger.Info("run created", "run_id", run.ID, "account_id", run.AccountID,
		"panels", len(run.Configs), "max_parallel", run.MaxParallel)

	go e.execute(h)

	return run.ID, nil
}

// Events claims the run's ordered event stream. The channel closes after the
// run-level terminal event. A stream can be claimed exactly once; a second
// claim returns core.ErrStreamConsumed.
func (e *Engine) Events(runID string) (<-chan core.Event, error) {
	h, err := e.handle(runID)
	if err != nil {
		return nil, err
	}
	if !h.claim() {
		return nil, core.ErrStreamConsumed
	}
	return h.events, nil
}

// Cancel requests cooperative termination of an in-flight run. Running panel
// adapter calls are cancelled, no new panels are admitted, and events of
// already-settled panels remain deliverable. Cancelling a settled run is a
// no-op. It is idempotent.
func (e *Engine) Cancel(runID string) error {
	h, err := e.handle(runID)
	if err != nil {
		return err
	}
	h.cancel()
	return nil
}

// RunState reports the current lifecycle state of a run.
func (e *Engine) RunState(runID string) (core.RunState, error) {
	h, err := e.handle(runID)
	if err != nil {
		return "", err
	}
	return h.state(), nil
}

// Release evicts a settled run immediately instead of waiting for the TTL.
// Called by the transport once the stream has been fully consumed. Releasing
// an unsettled run is a no-op (the janitor will catch it later).
func (e *Engine) Release(runID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.runs[runID]
	if !ok || !h.settled() {
		return
	}
	delete(e.runs, runID)
}

// Close cancels every in-flight run and stops the janitor. The engine
// accepts no new runs afterwards.
func (e *Engine) Close() {
	e.rootCancel()
	e.janitorOnce.Do(func() { close(e.janitorStop) })
}

func (e *Engine) handle(runID string) (*runHandle, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	return h, nil
}

// janitor periodically evicts settled runs whose TTL elapsed. Runs are not a
// store of record; attachments die with them.
func (e *Engine) janitor() {
	interval := e.config.RunTTL / 4
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.janitorStop:
			return
		case <-ticker.C:
			e.evictExpired()
		}
	}
}

func (e *Engine) evictExpired() {
	cutoff := time.Now().Add(-e.config.RunTTL)
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, h := range e.runs {
		switch {
		case h.settledBefore(cutoff):
			delete(e.runs, id)
			e.logger.Debug("run evicted", "run_id", id)
		case !h.settled() && h.run.CreatedAt.Before(cutoff):
			// Abandoned run: the stream was never drained and the TTL has
			// elapsed. Cancelling unblocks every emitter so the run settles;
			// the next sweep evicts it.
			h.cancel()
			e.logger.Warn("run abandoned, cancelling", "run_id", id)
		}
	}
}
