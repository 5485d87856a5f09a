package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/panelrun/core"
	"github.com/hupe1980/panelrun/precheck"
)

// runHandle is the engine-internal runtime state of one run: its context,
// its ordered event channel and the settlement counters. Panel tasks are the
// only event writers; the channel serializes them, so per-panel FIFO order
// is preserved without extra locking.
type runHandle struct {
	run    *core.Run
	ctx    context.Context
	cancel context.CancelFunc

	events    chan core.Event
	done      chan struct{}
	closeOnce sync.Once

	mu              sync.Mutex
	consumed        bool
	settledAt       time.Time
	platformSettled int
}

// claim marks the event stream as consumed; only the first caller wins.
func (h *runHandle) claim() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.consumed {
		return false
	}
	h.consumed = true
	return true
}

func (h *runHandle) state() core.RunState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.run.State
}

// setState advances the run state machine. Terminal states are final; a
// transition out of one is ignored.
func (h *runHandle) setState(s core.RunState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.run.State.Terminal() {
		return
	}
	h.run.State = s
}

func (h *runHandle) settled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.settledAt.IsZero()
}

func (h *runHandle) settledBefore(cutoff time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.settledAt.IsZero() && h.settledAt.Before(cutoff)
}

func (h *runHandle) markSettled() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settledAt = time.Now()
}

// settlePanel records that a panel reached succeeded or failed. Only
// platform-credential panels feed the quota commit; skipped and
// cancelled-mid-stream panels never get here.
func (h *runHandle) settlePanel(usedPlatformKey bool) {
	if !usedPlatformKey {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.platformSettled++
}

func (h *runHandle) platformSettledCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.platformSettled
}

// finish closes the run's stream exactly once and stamps settlement.
func (h *runHandle) finish() {
	h.closeOnce.Do(func() {
		close(h.events)
		close(h.done)
	})
	h.markSettled()
}

// emit delivers an event to the run's stream, giving up when the run is
// cancelled. Returns whether the event was delivered.
func (h *runHandle) emit(ev core.Event) bool {
	select {
	case <-h.ctx.Done():
		return false
	case h.events <- ev:
		return true
	}
}

// tryEmit is a non-blocking emit used after cancellation, when the consumer
// may already be gone.
func (h *runHandle) tryEmit(ev core.Event) bool {
	select {
	case h.events <- ev:
		return true
	default:
		return false
	}
}

// runDoneEmitTimeout bounds the post-cancel run_done delivery: long enough
// for a live consumer to drain a momentarily full buffer, short enough that
// an abandoned run does not stall settlement.
const runDoneEmitTimeout = 500 * time.Millisecond

// emitWithin delivers an event with a bounded wait. Used after cancellation,
// where h.ctx is already done but an attached consumer should still receive
// the final event.
func (h *runHandle) emitWithin(ev core.Event, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case h.events <- ev:
		return true
	case <-timer.C:
		return false
	}
}

// execute drives one run from dispatch to settlement. It is the single
// scheduler goroutine of the run: it walks configs in caller order, skips
// panels the precheck rejects, and admits the rest through the counting
// semaphore so at most maxParallel panel tasks run at once.
func (e *Engine) execute(h *runHandle) {
	run := h.run
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("run dispatch panicked", "run_id", run.ID, "panic", fmt.Sprintf("%v", r))
			h.setState(core.RunStateErrored)
			h.tryEmit(core.NewRunErrorEvent(fmt.Sprintf("internal scheduler fault: %v", r)))
			h.finish()
		}
	}()

	h.setState(core.RunStateDispatching)

	// Advisory quota read: platform-key panels may start even when the
	// optimistic count looks exhausted. Authoritative accounting happens at
	// settlement.
	if hasPlatformPanel(run.Configs) {
		if _, err := e.accountant.Preflight(h.ctx, run.AccountID); err != nil {
			e.logger.Warn("quota preflight failed, dispatch proceeds", "run_id", run.ID, "error", err.Error())
		}
	}

	sem := make(chan struct{}, run.MaxParallel)
	var wg sync.WaitGroup
	admitted := false

	for _, cfg := range run.Configs {
		if h.ctx.Err() != nil {
			break // cancelled: stop admitting, never retract past results
		}

		res := precheck.Check(cfg, run.Message, run.Attachments, 0)
		if !res.Fits {
			// Skipped panels terminate before admission: no slot, no network.
			h.emit(core.NewPanelSkippedEvent(
				cfg.ConfigID,
				fmt.Sprintf("estimated input of %d tokens exceeds the %d token context window of %s",
					res.EstimatedTokens, res.ContextWindow, cfg.Model),
				res.EstimatedTokens, res.ContextWindow,
			))
			e.logger.Debug("panel skipped by precheck", "run_id", run.ID, "config_id", cfg.ConfigID,
				"estimated_tokens", res.EstimatedTokens, "context_window", res.ContextWindow)
			continue
		}

		if !acquire(h.ctx, sem) {
			break
		}
		if e.globalSem != nil && !acquire(h.ctx, e.globalSem) {
			<-sem
			break
		}
		if !admitted {
			admitted = true
			h.setState(core.RunStateStreaming)
		}

		wg.Add(1)
		go func(cfg core.PanelConfig) {
			defer wg.Done()
			defer func() {
				<-sem
				if e.globalSem != nil {
					<-e.globalSem
				}
			}()
			e.runPanel(h, cfg)
		}(cfg)
	}

	wg.Wait()
	e.settle(h, start)
}

// settle finishes the run: final state, one quota commit, the run-level
// terminal event, then stream close.
func (e *Engine) settle(h *runHandle, start time.Time) {
	run := h.run
	cancelled := h.ctx.Err() != nil
	if cancelled {
		h.setState(core.RunStateCancelled)
	} else {
		h.setState(core.RunStateCompleted)
	}

	// The commit must survive run cancellation: panels settled before the
	// cancel arrived are still accounted for.
	snapshot, err := e.accountant.Commit(context.WithoutCancel(h.ctx), run.AccountID, h.platformSettledCount())
	switch {
	case err != nil && !cancelled:
		h.setState(core.RunStateErrored)
		h.emit(core.NewRunErrorEvent(fmt.Sprintf("usage settlement failed: %v", err)))
	case err != nil:
		e.logger.Error("usage settlement failed after cancel", "run_id", run.ID, "error", err.Error())
	case cancelled:
		// Consumer may be gone; wait briefly rather than forever so a live
		// consumer still gets the quota snapshot.
		h.emitWithin(core.NewRunDoneEvent(snapshot), runDoneEmitTimeout)
	default:
		h.emit(core.NewRunDoneEvent(snapshot))
	}

	h.finish()

	e.logger.Info("run settled", "run_id", run.ID, "state", string(h.state()),
		"panels", len(run.Configs), "platform_panels", h.platformSettledCount(),
		"duration", time.Since(start).String())
}

// acquire takes one semaphore slot, aborting when ctx is cancelled.
func acquire(ctx context.Context, sem chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case sem <- struct{}{}:
		return true
	}
}

func hasPlatformPanel(configs []core.PanelConfig) bool {
	for _, cfg := range configs {
		if cfg.UsesPlatformKey() {
			return true
		}
	}
	return false
}
