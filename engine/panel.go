package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/panelrun/core"
	"github.com/hupe1980/panelrun/model"
)

// runPanel executes exactly one adapter invocation for one panel config,
// independent of sibling panels. Tokens are forwarded to the run stream as
// they arrive (first-token latency matters); the terminal event carries the
// complete assembled text on success, or a classified failure description.
// There is no automatic retry: a retry is a fresh run by the caller.
func (e *Engine) runPanel(h *runHandle, cfg core.PanelConfig) {
	run := h.run
	start := time.Now()
	usesPlatform := cfg.UsesPlatformKey()

	// Adapter exceptions must never crash the scheduler; a panic inside the
	// call chain becomes a panel failure like any other.
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panel task panicked", "run_id", run.ID, "config_id", cfg.ConfigID,
				"panic", fmt.Sprintf("%v", r))
			if h.emit(core.NewPanelErrorEvent(cfg.ConfigID, fmt.Sprintf("internal adapter fault: %v", r))) {
				h.settlePanel(usesPlatform)
			}
		}
	}()

	key := cfg.ProviderKey
	if usesPlatform {
		platformKey, err := e.credentials.PlatformKey(cfg.Provider)
		if err != nil {
			e.failPanel(h, cfg, start, core.NewProviderError(core.ErrorKindAuth, cfg.Provider, err), usesPlatform)
			return
		}
		key = platformKey
	}

	m, err := e.registry.New(cfg.Provider, model.Config{
		Model:           cfg.Model,
		APIKey:          key,
		MaxOutputTokens: cfg.MaxOutputTokens,
	})
	if err != nil {
		e.failPanel(h, cfg, start, err, usesPlatform)
		return
	}

	respCh, errCh := m.Stream(h.ctx, model.Request{
		Message:     run.Message,
		System:      cfg.SystemPrompt,
		Attachments: run.Attachments,
	})

	var accumulated strings.Builder
	for respCh != nil || errCh != nil {
		select {
		case <-h.ctx.Done():
			// Cancelled mid-stream: partial text is discarded, no terminal
			// event, no quota settlement for this panel.
			return

		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if resp.Partial {
				if resp.Text != "" {
					accumulated.WriteString(resp.Text)
					h.emit(core.NewPanelTokenEvent(cfg.ConfigID, resp.Text))
				}
				continue
			}
			final := resp.Text
			if final == "" {
				final = accumulated.String()
			}
			if h.emit(core.NewPanelFinalEvent(cfg.ConfigID, final, resp.FinishReason)) {
				h.settlePanel(usesPlatform)
			}
			e.logPanelCall(run.ID, cfg, start, true, nil)
			return

		case streamErr, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if streamErr == nil {
				continue
			}
			if h.ctx.Err() != nil || errors.Is(streamErr, context.Canceled) {
				return
			}
			e.failPanel(h, cfg, start, streamErr, usesPlatform)
			return
		}
	}

	// Both channels closed without a final response or error: the adapter
	// broke its contract; surface it as a provider failure.
	e.failPanel(h, cfg, start,
		core.NewProviderError(core.ErrorKindProvider, cfg.Provider,
			errors.New("stream ended without final response")),
		usesPlatform)
}

// failPanel emits the terminal error event for a panel and settles it.
// Failed platform-key panels still count against quota; partial text is
// never surfaced as if it were complete.
func (e *Engine) failPanel(h *runHandle, cfg core.PanelConfig, start time.Time, err error, usesPlatform bool) {
	if h.emit(core.NewPanelErrorEvent(cfg.ConfigID, describePanelError(err))) {
		h.settlePanel(usesPlatform)
	}
	e.logPanelCall(h.run.ID, cfg, start, false, err)
}

func (e *Engine) logPanelCall(runID string, cfg core.PanelConfig, start time.Time, success bool, err error) {
	args := []any{
		"run_id", runID, "config_id", cfg.ConfigID,
		"provider", cfg.Provider, "model", cfg.Model,
		"duration", time.Since(start).String(), "success", success,
	}
	if err != nil {
		args = append(args, "error", err.Error())
		e.logger.Error("panel failed", args...)
		return
	}
	e.logger.Info("panel succeeded", args...)
}

// describePanelError renders a classified adapter failure as the
// human-readable description carried by panel_error, so the caller can tell
// an auth problem from a rate limit without parsing provider payloads.
func describePanelError(err error) string {
	switch core.KindOf(err) {
	case core.ErrorKindAuth:
		return fmt.Sprintf("authentication failed: %v", err)
	case core.ErrorKindRateLimited:
		return fmt.Sprintf("rate limited by provider: %v", err)
	case core.ErrorKindNetwork:
		return fmt.Sprintf("network failure: %v", err)
	default:
		if errors.Is(err, core.ErrUnknownProvider) {
			return err.Error()
		}
		return fmt.Sprintf("provider error: %v", err)
	}
}
