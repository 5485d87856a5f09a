package quota

import (
	"context"
	"fmt"

	"github.com/hupe1980/panelrun/core"
	"github.com/hupe1980/panelrun/logging"
)

// Options configures an Accountant.
type Options struct {
	// Store owns the per-account counters. Defaults to an in-memory store.
	Store core.UsageStore
	// Logger defaults to a NoOp logger.
	Logger logging.Logger
}

// Accountant mediates every quota interaction of the engine. It never blocks
// a dispatch and commits usage exactly once per run.
type Accountant struct {
	store  core.UsageStore
	logger logging.Logger
}

// NewAccountant constructs an accountant with optional overrides.
func NewAccountant(optFns ...func(o *Options)) *Accountant {
	opts := Options{
		Store:  NewInMemoryStore(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Accountant{store: opts.Store, logger: opts.Logger}
}

// Preflight reads the optimistic local count for an account. It is advisory
// only: a platform-key panel is allowed to start even when the count looks
// exhausted, because authoritative accounting happens at completion. An
// exhausted count is logged so operators can see overshoot.
func (a *Accountant) Preflight(ctx context.Context, accountID string) (core.Usage, error) {
	usage, err := a.store.Usage(ctx, accountID)
	if err != nil {
		return core.Usage{}, fmt.Errorf("read usage for account %s: %w", accountID, err)
	}
	if usage.Remaining() == 0 {
		a.logger.Warn("quota optimistically exhausted, dispatch proceeds", "account_id", accountID, "used", usage.Used, "limit", usage.Limit)
	}
	return usage, nil
}

// Commit increments the account's usage by the number of panels that settled
// on the platform credential and returns the fresh snapshot. A zero count
// performs a plain read so run_done still carries current numbers.
func (a *Accountant) Commit(ctx context.Context, accountID string, platformPanels int) (core.QuotaSnapshot, error) {
	var (
		usage core.Usage
		err   error
	)
	if platformPanels > 0 {
		usage, err = a.store.AddUsage(ctx, accountID, platformPanels)
	} else {
		usage, err = a.store.Usage(ctx, accountID)
	}
	if err != nil {
		return core.QuotaSnapshot{}, fmt.Errorf("commit %d platform panels for account %s: %w", platformPanels, accountID, err)
	}
	a.logger.Debug("quota committed", "account_id", accountID, "panels", platformPanels, "used", usage.Used, "limit", usage.Limit)
	return usage.Snapshot(), nil
}
