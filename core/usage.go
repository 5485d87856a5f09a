package core

import (
	"context"
	"time"
)

// Usage is the per-account quota counter state as owned by a UsageStore.
type Usage struct {
	Used         int
	Limit        int
	IsPaid       bool
	PeriodEndsAt time.Time
}

// Remaining returns the allowance left in the current period, floored at zero.
func (u Usage) Remaining() int {
	if r := u.Limit - u.Used; r > 0 {
		return r
	}
	return 0
}

// Snapshot converts the counter state into the wire-facing quota snapshot.
func (u Usage) Snapshot() QuotaSnapshot {
	return QuotaSnapshot{
		Used:         u.Used,
		Limit:        u.Limit,
		Remaining:    u.Remaining(),
		IsPaid:       u.IsPaid,
		PeriodEndsAt: u.PeriodEndsAt,
	}
}

// UsageStore owns the authoritative per-account usage counters. Increments
// must be atomic read-modify-write operations: concurrent runs by the same
// account must never lose updates. Implementations are free to persist
// counters anywhere (memory, sqlite, an external billing service).
type UsageStore interface {
	// Usage returns the current counter state for an account, creating the
	// account lazily with store defaults when unknown.
	Usage(ctx context.Context, accountID string) (Usage, error)

	// AddUsage atomically increments the account's used counter by n and
	// returns the fresh state.
	AddUsage(ctx context.Context, accountID string, n int) (Usage, error)
}
