package quota

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/panelrun/core"
)

// InMemoryOptions configures the defaults applied to lazily created accounts.
type InMemoryOptions struct {
	// DefaultLimit is the monthly allowance for new accounts.
	DefaultLimit int
	// DefaultIsPaid marks new accounts as paid tier.
	DefaultIsPaid bool
}

// InMemoryStore is a volatile UsageStore keeping per-account counters in a
// process-local map. It is safe for concurrent access: increments are
// read-modify-write under one lock so concurrent runs by the same account
// never lose updates. Best suited for tests and single-process deployments.
type InMemoryStore struct {
	mu       sync.Mutex
	accounts map[string]core.Usage
	opts     InMemoryOptions
}

// NewInMemoryStore constructs an empty in-memory usage store.
func NewInMemoryStore(optFns ...func(o *InMemoryOptions)) *InMemoryStore {
	opts := InMemoryOptions{DefaultLimit: 100}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryStore{
		accounts: make(map[string]core.Usage),
		opts:     opts,
	}
}

// Usage returns the counter state for an account, creating it lazily.
func (s *InMemoryStore) Usage(_ context.Context, accountID string) (core.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(accountID), nil
}

// AddUsage atomically increments the account's used counter by n.
func (s *InMemoryStore) AddUsage(_ context.Context, accountID string, n int) (core.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	usage := s.getLocked(accountID)
	usage.Used += n
	s.accounts[accountID] = usage
	return usage, nil
}

// getLocked fetches or creates the account entry, rolling the billing period
// forward when it has elapsed. Caller must hold the lock.
func (s *InMemoryStore) getLocked(accountID string) core.Usage {
	usage, ok := s.accounts[accountID]
	if !ok {
		usage = core.Usage{
			Limit:        s.opts.DefaultLimit,
			IsPaid:       s.opts.DefaultIsPaid,
			PeriodEndsAt: nextPeriodEnd(time.Now().UTC()),
		}
	}
	if !usage.PeriodEndsAt.IsZero() && time.Now().UTC().After(usage.PeriodEndsAt) {
		usage.Used = 0
		usage.PeriodEndsAt = nextPeriodEnd(time.Now().UTC())
	}
	s.accounts[accountID] = usage
	return usage
}

// nextPeriodEnd returns the first instant of the month following t.
func nextPeriodEnd(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
