// Package sqlite provides a durable core.UsageStore backed by a local sqlite
// database. Increments run as read-modify-write inside a transaction so
// concurrent runs by the same account never lose updates, and the billing
// period rolls forward lazily on access.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/panelrun/core"
)

// Options configures the sqlite usage store.
type Options struct {
	// DefaultLimit is the monthly allowance for new accounts.
	DefaultLimit int
	// DefaultIsPaid marks new accounts as paid tier.
	DefaultIsPaid bool
}

// Store is a sqlite-backed UsageStore.
type Store struct {
	db   *sql.DB
	opts Options
}

const schema = `
CREATE TABLE IF NOT EXISTS quota_usage (
	account_id     TEXT PRIMARY KEY,
	used           INTEGER NOT NULL DEFAULT 0,
	usage_limit    INTEGER NOT NULL,
	is_paid        INTEGER NOT NULL DEFAULT 0,
	period_ends_at TEXT NOT NULL
);`

// New opens (or creates) the database at path and ensures the schema exists.
func New(path string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{DefaultLimit: 100}
	for _, fn := range optFns {
		fn(&opts)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open quota database: %w", err)
	}
	// sqlite allows one writer at a time; a single pooled connection turns
	// would-be SQLITE_BUSY errors into queueing.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create quota schema: %w", err)
	}
	return &Store{db: db, opts: opts}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Usage returns the counter state for an account, creating it lazily.
func (s *Store) Usage(ctx context.Context, accountID string) (core.Usage, error) {
	return s.withTx(ctx, accountID, 0)
}

// AddUsage atomically increments the account's used counter by n.
func (s *Store) AddUsage(ctx context.Context, accountID string, n int) (core.Usage, error) {
	return s.withTx(ctx, accountID, n)
}

// withTx loads the row, rolls the period forward if elapsed, applies the
// increment and writes the result back, all within one transaction.
func (s *Store) withTx(ctx context.Context, accountID string, add int) (core.Usage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Usage{}, fmt.Errorf("begin quota tx: %w", err)
	}
	defer tx.Rollback()

	usage, err := s.loadLocked(ctx, tx, accountID)
	if err != nil {
		return core.Usage{}, err
	}

	now := time.Now().UTC()
	if now.After(usage.PeriodEndsAt) {
		usage.Used = 0
		usage.PeriodEndsAt = nextPeriodEnd(now)
	}
	usage.Used += add

	_, err = tx.ExecContext(ctx, `
		INSERT INTO quota_usage (account_id, used, usage_limit, is_paid, period_ends_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			used = excluded.used,
			period_ends_at = excluded.period_ends_at`,
		accountID, usage.Used, usage.Limit, boolToInt(usage.IsPaid), usage.PeriodEndsAt.Format(time.RFC3339))
	if err != nil {
		return core.Usage{}, fmt.Errorf("write usage for account %s: %w", accountID, err)
	}

	if err := tx.Commit(); err != nil {
		return core.Usage{}, fmt.Errorf("commit quota tx: %w", err)
	}
	return usage, nil
}

// loadLocked reads the account row within tx, falling back to store defaults
// for unknown accounts.
func (s *Store) loadLocked(ctx context.Context, tx *sql.Tx, accountID string) (core.Usage, error) {
	var (
		usage     core.Usage
		isPaid    int
		periodRaw string
	)
	err := tx.QueryRowContext(ctx,
		`SELECT used, usage_limit, is_paid, period_ends_at FROM quota_usage WHERE account_id = ?`,
		accountID).Scan(&usage.Used, &usage.Limit, &isPaid, &periodRaw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return core.Usage{
			Limit:        s.opts.DefaultLimit,
			IsPaid:       s.opts.DefaultIsPaid,
			PeriodEndsAt: nextPeriodEnd(time.Now().UTC()),
		}, nil
	case err != nil:
		return core.Usage{}, fmt.Errorf("read usage for account %s: %w", accountID, err)
	}

	usage.IsPaid = isPaid != 0
	usage.PeriodEndsAt, err = time.Parse(time.RFC3339, periodRaw)
	if err != nil {
		return core.Usage{}, fmt.Errorf("parse period for account %s: %w", accountID, err)
	}
	return usage, nil
}

func nextPeriodEnd(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
