package quota

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/panelrun/core"
)

// failingStore always errors, for exercising the accountant error paths.
type failingStore struct{ err error }

func (s failingStore) Usage(context.Context, string) (core.Usage, error) {
	return core.Usage{}, s.err
}

func (s failingStore) AddUsage(context.Context, string, int) (core.Usage, error) {
	return core.Usage{}, s.err
}

func TestAccountant_CommitIncrementsOnce(t *testing.T) {
	a := NewAccountant()
	ctx := context.Background()

	snap, err := a.Commit(ctx, "acct-1", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Used)
	assert.Equal(t, 100, snap.Limit)
	assert.Equal(t, 97, snap.Remaining)

	snap, err = a.Commit(ctx, "acct-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 5, snap.Used)
}

func TestAccountant_CommitZeroIsReadOnly(t *testing.T) {
	a := NewAccountant()
	ctx := context.Background()

	_, err := a.Commit(ctx, "acct-1", 4)
	require.NoError(t, err)

	// A run of only BYOK or skipped panels still needs a fresh snapshot but
	// must not move the counter.
	snap, err := a.Commit(ctx, "acct-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.Used)
}

func TestAccountant_PreflightIsAdvisory(t *testing.T) {
	store := NewInMemoryStore(func(o *InMemoryOptions) { o.DefaultLimit = 2 })
	a := NewAccountant(func(o *Options) { o.Store = store })
	ctx := context.Background()

	_, err := a.Commit(ctx, "acct-1", 5) // overshoot past the limit
	require.NoError(t, err)

	// Preflight reports the exhausted state but does not error.
	usage, err := a.Preflight(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 0, usage.Remaining())
}

func TestAccountant_StoreErrorsPropagate(t *testing.T) {
	sentinel := errors.New("store down")
	a := NewAccountant(func(o *Options) { o.Store = failingStore{err: sentinel} })
	ctx := context.Background()

	_, err := a.Preflight(ctx, "acct-1")
	assert.ErrorIs(t, err, sentinel)

	_, err = a.Commit(ctx, "acct-1", 1)
	assert.ErrorIs(t, err, sentinel)
}
