package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_LazyAccountCreation(t *testing.T) {
	store := NewInMemoryStore()
	usage, err := store.Usage(context.Background(), "fresh")
	require.NoError(t, err)

	assert.Equal(t, 0, usage.Used)
	assert.Equal(t, 100, usage.Limit)
	assert.False(t, usage.IsPaid)
	assert.True(t, usage.PeriodEndsAt.After(time.Now()))
}

func TestInMemoryStore_Defaults(t *testing.T) {
	store := NewInMemoryStore(func(o *InMemoryOptions) {
		o.DefaultLimit = 1000
		o.DefaultIsPaid = true
	})
	usage, err := store.Usage(context.Background(), "paid")
	require.NoError(t, err)
	assert.Equal(t, 1000, usage.Limit)
	assert.True(t, usage.IsPaid)
}

// Concurrent runs by the same account must never lose an increment.
func TestInMemoryStore_ConcurrentAddUsage(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AddUsage(ctx, "acct-1", 2)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	usage, err := store.Usage(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 100, usage.Used)
}

func TestInMemoryStore_PeriodRollover(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	_, err := store.AddUsage(ctx, "acct-1", 10)
	require.NoError(t, err)

	// Force the period into the past; the next access must reset the counter
	// and roll the period forward.
	store.mu.Lock()
	usage := store.accounts["acct-1"]
	usage.PeriodEndsAt = time.Now().UTC().Add(-time.Hour)
	store.accounts["acct-1"] = usage
	store.mu.Unlock()

	fresh, err := store.Usage(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.Used)
	assert.True(t, fresh.PeriodEndsAt.After(time.Now()))
}

func TestNextPeriodEnd(t *testing.T) {
	end := nextPeriodEnd(time.Date(2026, 8, 23, 15, 4, 5, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), end)

	// Year boundary.
	end = nextPeriodEnd(time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC))
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), end)
}
