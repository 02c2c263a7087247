package credit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EfeDurmaz16/aspendos-reliability/id"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestAddValidation(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	tests := []struct {
		name   string
		amount decimal.Decimal
	}{
		{"zero", decimal.Zero},
		{"negative", dec("-5")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Add(ctx, "acct", tt.amount, ReasonPurchase)
			require.Error(t, err)
			assert.True(t, IsValidation(err), "expected a validation error, got %v", err)
		})
	}

	// Nothing was mutated.
	balance, err := l.Balance(ctx, "acct")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestAddIncreasesTotal(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	total, err := l.Add(ctx, "acct", dec("100"), ReasonSubscriptionRenewal)
	require.NoError(t, err)
	assert.True(t, total.Equal(dec("100")))

	total, err = l.Add(ctx, "acct", dec("0.25"), ReasonPromotion)
	require.NoError(t, err)
	assert.True(t, total.Equal(dec("100.25")), "fractional amounts must not be rounded")
}

func TestReserveInsufficientCredits(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	_, _, err := l.Reserve(ctx, "acct", dec("1"), "op")
	require.ErrorIs(t, err, ErrInsufficientCredits)

	_, err = l.Add(ctx, "acct", dec("10"), ReasonPurchase)
	require.NoError(t, err)

	_, _, err = l.Reserve(ctx, "acct", dec("10.01"), "op")
	require.ErrorIs(t, err, ErrInsufficientCredits)

	// A failed reserve makes no mutation at all.
	balance, err := l.Balance(ctx, "acct")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("10")))
	assert.Equal(t, 0, l.Stats().ActiveReservations)
}

func TestReserveDuplicateOperationID(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	_, err := l.Add(ctx, "acct", dec("100"), ReasonPurchase)
	require.NoError(t, err)

	res, _, err := l.Reserve(ctx, "acct", dec("30"), "op-1")
	require.NoError(t, err)

	_, _, err = l.Reserve(ctx, "acct", dec("1"), "op-1")
	require.ErrorIs(t, err, ErrAlreadyReserved)

	// Releasing frees the operation ID for reuse.
	_, _, err = l.Release(ctx, res.ID)
	require.NoError(t, err)

	_, _, err = l.Reserve(ctx, "acct", dec("1"), "op-1")
	require.NoError(t, err)
}

func TestCommitAndReleaseAreTerminal(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	_, err := l.Add(ctx, "acct", dec("100"), ReasonPurchase)
	require.NoError(t, err)

	t.Run("commit twice", func(t *testing.T) {
		res, _, err := l.Reserve(ctx, "acct", dec("10"), "op-a")
		require.NoError(t, err)

		_, total, err := l.Commit(ctx, res.ID)
		require.NoError(t, err)
		assert.True(t, total.Equal(dec("90")))

		_, _, err = l.Commit(ctx, res.ID)
		require.ErrorIs(t, err, ErrReservationNotFound)
	})

	t.Run("release after commit", func(t *testing.T) {
		res, _, err := l.Reserve(ctx, "acct", dec("10"), "op-b")
		require.NoError(t, err)

		_, _, err = l.Commit(ctx, res.ID)
		require.NoError(t, err)

		_, _, err = l.Release(ctx, res.ID)
		require.ErrorIs(t, err, ErrReservationNotFound)
	})

	t.Run("release twice", func(t *testing.T) {
		res, _, err := l.Reserve(ctx, "acct", dec("10"), "op-c")
		require.NoError(t, err)

		_, _, err = l.Release(ctx, res.ID)
		require.NoError(t, err)

		_, _, err = l.Release(ctx, res.ID)
		require.ErrorIs(t, err, ErrReservationNotFound)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, _, err := l.Commit(ctx, id.NewReservationID())
		require.ErrorIs(t, err, ErrReservationNotFound)
	})
}

func TestBalanceRoundTrip(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	_, err := l.Add(ctx, "acct", dec("100"), ReasonPurchase)
	require.NoError(t, err)

	res, available, err := l.Reserve(ctx, "acct", dec("30"), "op")
	require.NoError(t, err)
	assert.True(t, available.Equal(dec("70")))

	_, _, err = l.Release(ctx, res.ID)
	require.NoError(t, err)

	balance, err := l.Balance(ctx, "acct")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("100")))
}

// Mirrors the end-to-end billing flow: top-up, partial reserve, a second
// reservation bouncing off the reduced availability, then a commit making
// the spend permanent.
func TestSpendScenario(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	balance, err := l.Balance(ctx, "u")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	total, err := l.Add(ctx, "u", dec("100"), ReasonSubscriptionRenewal)
	require.NoError(t, err)
	assert.True(t, total.Equal(dec("100")))

	res, available, err := l.Reserve(ctx, "u", dec("30"), "op1")
	require.NoError(t, err)
	assert.True(t, available.Equal(dec("70")))

	_, _, err = l.Reserve(ctx, "u", dec("80"), "op2")
	require.ErrorIs(t, err, ErrInsufficientCredits)

	_, total, err = l.Commit(ctx, res.ID)
	require.NoError(t, err)
	assert.True(t, total.Equal(dec("70")))

	balance, err = l.Balance(ctx, "u")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("70")))
}

func TestConcurrentReservesNeverOverspend(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	_, err := l.Add(ctx, "acct", dec("50"), ReasonPurchase)
	require.NoError(t, err)

	const attempts = 100

	var (
		wg        sync.WaitGroup
		successMu sync.Mutex
		successes int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _, err := l.Reserve(ctx, "acct", dec("1"), opID(n))
			if err == nil {
				successMu.Lock()
				successes++
				successMu.Unlock()
				return
			}
			if !errors.Is(err, ErrInsufficientCredits) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, successes, "exactly enough reserves to exhaust availability must succeed")

	balance, err := l.Balance(ctx, "acct")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
	assert.Equal(t, 50, l.Stats().ActiveReservations)
}

func opID(n int) string {
	return "op-" + string(rune('a'+n%26)) + "-" + decimal.NewFromInt(int64(n)).String()
}

func TestCleanupExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: now}

	l := NewLedger(
		WithClock(clock.Now),
		WithReservationTTL(time.Minute),
	)
	ctx := context.Background()

	_, err := l.Add(ctx, "acct", dec("100"), ReasonPurchase)
	require.NoError(t, err)

	short, _, err := l.Reserve(ctx, "acct", dec("30"), "short")
	require.NoError(t, err)

	// Second reservation created later; still live after the first expires.
	clock.Advance(30 * time.Second)
	_, _, err = l.Reserve(ctx, "acct", dec("20"), "long")
	require.NoError(t, err)

	clock.Advance(31 * time.Second)

	expired, err := l.CleanupExpired(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, short.ID.String(), expired[0].ID.String())

	balance, err := l.Balance(ctx, "acct")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("80")), "expired hold returns to availability")

	stats := l.Stats()
	assert.Equal(t, int64(1), stats.Expired)
	assert.Equal(t, int64(0), stats.Released)
	assert.Equal(t, 1, stats.ActiveReservations)

	// The sweep release is distinguishable in the audit trail.
	txns, err := l.Transactions(ctx, "acct")
	require.NoError(t, err)
	last := txns[len(txns)-1]
	assert.Equal(t, TxRelease, last.Type)
	assert.Equal(t, ReasonExpired, last.Reason)
}

func TestTransactionWindowIsBounded(t *testing.T) {
	l := NewLedger(WithHistorySize(4))
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := l.Add(ctx, "acct", dec("1"), ReasonPurchase)
		require.NoError(t, err)
	}

	txns, err := l.Transactions(ctx, "acct")
	require.NoError(t, err)
	assert.Len(t, txns, 4, "history must be trimmed to the configured window")

	// Counters survive the trim.
	assert.True(t, l.Stats().TotalIssued.Equal(dec("6")))
}

func TestStatsCounters(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	_, err := l.Add(ctx, "acct", dec("100"), ReasonPurchase)
	require.NoError(t, err)

	r1, _, err := l.Reserve(ctx, "acct", dec("10"), "op-1")
	require.NoError(t, err)
	r2, _, err := l.Reserve(ctx, "acct", dec("20"), "op-2")
	require.NoError(t, err)

	_, _, err = l.Commit(ctx, r1.ID)
	require.NoError(t, err)
	_, _, err = l.Release(ctx, r2.ID)
	require.NoError(t, err)

	stats := l.Stats()
	assert.True(t, stats.TotalIssued.Equal(dec("100")))
	assert.True(t, stats.TotalConsumed.Equal(dec("10")))
	assert.Equal(t, 0, stats.ActiveReservations)
	assert.Equal(t, int64(1), stats.Committed)
	assert.Equal(t, int64(1), stats.Released)
}

func TestReset(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	_, err := l.Add(ctx, "acct", dec("100"), ReasonPurchase)
	require.NoError(t, err)

	l.Reset()

	balance, err := l.Balance(ctx, "acct")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
	assert.True(t, l.Stats().TotalIssued.IsZero())
}

// ──────────────────────────────────────────────────
// Durable store write-through
// ──────────────────────────────────────────────────

type fakeStore struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	txns     []Transaction
}

func newFakeStore() *fakeStore {
	return &fakeStore{balances: make(map[string]decimal.Decimal)}
}

func (f *fakeStore) LoadBalance(_ context.Context, accountKey string) (decimal.Decimal, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total, ok := f.balances[accountKey]
	return total, ok, nil
}

func (f *fakeStore) SaveBalance(_ context.Context, accountKey string, total decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[accountKey] = total
	return nil
}

func (f *fakeStore) AppendTransaction(_ context.Context, txn Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txns = append(f.txns, txn)
	return nil
}

func TestDurableWriteThrough(t *testing.T) {
	store := newFakeStore()
	store.balances["acct"] = dec("40")

	l := NewLedger(WithStore(store))
	ctx := context.Background()

	// Hydrates the persisted total on first access.
	balance, err := l.Balance(ctx, "acct")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("40")))

	_, err = l.Add(ctx, "acct", dec("10"), ReasonPurchase)
	require.NoError(t, err)

	res, _, err := l.Reserve(ctx, "acct", dec("5"), "op")
	require.NoError(t, err)

	// Reservations are in-flight state; only permanent totals hit the store.
	assert.True(t, store.balances["acct"].Equal(dec("50")))

	_, _, err = l.Commit(ctx, res.ID)
	require.NoError(t, err)
	assert.True(t, store.balances["acct"].Equal(dec("45")))

	// Add and commit each appended a durable audit record.
	require.Len(t, store.txns, 2)
	assert.Equal(t, TxAdd, store.txns[0].Type)
	assert.Equal(t, TxCommit, store.txns[1].Type)
}

// ──────────────────────────────────────────────────
// Test helpers
// ──────────────────────────────────────────────────

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
