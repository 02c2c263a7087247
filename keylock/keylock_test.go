package keylock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithLockSerializesSameKey(t *testing.T) {
	m := New()
	ctx := context.Background()

	const goroutines = 50
	const iterations = 20

	// A plain int mutated only inside the critical section. The race
	// detector plus the final count catch any interleaving.
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				err := m.WithLock(ctx, "acct-1", func() error {
					counter++
					return nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines*iterations, counter)
	assert.Equal(t, 0, m.Len(), "idle keys should be garbage collected")
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	m := New()
	ctx := context.Background()

	require.NoError(t, m.Lock(ctx, "a"))
	defer m.Unlock("a")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.WithLock(ctx, "b", func() error { return nil })
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("operation on an unrelated key blocked")
	}
}

func TestWithLockPropagatesError(t *testing.T) {
	m := New()
	sentinel := errors.New("side effect failed")

	err := m.WithLock(context.Background(), "k", func() error { return sentinel })
	require.ErrorIs(t, err, sentinel)

	// The lock must have been released despite the error.
	require.NoError(t, m.Lock(context.Background(), "k"))
	m.Unlock("k")
}

func TestWithLockReleasesOnPanic(t *testing.T) {
	m := New()

	func() {
		defer func() { _ = recover() }()
		_ = m.WithLock(context.Background(), "k", func() error {
			panic("boom")
		})
	}()

	// Re-acquisition must not deadlock.
	acquired := make(chan struct{})
	go func() {
		_ = m.WithLock(context.Background(), "k", func() error { return nil })
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("lock was not released after panic")
	}
}

func TestLockRespectsContextCancellation(t *testing.T) {
	m := New()
	ctx := context.Background()

	require.NoError(t, m.Lock(ctx, "k"))

	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	err := m.Lock(cancelCtx, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	m.Unlock("k")
	assert.Equal(t, 0, m.Len())
}

func TestUnlockOfUnheldKeyPanics(t *testing.T) {
	m := New()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on unlock of unheld key")
		}
	}()
	m.Unlock("never-locked")
}
