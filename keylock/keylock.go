// Package keylock provides named mutual exclusion: a critical section per
// arbitrary string key, so that check-then-act sequences on the same logical
// resource (one account's balance, for example) never interleave, while
// operations on unrelated keys proceed fully in parallel.
package keylock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// slot is the lock state for a single key. waiters counts both the current
// holder and everyone queued behind it; when it drops to zero the slot is
// removed from the map so idle keys cost nothing.
type slot struct {
	sem     *semaphore.Weighted
	waiters int
}

// KeyedMutex serializes operations that share a key. Acquisition order per
// key is FIFO (semaphore.Weighted queues waiters in order). The zero value
// is not usable; call New.
type KeyedMutex struct {
	mu    sync.Mutex // guards slots
	slots map[string]*slot
}

// New creates an empty KeyedMutex.
func New() *KeyedMutex {
	return &KeyedMutex{
		slots: make(map[string]*slot),
	}
}

// Lock acquires the lock for key, blocking until it is available or ctx is
// done. On context error the lock is not held and the error is returned.
func (m *KeyedMutex) Lock(ctx context.Context, key string) error {
	m.mu.Lock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot{sem: semaphore.NewWeighted(1)}
		m.slots[key] = s
	}
	s.waiters++
	m.mu.Unlock()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		m.release(key, s, false)
		return err
	}

	return nil
}

// Unlock releases the lock for key. It panics if the key is not held,
// mirroring sync.Mutex semantics for unlock-of-unlocked.
func (m *KeyedMutex) Unlock(key string) {
	m.mu.Lock()
	s, ok := m.slots[key]
	m.mu.Unlock()

	if !ok {
		panic("keylock: unlock of unheld key " + key)
	}

	m.release(key, s, true)
}

// WithLock runs fn while holding the lock for key. The lock is released on
// every exit path, including a panic inside fn, and fn's error is returned
// unchanged. A ctx error before acquisition is returned without running fn.
func (m *KeyedMutex) WithLock(ctx context.Context, key string, fn func() error) error {
	if err := m.Lock(ctx, key); err != nil {
		return err
	}
	defer m.Unlock(key)

	return fn()
}

// Len returns the number of keys currently held or contended.
// Intended for tests and introspection.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.slots)
}

// release decrements the waiter count for a slot, removing it from the map
// once nobody references it, and optionally releases the semaphore permit.
func (m *KeyedMutex) release(key string, s *slot, held bool) {
	m.mu.Lock()
	s.waiters--
	if s.waiters == 0 {
		delete(m.slots, key)
	}
	m.mu.Unlock()

	if held {
		s.sem.Release(1)
	}
}
