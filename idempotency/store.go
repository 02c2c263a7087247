// Package idempotency caches the result of the first successful execution of
// an operation under a caller-chosen key, so client retries and duplicate
// webhook deliveries observe identical effects instead of re-executing.
//
// Eviction is by two independent mechanisms: per-entry TTL (checked lazily
// on read) and a hard capacity bound enforced on write by evicting the
// least-recently-accessed entry. Eviction recency follows access time, not
// insertion time, so frequently re-checked keys survive longer.
package idempotency

import (
	"container/list"
	"sync"
	"time"
)

// DefaultTTL is the retention window for recorded results.
const DefaultTTL = 24 * time.Hour

// DefaultCapacity is the hard bound on stored entries.
const DefaultCapacity = 10000

type entry struct {
	key            string
	value          any
	expiresAt      time.Time
	lastAccessedAt time.Time
	elem           *list.Element
}

// Stats are aggregate counters for observability.
type Stats struct {
	Size      int    `json:"size"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Expired   uint64 `json:"expired"`
}

// Store is an in-memory idempotency cache. Safe for concurrent use.
type Store struct {
	mu         sync.Mutex
	entries    map[string]*entry
	recency    *list.List // front = most recently accessed
	capacity   int
	defaultTTL time.Duration
	now        func() time.Time

	hits      uint64
	misses    uint64
	evictions uint64
	expired   uint64
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity sets the hard entry bound.
func WithCapacity(n int) Option {
	return func(s *Store) { s.capacity = n }
}

// WithDefaultTTL sets the retention window used by Record.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Store) { s.defaultTTL = ttl }
}

// WithClock sets the time source. Tests use this for deterministic expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries:    make(map[string]*entry),
		recency:    list.New(),
		capacity:   DefaultCapacity,
		defaultTTL: DefaultTTL,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Check returns the cached result for key if present and unexpired. A hit
// refreshes the entry's access time, which counts toward LRU retention.
// A false return means "not yet executed, proceed".
func (s *Store) Check(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.misses++
		return nil, false
	}

	now := s.now()
	if !now.Before(e.expiresAt) {
		s.removeLocked(e)
		s.expired++
		s.misses++
		return nil, false
	}

	e.lastAccessedAt = now
	s.recency.MoveToFront(e.elem)
	s.hits++

	return e.value, true
}

// Record stores (overwriting) the result for key with the default TTL.
// Results may be any value, including nil and primitives.
func (s *Store) Record(key string, value any) {
	s.RecordTTL(key, value, s.defaultTTL)
}

// RecordTTL stores the result for key with an explicit retention window.
func (s *Store) RecordTTL(key string, value any, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	if e, ok := s.entries[key]; ok {
		e.value = value
		e.expiresAt = now.Add(ttl)
		e.lastAccessedAt = now
		s.recency.MoveToFront(e.elem)
		return
	}

	e := &entry{
		key:            key,
		value:          value,
		expiresAt:      now.Add(ttl),
		lastAccessedAt: now,
	}
	e.elem = s.recency.PushFront(e)
	s.entries[key] = e

	for len(s.entries) > s.capacity {
		oldest := s.recency.Back()
		if oldest == nil {
			break
		}
		s.removeLocked(oldest.Value.(*entry))
		s.evictions++
	}
}

// Do wraps an operation in an idempotency check: a cached result is
// returned without running fn; otherwise fn runs and its result is recorded
// on success. Failed executions are not recorded, so they may be retried.
func (s *Store) Do(key string, fn func() (any, error)) (any, error) {
	if v, ok := s.Check(key); ok {
		return v, nil
	}

	v, err := fn()
	if err != nil {
		return nil, err
	}

	s.Record(key, v)

	return v, nil
}

// PurgeExpired removes every expired entry and returns the count removed.
// Expiry is otherwise lazy, so a periodic purge keeps idle keys from
// lingering until their next read.
func (s *Store) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for _, e := range s.entries {
		if !now.Before(e.expiresAt) {
			s.removeLocked(e)
			s.expired++
			removed++
		}
	}

	return removed
}

// Len returns the number of stored entries, including any not yet lazily expired.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// Stats returns aggregate counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Size:      len(s.entries),
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
		Expired:   s.expired,
	}
}

// Reset clears all state. For test isolation only.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*entry)
	s.recency.Init()
	s.hits, s.misses, s.evictions, s.expired = 0, 0, 0, 0
}

func (s *Store) removeLocked(e *entry) {
	delete(s.entries, e.key)
	s.recency.Remove(e.elem)
}
