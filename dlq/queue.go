// Package dlq provides in-process retry scheduling for asynchronous side
// effects that may fail transiently: webhook deliveries, notifications,
// sync jobs. Failed work is retried with exponential backoff up to a fixed
// budget, after which it parks in a terminal dead state requiring operator
// intervention. There is no infinite-retry path.
package dlq

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/EfeDurmaz16/aspendos-reliability/id"
	"github.com/EfeDurmaz16/aspendos-reliability/types"
)

// Defaults for the retry schedule.
const (
	DefaultMaxRetries = 5
	DefaultBaseDelay  = time.Second
	DefaultMaxBackoff = time.Hour
)

// Sentinel errors.
var (
	// ErrEntryNotFound is returned when an entry ID is unknown.
	ErrEntryNotFound = errors.New("dlq: entry not found")

	// ErrNotDead is returned when replaying an entry that is not dead.
	ErrNotDead = errors.New("dlq: entry is not dead")
)

// Queue is an in-memory dead letter queue. Safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	entries map[string]*Entry

	baseDelay         time.Duration
	maxBackoff        time.Duration
	defaultMaxRetries int
	now               func() time.Time

	completed uint64
}

// Option configures a Queue.
type Option func(*Queue)

// WithBaseDelay sets the first retry delay.
func WithBaseDelay(d time.Duration) Option {
	return func(q *Queue) { q.baseDelay = d }
}

// WithMaxBackoff caps the retry delay.
func WithMaxBackoff(d time.Duration) Option {
	return func(q *Queue) { q.maxBackoff = d }
}

// WithDefaultMaxRetries sets the retry budget applied when an entry does
// not carry its own.
func WithDefaultMaxRetries(n int) Option {
	return func(q *Queue) { q.defaultMaxRetries = n }
}

// WithClock sets the time source. Tests use this for deterministic schedules.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// NewQueue creates an empty Queue.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		entries:           make(map[string]*Entry),
		baseDelay:         DefaultBaseDelay,
		maxBackoff:        DefaultMaxBackoff,
		defaultMaxRetries: DefaultMaxRetries,
		now:               time.Now,
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Enqueue adds a failed side effect to the queue. Missing fields are
// defaulted: a generated ID, the default retry budget, and a first retry at
// now plus the backoff for the entry's attempt count. Returns the stored entry.
func (q *Queue) Enqueue(e Entry) *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()

	if e.ID == "" {
		e.ID = id.NewEntryID().String()
	}
	if e.MaxRetries <= 0 {
		e.MaxRetries = q.defaultMaxRetries
	}
	e.State = StatePending
	e.NextRetryAt = now.Add(q.backoff(e.AttemptCount))
	e.Entity = types.NewEntityAt(now)

	stored := e
	q.entries[e.ID] = &stored

	return stored.clone()
}

// Dequeue returns up to batchSize pending entries that are due, oldest
// schedule first, transitioning each to processing and stamping its attempt
// time. Entries not yet due, already processing, or dead are not returned.
func (q *Queue) Dequeue(batchSize int) []*Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()

	due := make([]*Entry, 0, batchSize)
	for _, e := range q.entries {
		if e.State == StatePending && !e.NextRetryAt.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextRetryAt.Before(due[j].NextRetryAt)
	})
	if batchSize > 0 && len(due) > batchSize {
		due = due[:batchSize]
	}

	out := make([]*Entry, 0, len(due))
	for _, e := range due {
		e.State = StateProcessing
		e.LastAttemptAt = now
		e.TouchAt(now)
		out = append(out, e.clone())
	}

	return out
}

// MarkCompleted removes a successfully processed entry and reports whether
// it existed.
func (q *Queue) MarkCompleted(entryID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[entryID]; !ok {
		return false
	}

	delete(q.entries, entryID)
	q.completed++

	return true
}

// MarkFailed records a failed attempt: the attempt count is incremented and
// the entry either returns to pending with a recomputed retry time, or goes
// dead once the retry budget is exhausted. Returns the updated entry.
func (q *Queue) MarkFailed(entryID string, errorMessage string) (*Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[entryID]
	if !ok {
		return nil, ErrEntryNotFound
	}

	now := q.now()
	e.AttemptCount++
	e.Error = errorMessage
	e.TouchAt(now)

	if e.AttemptCount < e.MaxRetries {
		e.State = StatePending
		e.NextRetryAt = now.Add(q.backoff(e.AttemptCount))
	} else {
		e.State = StateDead
	}

	return e.clone(), nil
}

// Dead returns all dead entries, for operator inspection.
func (q *Queue) Dead() []*Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*Entry, 0)
	for _, e := range q.entries {
		if e.State == StateDead {
			out = append(out, e.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out
}

// ReplayDead returns a dead entry to the pending state with a fresh retry
// budget, due immediately. The operator-facing recovery path.
func (q *Queue) ReplayDead(entryID string) (*Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[entryID]
	if !ok {
		return nil, ErrEntryNotFound
	}
	if e.State != StateDead {
		return nil, ErrNotDead
	}

	now := q.now()
	e.State = StatePending
	e.AttemptCount = 0
	e.NextRetryAt = now
	e.TouchAt(now)

	return e.clone(), nil
}

// PurgeOlderThan removes dead entries created more than maxAge ago and
// returns the count removed. Pending and processing entries are never
// purged automatically.
func (q *Queue) PurgeOlderThan(maxAge time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	removed := 0
	for entryID, e := range q.entries {
		if e.State == StateDead && e.AgeAt(now) > maxAge {
			delete(q.entries, entryID)
			removed++
		}
	}

	return removed
}

// Stats returns per-state counts plus the oldest entry's age.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	s := Stats{Completed: q.completed}
	for _, e := range q.entries {
		switch e.State {
		case StatePending:
			s.Pending++
		case StateProcessing:
			s.Processing++
		case StateDead:
			s.Dead++
		}
		if age := e.AgeAt(now); age > s.OldestAge {
			s.OldestAge = age
		}
	}

	return s
}

// Reset clears all state. For test isolation only.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = make(map[string]*Entry)
	q.completed = 0
}

// backoff computes the retry delay for an attempt count:
// min(maxBackoff, baseDelay * 2^attempt). Deterministic, no jitter.
func (q *Queue) backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 32 {
		return q.maxBackoff
	}

	delay := q.baseDelay << uint(attempt)
	if delay <= 0 || delay > q.maxBackoff {
		return q.maxBackoff
	}

	return delay
}
