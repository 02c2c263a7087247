package dlq

import (
	"time"

	"github.com/EfeDurmaz16/aspendos-reliability/types"
)

// State is the lifecycle state of a queue entry.
type State string

// Entry states. There is no hidden fourth state: a completed entry is
// removed from the queue entirely.
const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateDead       State = "dead"
)

// Entry is a failed side effect awaiting retry. An entry cycles between
// pending and processing until it either completes (removed) or exhausts
// its retry budget and goes dead, where it stays until an operator replays
// or purges it.
type Entry struct {
	types.Entity

	ID            string    `json:"id"`
	OperationType string    `json:"operation_type"`
	Payload       any       `json:"payload,omitempty"`
	Error         string    `json:"error,omitempty"`
	AttemptCount  int       `json:"attempt_count"`
	MaxRetries    int       `json:"max_retries"`
	State         State     `json:"state"`
	NextRetryAt   time.Time `json:"next_retry_at"`
	LastAttemptAt time.Time `json:"last_attempt_at,omitzero"`
}

func (e *Entry) clone() *Entry {
	cp := *e
	return &cp
}

// Stats are per-state counts plus the age of the oldest entry, for
// alerting on queue buildup.
type Stats struct {
	Pending    int           `json:"pending"`
	Processing int           `json:"processing"`
	Dead       int           `json:"dead"`
	Completed  uint64        `json:"completed"`
	OldestAge  time.Duration `json:"oldest_age"`
}
