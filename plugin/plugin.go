// Package plugin provides an extensible plugin system for the reliability
// core. Plugins can hook into lifecycle events to extend functionality:
// metrics, audit trails, event publishing, operator alerting.
package plugin

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/EfeDurmaz16/aspendos-reliability/credit"
	"github.com/EfeDurmaz16/aspendos-reliability/dlq"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the core starts. The core is passed as interface{}
// to avoid an import cycle with the root package.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, core interface{}) error
}

// OnShutdown is called when the core is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Credit ledger hooks
// ──────────────────────────────────────────────────

// OnCreditsAdded is called when credits are added to an account.
type OnCreditsAdded interface {
	Plugin
	OnCreditsAdded(ctx context.Context, accountKey string, amount, newTotal decimal.Decimal, reason credit.Reason) error
}

// OnCreditsReserved is called when a reservation is placed.
type OnCreditsReserved interface {
	Plugin
	OnCreditsReserved(ctx context.Context, res *credit.Reservation, available decimal.Decimal) error
}

// OnReservationCommitted is called when a reservation is finalized.
type OnReservationCommitted interface {
	Plugin
	OnReservationCommitted(ctx context.Context, res *credit.Reservation, newTotal decimal.Decimal) error
}

// OnReservationReleased is called when a reservation is explicitly undone.
type OnReservationReleased interface {
	Plugin
	OnReservationReleased(ctx context.Context, res *credit.Reservation, newTotal decimal.Decimal) error
}

// OnReservationExpired is called for each reservation released by the
// expiry sweep.
type OnReservationExpired interface {
	Plugin
	OnReservationExpired(ctx context.Context, res *credit.Reservation) error
}

// OnInsufficientCredits is called when a reservation is refused for lack
// of available balance. The usual trigger for a billing-upgrade prompt.
type OnInsufficientCredits interface {
	Plugin
	OnInsufficientCredits(ctx context.Context, accountKey string, requested decimal.Decimal) error
}

// ──────────────────────────────────────────────────
// Idempotency hooks
// ──────────────────────────────────────────────────

// OnIdempotencyHit is called when an operation is answered from the
// idempotency cache instead of re-executing.
type OnIdempotencyHit interface {
	Plugin
	OnIdempotencyHit(ctx context.Context, key string) error
}

// ──────────────────────────────────────────────────
// Dead letter queue hooks
// ──────────────────────────────────────────────────

// OnEntryEnqueued is called when a failed side effect enters the queue.
type OnEntryEnqueued interface {
	Plugin
	OnEntryEnqueued(ctx context.Context, e *dlq.Entry) error
}

// OnEntryCompleted is called when a retried side effect finally succeeds.
type OnEntryCompleted interface {
	Plugin
	OnEntryCompleted(ctx context.Context, entryID string) error
}

// OnEntryFailed is called on every failed attempt, including the one that
// kills the entry.
type OnEntryFailed interface {
	Plugin
	OnEntryFailed(ctx context.Context, e *dlq.Entry) error
}

// OnEntryDead is called when an entry exhausts its retry budget. Wire
// operator alerting here; dead entries are never retried automatically.
type OnEntryDead interface {
	Plugin
	OnEntryDead(ctx context.Context, e *dlq.Entry) error
}

// OnEntryReplayed is called when an operator replays a dead entry.
type OnEntryReplayed interface {
	Plugin
	OnEntryReplayed(ctx context.Context, e *dlq.Entry) error
}
