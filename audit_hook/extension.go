// Package audithook bridges reliability lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit system. Callers inject a RecorderFunc adapter that
// bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/EfeDurmaz16/aspendos-reliability/credit"
	"github.com/EfeDurmaz16/aspendos-reliability/dlq"
	"github.com/EfeDurmaz16/aspendos-reliability/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnCreditsAdded         = (*Extension)(nil)
	_ plugin.OnCreditsReserved      = (*Extension)(nil)
	_ plugin.OnReservationCommitted = (*Extension)(nil)
	_ plugin.OnReservationReleased  = (*Extension)(nil)
	_ plugin.OnReservationExpired   = (*Extension)(nil)
	_ plugin.OnInsufficientCredits  = (*Extension)(nil)
	_ plugin.OnIdempotencyHit       = (*Extension)(nil)
	_ plugin.OnEntryDead            = (*Extension)(nil)
	_ plugin.OnEntryReplayed        = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges reliability lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Credit lifecycle hooks
// ──────────────────────────────────────────────────

// OnCreditsAdded implements plugin.OnCreditsAdded.
func (e *Extension) OnCreditsAdded(ctx context.Context, accountKey string, amount, newTotal decimal.Decimal, reason credit.Reason) error {
	return e.record(ctx, ActionCreditsAdded, SeverityInfo, OutcomeSuccess,
		ResourceAccount, accountKey, CategoryCredits, nil,
		"amount", amount.String(),
		"new_total", newTotal.String(),
		"reason", string(reason),
	)
}

// OnCreditsReserved implements plugin.OnCreditsReserved.
func (e *Extension) OnCreditsReserved(ctx context.Context, res *credit.Reservation, available decimal.Decimal) error {
	return e.record(ctx, ActionCreditsReserved, SeverityInfo, OutcomeSuccess,
		ResourceReservation, res.ID.String(), CategoryCredits, nil,
		"account_key", res.AccountKey,
		"amount", res.Amount.String(),
		"operation_id", res.OperationID,
		"available", available.String(),
	)
}

// OnReservationCommitted implements plugin.OnReservationCommitted.
func (e *Extension) OnReservationCommitted(ctx context.Context, res *credit.Reservation, newTotal decimal.Decimal) error {
	return e.record(ctx, ActionReservationCommitted, SeverityInfo, OutcomeSuccess,
		ResourceReservation, res.ID.String(), CategoryCredits, nil,
		"account_key", res.AccountKey,
		"amount", res.Amount.String(),
		"new_total", newTotal.String(),
	)
}

// OnReservationReleased implements plugin.OnReservationReleased.
func (e *Extension) OnReservationReleased(ctx context.Context, res *credit.Reservation, newTotal decimal.Decimal) error {
	return e.record(ctx, ActionReservationReleased, SeverityInfo, OutcomeSuccess,
		ResourceReservation, res.ID.String(), CategoryCredits, nil,
		"account_key", res.AccountKey,
		"amount", res.Amount.String(),
		"new_total", newTotal.String(),
	)
}

// OnReservationExpired implements plugin.OnReservationExpired.
func (e *Extension) OnReservationExpired(ctx context.Context, res *credit.Reservation) error {
	return e.record(ctx, ActionReservationExpired, SeverityWarning, OutcomeSuccess,
		ResourceReservation, res.ID.String(), CategoryCredits, nil,
		"account_key", res.AccountKey,
		"amount", res.Amount.String(),
		"operation_id", res.OperationID,
	)
}

// OnInsufficientCredits implements plugin.OnInsufficientCredits.
func (e *Extension) OnInsufficientCredits(ctx context.Context, accountKey string, requested decimal.Decimal) error {
	return e.record(ctx, ActionInsufficientCredits, SeverityWarning, OutcomeFailure,
		ResourceAccount, accountKey, CategoryCredits, nil,
		"requested", requested.String(),
	)
}

// ──────────────────────────────────────────────────
// Idempotency hooks
// ──────────────────────────────────────────────────

// OnIdempotencyHit implements plugin.OnIdempotencyHit.
func (e *Extension) OnIdempotencyHit(ctx context.Context, key string) error {
	return e.record(ctx, ActionIdempotencyHit, SeverityInfo, OutcomeSuccess,
		ResourceOperation, key, CategoryIdempotency, nil,
		"operation_id", key,
	)
}

// ──────────────────────────────────────────────────
// Dead letter queue hooks
// ──────────────────────────────────────────────────

// OnEntryDead implements plugin.OnEntryDead.
func (e *Extension) OnEntryDead(ctx context.Context, entry *dlq.Entry) error {
	return e.record(ctx, ActionEntryDead, SeverityCritical, OutcomeFailure,
		ResourceEntry, entry.ID, CategoryRetry, nil,
		"operation_type", entry.OperationType,
		"attempts", entry.AttemptCount,
		"last_error", entry.Error,
	)
}

// OnEntryReplayed implements plugin.OnEntryReplayed.
func (e *Extension) OnEntryReplayed(ctx context.Context, entry *dlq.Entry) error {
	return e.record(ctx, ActionEntryReplayed, SeverityInfo, OutcomeSuccess,
		ResourceEntry, entry.ID, CategoryRetry, nil,
		"operation_type", entry.OperationType,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
