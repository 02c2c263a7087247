// Package observability provides a metrics extension that records lifecycle
// event counts for the reliability core via a pluggable MetricFactory.
package observability

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/EfeDurmaz16/aspendos-reliability/credit"
	"github.com/EfeDurmaz16/aspendos-reliability/dlq"
	"github.com/EfeDurmaz16/aspendos-reliability/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnCreditsAdded         = (*MetricsExtension)(nil)
	_ plugin.OnCreditsReserved      = (*MetricsExtension)(nil)
	_ plugin.OnReservationCommitted = (*MetricsExtension)(nil)
	_ plugin.OnReservationReleased  = (*MetricsExtension)(nil)
	_ plugin.OnReservationExpired   = (*MetricsExtension)(nil)
	_ plugin.OnInsufficientCredits  = (*MetricsExtension)(nil)
	_ plugin.OnIdempotencyHit       = (*MetricsExtension)(nil)
	_ plugin.OnEntryEnqueued        = (*MetricsExtension)(nil)
	_ plugin.OnEntryCompleted       = (*MetricsExtension)(nil)
	_ plugin.OnEntryFailed          = (*MetricsExtension)(nil)
	_ plugin.OnEntryDead            = (*MetricsExtension)(nil)
	_ plugin.OnEntryReplayed        = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a core plugin to automatically track reliability metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Credit metrics
	CreditsAdded          Counter
	CreditsReserved       Counter
	ReservationsCommitted Counter
	ReservationsReleased  Counter
	ReservationsExpired   Counter
	InsufficientCredits   Counter
	ReservationAmount     Histogram

	// Idempotency metrics
	IdempotencyHits Counter

	// Dead letter queue metrics
	EntriesEnqueued  Counter
	EntriesCompleted Counter
	EntriesFailed    Counter
	EntriesDead      Counter
	EntriesReplayed  Counter
	RetryAttempts    Histogram

	// Error metrics
	StoreErrors  Counter
	PluginErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Credit metrics
		CreditsAdded:          factory.Counter("reliability.credits.added"),
		CreditsReserved:       factory.Counter("reliability.credits.reserved"),
		ReservationsCommitted: factory.Counter("reliability.reservations.committed"),
		ReservationsReleased:  factory.Counter("reliability.reservations.released"),
		ReservationsExpired:   factory.Counter("reliability.reservations.expired"),
		InsufficientCredits:   factory.Counter("reliability.credits.insufficient"),
		ReservationAmount:     factory.Histogram("reliability.reservations.amount"),

		// Idempotency metrics
		IdempotencyHits: factory.Counter("reliability.idempotency.hits"),

		// Dead letter queue metrics
		EntriesEnqueued:  factory.Counter("reliability.dlq.enqueued"),
		EntriesCompleted: factory.Counter("reliability.dlq.completed"),
		EntriesFailed:    factory.Counter("reliability.dlq.failed"),
		EntriesDead:      factory.Counter("reliability.dlq.dead"),
		EntriesReplayed:  factory.Counter("reliability.dlq.replayed"),
		RetryAttempts:    factory.Histogram("reliability.dlq.attempts"),

		// Error metrics
		StoreErrors:  factory.Counter("reliability.store.errors"),
		PluginErrors: factory.Counter("reliability.plugin.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Credit lifecycle hooks
// ──────────────────────────────────────────────────

// OnCreditsAdded implements plugin.OnCreditsAdded.
func (m *MetricsExtension) OnCreditsAdded(_ context.Context, _ string, _, _ decimal.Decimal, _ credit.Reason) error {
	m.CreditsAdded.Inc()
	return nil
}

// OnCreditsReserved implements plugin.OnCreditsReserved.
func (m *MetricsExtension) OnCreditsReserved(_ context.Context, res *credit.Reservation, _ decimal.Decimal) error {
	m.CreditsReserved.Inc()
	m.ReservationAmount.Observe(res.Amount.InexactFloat64())
	return nil
}

// OnReservationCommitted implements plugin.OnReservationCommitted.
func (m *MetricsExtension) OnReservationCommitted(_ context.Context, _ *credit.Reservation, _ decimal.Decimal) error {
	m.ReservationsCommitted.Inc()
	return nil
}

// OnReservationReleased implements plugin.OnReservationReleased.
func (m *MetricsExtension) OnReservationReleased(_ context.Context, _ *credit.Reservation, _ decimal.Decimal) error {
	m.ReservationsReleased.Inc()
	return nil
}

// OnReservationExpired implements plugin.OnReservationExpired.
func (m *MetricsExtension) OnReservationExpired(_ context.Context, _ *credit.Reservation) error {
	m.ReservationsExpired.Inc()
	return nil
}

// OnInsufficientCredits implements plugin.OnInsufficientCredits.
func (m *MetricsExtension) OnInsufficientCredits(_ context.Context, _ string, _ decimal.Decimal) error {
	m.InsufficientCredits.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Idempotency hooks
// ──────────────────────────────────────────────────

// OnIdempotencyHit implements plugin.OnIdempotencyHit.
func (m *MetricsExtension) OnIdempotencyHit(_ context.Context, _ string) error {
	m.IdempotencyHits.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Dead letter queue hooks
// ──────────────────────────────────────────────────

// OnEntryEnqueued implements plugin.OnEntryEnqueued.
func (m *MetricsExtension) OnEntryEnqueued(_ context.Context, _ *dlq.Entry) error {
	m.EntriesEnqueued.Inc()
	return nil
}

// OnEntryCompleted implements plugin.OnEntryCompleted.
func (m *MetricsExtension) OnEntryCompleted(_ context.Context, _ string) error {
	m.EntriesCompleted.Inc()
	return nil
}

// OnEntryFailed implements plugin.OnEntryFailed.
func (m *MetricsExtension) OnEntryFailed(_ context.Context, e *dlq.Entry) error {
	m.EntriesFailed.Inc()
	m.RetryAttempts.Observe(float64(e.AttemptCount))
	return nil
}

// OnEntryDead implements plugin.OnEntryDead.
func (m *MetricsExtension) OnEntryDead(_ context.Context, _ *dlq.Entry) error {
	m.EntriesDead.Inc()
	return nil
}

// OnEntryReplayed implements plugin.OnEntryReplayed.
func (m *MetricsExtension) OnEntryReplayed(_ context.Context, _ *dlq.Entry) error {
	m.EntriesReplayed.Inc()
	return nil
}
