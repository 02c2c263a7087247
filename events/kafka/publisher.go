// Package kafka publishes reliability lifecycle events to a Kafka topic.
//
// Register a Publisher as a core plugin to stream credit and dead letter
// events to downstream consumers (billing reconciliation, alerting).
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/EfeDurmaz16/aspendos-reliability/credit"
	"github.com/EfeDurmaz16/aspendos-reliability/dlq"
	"github.com/EfeDurmaz16/aspendos-reliability/plugin"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "reliability_events"

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Publisher)(nil)
	_ plugin.OnShutdown             = (*Publisher)(nil)
	_ plugin.OnCreditsAdded         = (*Publisher)(nil)
	_ plugin.OnReservationCommitted = (*Publisher)(nil)
	_ plugin.OnReservationExpired   = (*Publisher)(nil)
	_ plugin.OnEntryDead            = (*Publisher)(nil)
	_ plugin.OnEntryReplayed        = (*Publisher)(nil)
)

// Event is the JSON envelope written to the topic.
type Event struct {
	Type       string         `json:"type"`
	AccountKey string         `json:"account_key,omitempty"`
	ResourceID string         `json:"resource_id,omitempty"`
	Amount     string         `json:"amount,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Publisher streams lifecycle events to Kafka.
type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger for the publisher.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithTopic overrides the destination topic.
func WithTopic(topic string) Option {
	return func(p *Publisher) {
		p.writer.Topic = topic
	}
}

// NewPublisher creates a Publisher writing to the given brokers.
func NewPublisher(brokers []string, opts ...Option) *Publisher {
	p := &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    DefaultTopic,
			Balancer: &kafka.LeastBytes{},
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements plugin.Plugin.
func (p *Publisher) Name() string { return "kafka-events" }

// OnShutdown implements plugin.OnShutdown.
func (p *Publisher) OnShutdown(_ context.Context) error {
	return p.writer.Close()
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnCreditsAdded implements plugin.OnCreditsAdded.
func (p *Publisher) OnCreditsAdded(ctx context.Context, accountKey string, amount, newTotal decimal.Decimal, reason credit.Reason) error {
	return p.publish(ctx, accountKey, Event{
		Type:       "credits.added",
		AccountKey: accountKey,
		Amount:     amount.String(),
		Detail: map[string]any{
			"new_total": newTotal.String(),
			"reason":    string(reason),
		},
	})
}

// OnReservationCommitted implements plugin.OnReservationCommitted.
func (p *Publisher) OnReservationCommitted(ctx context.Context, res *credit.Reservation, newTotal decimal.Decimal) error {
	return p.publish(ctx, res.AccountKey, Event{
		Type:       "reservation.committed",
		AccountKey: res.AccountKey,
		ResourceID: res.ID.String(),
		Amount:     res.Amount.String(),
		Detail: map[string]any{
			"operation_id": res.OperationID,
			"new_total":    newTotal.String(),
		},
	})
}

// OnReservationExpired implements plugin.OnReservationExpired.
func (p *Publisher) OnReservationExpired(ctx context.Context, res *credit.Reservation) error {
	return p.publish(ctx, res.AccountKey, Event{
		Type:       "reservation.expired",
		AccountKey: res.AccountKey,
		ResourceID: res.ID.String(),
		Amount:     res.Amount.String(),
		Detail: map[string]any{
			"operation_id": res.OperationID,
		},
	})
}

// OnEntryDead implements plugin.OnEntryDead.
func (p *Publisher) OnEntryDead(ctx context.Context, e *dlq.Entry) error {
	return p.publish(ctx, e.ID, Event{
		Type:       "dlq.dead",
		ResourceID: e.ID,
		Detail: map[string]any{
			"operation_type": e.OperationType,
			"attempts":       e.AttemptCount,
			"last_error":     e.Error,
		},
	})
}

// OnEntryReplayed implements plugin.OnEntryReplayed.
func (p *Publisher) OnEntryReplayed(ctx context.Context, e *dlq.Entry) error {
	return p.publish(ctx, e.ID, Event{
		Type:       "dlq.replayed",
		ResourceID: e.ID,
		Detail: map[string]any{
			"operation_type": e.OperationType,
		},
	})
}

// publish marshals and writes a single event. Failures are logged, not
// surfaced: event delivery must never fail a credit operation.
func (p *Publisher) publish(ctx context.Context, key string, evt Event) error {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
	}); err != nil {
		p.logger.Warn("kafka: failed to publish event",
			"type", evt.Type,
			"error", err,
		)
	}
	return nil
}
