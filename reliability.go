package reliability

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/EfeDurmaz16/aspendos-reliability/credit"
	"github.com/EfeDurmaz16/aspendos-reliability/dlq"
	"github.com/EfeDurmaz16/aspendos-reliability/id"
	"github.com/EfeDurmaz16/aspendos-reliability/idempotency"
	"github.com/EfeDurmaz16/aspendos-reliability/plugin"
	"github.com/EfeDurmaz16/aspendos-reliability/store"
)

// DefaultSweepInterval is how often the janitor releases expired
// reservations and purges stale idempotency records.
const DefaultSweepInterval = time.Minute

// Core is the main reliability engine. It combines per-account locking,
// a reserve/commit/release credit ledger, an idempotency cache, and a
// dead letter queue behind a single lifecycle.
type Core struct {
	ledger  *credit.Ledger
	idem    *idempotency.Store
	queue   *dlq.Queue
	plugins *plugin.Registry
	store   store.Store
	logger  *slog.Logger

	// Background workers
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Configuration
	sweepInterval  time.Duration
	reservationTTL time.Duration
	historySize    int
	idemCapacity   int
	idemTTL        time.Duration
	maxRetries     int
	baseDelay      time.Duration
	maxBackoff     time.Duration
	now            func() time.Time
}

// New creates a new Core instance. Without WithStore the ledger is purely
// in-memory.
func New(opts ...Option) *Core {
	c := &Core{
		plugins:        plugin.NewRegistry(),
		logger:         slog.Default(),
		stopChan:       make(chan struct{}),
		sweepInterval:  DefaultSweepInterval,
		reservationTTL: credit.DefaultReservationTTL,
		historySize:    credit.DefaultHistorySize,
		idemCapacity:   idempotency.DefaultCapacity,
		idemTTL:        idempotency.DefaultTTL,
		maxRetries:     dlq.DefaultMaxRetries,
		baseDelay:      dlq.DefaultBaseDelay,
		maxBackoff:     dlq.DefaultMaxBackoff,
	}

	for _, opt := range opts {
		opt(c)
	}

	ledgerOpts := []credit.Option{
		credit.WithLogger(c.logger),
		credit.WithReservationTTL(c.reservationTTL),
		credit.WithHistorySize(c.historySize),
	}
	idemOpts := []idempotency.Option{
		idempotency.WithCapacity(c.idemCapacity),
		idempotency.WithDefaultTTL(c.idemTTL),
	}
	queueOpts := []dlq.Option{
		dlq.WithDefaultMaxRetries(c.maxRetries),
		dlq.WithBaseDelay(c.baseDelay),
		dlq.WithMaxBackoff(c.maxBackoff),
	}
	if c.store != nil {
		ledgerOpts = append(ledgerOpts, credit.WithStore(c.store))
	}
	if c.now != nil {
		ledgerOpts = append(ledgerOpts, credit.WithClock(c.now))
		idemOpts = append(idemOpts, idempotency.WithClock(c.now))
		queueOpts = append(queueOpts, dlq.WithClock(c.now))
	}

	c.ledger = credit.NewLedger(ledgerOpts...)
	c.idem = idempotency.NewStore(idemOpts...)
	c.queue = dlq.NewQueue(queueOpts...)

	return c
}

// Option configures a Core instance.
type Option func(*Core)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Core) {
		c.logger = logger
		c.plugins.WithLogger(logger)
	}
}

// WithStore sets a durable backing store for balances and the audit trail.
func WithStore(s store.Store) Option {
	return func(c *Core) {
		c.store = s
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(c *Core) {
		_ = c.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithSweepInterval sets how often expired reservations are released.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Core) {
		c.sweepInterval = d
	}
}

// WithReservationTTL sets the lifetime of uncommitted reservations.
func WithReservationTTL(ttl time.Duration) Option {
	return func(c *Core) {
		c.reservationTTL = ttl
	}
}

// WithHistorySize sets how many transactions are retained per account.
func WithHistorySize(n int) Option {
	return func(c *Core) {
		c.historySize = n
	}
}

// WithIdempotencyConfig configures the idempotency cache.
func WithIdempotencyConfig(capacity int, ttl time.Duration) Option {
	return func(c *Core) {
		c.idemCapacity = capacity
		c.idemTTL = ttl
	}
}

// WithRetryPolicy configures dead letter queue retry behavior.
func WithRetryPolicy(maxRetries int, baseDelay, maxBackoff time.Duration) Option {
	return func(c *Core) {
		c.maxRetries = maxRetries
		c.baseDelay = baseDelay
		c.maxBackoff = maxBackoff
	}
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(c *Core) {
		c.now = now
	}
}

// Start begins background workers.
func (c *Core) Start(ctx context.Context) error {
	// Migrate database
	if c.store != nil {
		if err := c.store.Migrate(ctx); err != nil {
			return err
		}
	}

	// Initialize plugins
	c.plugins.EmitInit(ctx, c)

	// Start janitor worker
	c.wg.Add(1)
	go c.janitor(ctx)

	c.logger.Info("reliability core started",
		"sweep_interval", c.sweepInterval,
		"reservation_ttl", c.reservationTTL,
		"max_retries", c.maxRetries,
	)

	return nil
}

// Stop shuts down the Core.
func (c *Core) Stop() error {
	close(c.stopChan)
	c.wg.Wait()

	ctx := context.Background()
	c.plugins.EmitShutdown(ctx)

	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Credit Ledger
// ──────────────────────────────────────────────────

// AddCredits adds credits to an account and returns the new total.
func (c *Core) AddCredits(ctx context.Context, accountKey string, amount decimal.Decimal, reason credit.Reason) (decimal.Decimal, error) {
	newTotal, err := c.ledger.Add(ctx, accountKey, amount, reason)
	if err != nil {
		return decimal.Zero, err
	}

	c.plugins.EmitCreditsAdded(ctx, accountKey, amount, newTotal, reason)
	return newTotal, nil
}

// ReserveCredits places a hold on an account's available balance. The
// operationID deduplicates retried requests: a second reserve with the
// same operationID fails with ErrAlreadyReserved until the first
// reservation settles.
func (c *Core) ReserveCredits(ctx context.Context, accountKey string, amount decimal.Decimal, operationID string) (*credit.Reservation, error) {
	res, available, err := c.ledger.Reserve(ctx, accountKey, amount, operationID)
	if err != nil {
		if errors.Is(err, credit.ErrInsufficientCredits) {
			c.plugins.EmitInsufficientCredits(ctx, accountKey, amount)
		}
		return nil, err
	}

	c.plugins.EmitCreditsReserved(ctx, res, available)
	return res, nil
}

// CommitCredits finalizes a reservation, deducting its amount from the
// account total. Returns the new total.
func (c *Core) CommitCredits(ctx context.Context, reservationID id.ReservationID) (decimal.Decimal, error) {
	res, newTotal, err := c.ledger.Commit(ctx, reservationID)
	if err != nil {
		return decimal.Zero, err
	}

	c.plugins.EmitReservationCommitted(ctx, res, newTotal)
	return newTotal, nil
}

// ReleaseCredits cancels a reservation, returning the held amount to the
// available balance. Returns the account total, which is unchanged.
func (c *Core) ReleaseCredits(ctx context.Context, reservationID id.ReservationID) (decimal.Decimal, error) {
	res, total, err := c.ledger.Release(ctx, reservationID)
	if err != nil {
		if errors.Is(err, credit.ErrReservationNotFound) {
			c.logger.Debug("release of unknown or settled reservation",
				"reservation_id", reservationID,
			)
		}
		return decimal.Zero, err
	}

	c.plugins.EmitReservationReleased(ctx, res, total)
	return total, nil
}

// Balance returns the available balance (total minus active holds).
func (c *Core) Balance(ctx context.Context, accountKey string) (decimal.Decimal, error) {
	return c.ledger.Balance(ctx, accountKey)
}

// Total returns the account total, ignoring holds.
func (c *Core) Total(ctx context.Context, accountKey string) (decimal.Decimal, error) {
	return c.ledger.Total(ctx, accountKey)
}

// Transactions returns the retained transaction history for an account,
// oldest first.
func (c *Core) Transactions(ctx context.Context, accountKey string) ([]credit.Transaction, error) {
	return c.ledger.Transactions(ctx, accountKey)
}

// CreditStats returns ledger-wide counters.
func (c *Core) CreditStats() credit.Stats {
	return c.ledger.Stats()
}

// ──────────────────────────────────────────────────
// Idempotency
// ──────────────────────────────────────────────────

// CheckIdempotency returns the recorded result for an operation key, if any.
func (c *Core) CheckIdempotency(ctx context.Context, key string) (any, bool) {
	value, ok := c.idem.Check(key)
	if ok {
		c.plugins.EmitIdempotencyHit(ctx, key)
	}
	return value, ok
}

// RecordIdempotency stores an operation result under the default TTL.
func (c *Core) RecordIdempotency(key string, value any) {
	c.idem.Record(key, value)
}

// RecordIdempotencyTTL stores an operation result with an explicit TTL.
func (c *Core) RecordIdempotencyTTL(key string, value any, ttl time.Duration) {
	c.idem.RecordTTL(key, value, ttl)
}

// Execute runs fn at most once per key. A cached result is returned
// without re-executing; failed executions are not cached, so retries
// re-run fn.
func (c *Core) Execute(ctx context.Context, key string, fn func() (any, error)) (any, error) {
	if value, ok := c.idem.Check(key); ok {
		c.plugins.EmitIdempotencyHit(ctx, key)
		return value, nil
	}

	value, err := fn()
	if err != nil {
		return nil, err
	}

	c.idem.Record(key, value)
	return value, nil
}

// IdempotencyStats returns cache counters.
func (c *Core) IdempotencyStats() idempotency.Stats {
	return c.idem.Stats()
}

// ──────────────────────────────────────────────────
// Dead Letter Queue
// ──────────────────────────────────────────────────

// Enqueue records a failed side effect for later retry.
func (c *Core) Enqueue(ctx context.Context, e dlq.Entry) *dlq.Entry {
	entry := c.queue.Enqueue(e)

	c.plugins.EmitEntryEnqueued(ctx, entry)
	c.logger.Debug("entry enqueued",
		"entry_id", entry.ID,
		"operation_type", entry.OperationType,
		"next_retry_at", entry.NextRetryAt,
	)
	return entry
}

// Dequeue claims up to batchSize due entries for processing.
func (c *Core) Dequeue(batchSize int) []*dlq.Entry {
	return c.queue.Dequeue(batchSize)
}

// MarkCompleted removes a successfully retried entry.
func (c *Core) MarkCompleted(ctx context.Context, entryID string) bool {
	ok := c.queue.MarkCompleted(entryID)
	if ok {
		c.plugins.EmitEntryCompleted(ctx, entryID)
	}
	return ok
}

// MarkFailed records a failed retry attempt. Entries that exhaust their
// retry budget transition to the dead state and stay queued for operator
// inspection.
func (c *Core) MarkFailed(ctx context.Context, entryID, errorMessage string) (*dlq.Entry, error) {
	entry, err := c.queue.MarkFailed(entryID, errorMessage)
	if err != nil {
		return nil, err
	}

	c.plugins.EmitEntryFailed(ctx, entry)
	if entry.State == dlq.StateDead {
		c.logger.Error("entry exhausted retries",
			"entry_id", entry.ID,
			"operation_type", entry.OperationType,
			"attempts", entry.AttemptCount,
			"last_error", entry.Error,
		)
		c.plugins.EmitEntryDead(ctx, entry)
	}
	return entry, nil
}

// DeadEntries returns all entries that exhausted their retries.
func (c *Core) DeadEntries() []*dlq.Entry {
	return c.queue.Dead()
}

// ReplayDead resets a dead entry for a fresh round of retries.
func (c *Core) ReplayDead(ctx context.Context, entryID string) (*dlq.Entry, error) {
	entry, err := c.queue.ReplayDead(entryID)
	if err != nil {
		return nil, err
	}

	c.plugins.EmitEntryReplayed(ctx, entry)
	c.logger.Info("dead entry replayed",
		"entry_id", entry.ID,
		"operation_type", entry.OperationType,
	)
	return entry, nil
}

// PurgeDead removes dead entries older than maxAge and returns the count.
func (c *Core) PurgeDead(maxAge time.Duration) int {
	return c.queue.PurgeOlderThan(maxAge)
}

// QueueStats returns dead letter queue counters.
func (c *Core) QueueStats() dlq.Stats {
	return c.queue.Stats()
}

// ──────────────────────────────────────────────────
// Maintenance
// ──────────────────────────────────────────────────

// Sweep releases expired reservations and purges stale idempotency
// records. The janitor calls this on a timer; it is exported so tests
// and callers with their own schedulers can trigger it directly.
func (c *Core) Sweep(ctx context.Context) (int, error) {
	expired, err := c.ledger.CleanupExpired(ctx)
	if err != nil {
		return 0, err
	}

	for _, res := range expired {
		c.logger.Warn("reservation expired",
			"reservation_id", res.ID,
			"account_key", res.AccountKey,
			"amount", res.Amount,
			"operation_id", res.OperationID,
		)
		c.plugins.EmitReservationExpired(ctx, res)
	}

	purged := c.idem.PurgeExpired()
	if len(expired) > 0 || purged > 0 {
		c.logger.Debug("sweep completed",
			"expired_reservations", len(expired),
			"purged_idempotency_records", purged,
		)
	}

	return len(expired), nil
}

// Reset clears all in-memory state. Used in tests.
func (c *Core) Reset() {
	c.ledger.Reset()
	c.idem.Reset()
	c.queue.Reset()
}

// janitor periodically sweeps expired state until Stop is called.
func (c *Core) janitor(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			if _, err := c.Sweep(ctx); err != nil {
				c.logger.Error("sweep failed", "error", err)
			}
		}
	}
}
