package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/EfeDurmaz16/aspendos-reliability/credit"
	"github.com/EfeDurmaz16/aspendos-reliability/dlq"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                 []OnInit
	onShutdown             []OnShutdown
	onCreditsAdded         []OnCreditsAdded
	onCreditsReserved      []OnCreditsReserved
	onReservationCommitted []OnReservationCommitted
	onReservationReleased  []OnReservationReleased
	onReservationExpired   []OnReservationExpired
	onInsufficientCredits  []OnInsufficientCredits
	onIdempotencyHit       []OnIdempotencyHit
	onEntryEnqueued        []OnEntryEnqueued
	onEntryCompleted       []OnEntryCompleted
	onEntryFailed          []OnEntryFailed
	onEntryDead            []OnEntryDead
	onEntryReplayed        []OnEntryReplayed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnCreditsAdded); ok {
		r.onCreditsAdded = append(r.onCreditsAdded, v)
	}
	if v, ok := p.(OnCreditsReserved); ok {
		r.onCreditsReserved = append(r.onCreditsReserved, v)
	}
	if v, ok := p.(OnReservationCommitted); ok {
		r.onReservationCommitted = append(r.onReservationCommitted, v)
	}
	if v, ok := p.(OnReservationReleased); ok {
		r.onReservationReleased = append(r.onReservationReleased, v)
	}
	if v, ok := p.(OnReservationExpired); ok {
		r.onReservationExpired = append(r.onReservationExpired, v)
	}
	if v, ok := p.(OnInsufficientCredits); ok {
		r.onInsufficientCredits = append(r.onInsufficientCredits, v)
	}
	if v, ok := p.(OnIdempotencyHit); ok {
		r.onIdempotencyHit = append(r.onIdempotencyHit, v)
	}
	if v, ok := p.(OnEntryEnqueued); ok {
		r.onEntryEnqueued = append(r.onEntryEnqueued, v)
	}
	if v, ok := p.(OnEntryCompleted); ok {
		r.onEntryCompleted = append(r.onEntryCompleted, v)
	}
	if v, ok := p.(OnEntryFailed); ok {
		r.onEntryFailed = append(r.onEntryFailed, v)
	}
	if v, ok := p.(OnEntryDead); ok {
		r.onEntryDead = append(r.onEntryDead, v)
	}
	if v, ok := p.(OnEntryReplayed); ok {
		r.onEntryReplayed = append(r.onEntryReplayed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	// List all interfaces to check
	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnCreditsAdded)(nil)).Elem(), "OnCreditsAdded")
	checkInterface(reflect.TypeOf((*OnCreditsReserved)(nil)).Elem(), "OnCreditsReserved")
	checkInterface(reflect.TypeOf((*OnReservationCommitted)(nil)).Elem(), "OnReservationCommitted")
	checkInterface(reflect.TypeOf((*OnReservationReleased)(nil)).Elem(), "OnReservationReleased")
	checkInterface(reflect.TypeOf((*OnReservationExpired)(nil)).Elem(), "OnReservationExpired")
	checkInterface(reflect.TypeOf((*OnInsufficientCredits)(nil)).Elem(), "OnInsufficientCredits")
	checkInterface(reflect.TypeOf((*OnIdempotencyHit)(nil)).Elem(), "OnIdempotencyHit")
	checkInterface(reflect.TypeOf((*OnEntryEnqueued)(nil)).Elem(), "OnEntryEnqueued")
	checkInterface(reflect.TypeOf((*OnEntryCompleted)(nil)).Elem(), "OnEntryCompleted")
	checkInterface(reflect.TypeOf((*OnEntryFailed)(nil)).Elem(), "OnEntryFailed")
	checkInterface(reflect.TypeOf((*OnEntryDead)(nil)).Elem(), "OnEntryDead")
	checkInterface(reflect.TypeOf((*OnEntryReplayed)(nil)).Elem(), "OnEntryReplayed")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, core interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, core)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCreditsAdded emits a credits added event.
func (r *Registry) EmitCreditsAdded(ctx context.Context, accountKey string, amount, newTotal decimal.Decimal, reason credit.Reason) {
	r.mu.RLock()
	plugins := r.onCreditsAdded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCreditsAdded(ctx, accountKey, amount, newTotal, reason)
		}); err != nil {
			r.logger.Warn("plugin OnCreditsAdded failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCreditsReserved emits a credits reserved event.
func (r *Registry) EmitCreditsReserved(ctx context.Context, res *credit.Reservation, available decimal.Decimal) {
	r.mu.RLock()
	plugins := r.onCreditsReserved
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCreditsReserved(ctx, res, available)
		}); err != nil {
			r.logger.Warn("plugin OnCreditsReserved failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitReservationCommitted emits a reservation committed event.
func (r *Registry) EmitReservationCommitted(ctx context.Context, res *credit.Reservation, newTotal decimal.Decimal) {
	r.mu.RLock()
	plugins := r.onReservationCommitted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnReservationCommitted(ctx, res, newTotal)
		}); err != nil {
			r.logger.Warn("plugin OnReservationCommitted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitReservationReleased emits a reservation released event.
func (r *Registry) EmitReservationReleased(ctx context.Context, res *credit.Reservation, newTotal decimal.Decimal) {
	r.mu.RLock()
	plugins := r.onReservationReleased
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnReservationReleased(ctx, res, newTotal)
		}); err != nil {
			r.logger.Warn("plugin OnReservationReleased failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitReservationExpired emits a reservation expired event.
func (r *Registry) EmitReservationExpired(ctx context.Context, res *credit.Reservation) {
	r.mu.RLock()
	plugins := r.onReservationExpired
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnReservationExpired(ctx, res)
		}); err != nil {
			r.logger.Warn("plugin OnReservationExpired failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInsufficientCredits emits an insufficient credits event.
func (r *Registry) EmitInsufficientCredits(ctx context.Context, accountKey string, requested decimal.Decimal) {
	r.mu.RLock()
	plugins := r.onInsufficientCredits
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInsufficientCredits(ctx, accountKey, requested)
		}); err != nil {
			r.logger.Warn("plugin OnInsufficientCredits failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitIdempotencyHit emits an idempotency cache hit event.
func (r *Registry) EmitIdempotencyHit(ctx context.Context, key string) {
	r.mu.RLock()
	plugins := r.onIdempotencyHit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnIdempotencyHit(ctx, key)
		}); err != nil {
			r.logger.Warn("plugin OnIdempotencyHit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitEntryEnqueued emits an entry enqueued event.
func (r *Registry) EmitEntryEnqueued(ctx context.Context, e *dlq.Entry) {
	r.mu.RLock()
	plugins := r.onEntryEnqueued
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEntryEnqueued(ctx, e)
		}); err != nil {
			r.logger.Warn("plugin OnEntryEnqueued failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitEntryCompleted emits an entry completed event.
func (r *Registry) EmitEntryCompleted(ctx context.Context, entryID string) {
	r.mu.RLock()
	plugins := r.onEntryCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEntryCompleted(ctx, entryID)
		}); err != nil {
			r.logger.Warn("plugin OnEntryCompleted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitEntryFailed emits an entry failed event.
func (r *Registry) EmitEntryFailed(ctx context.Context, e *dlq.Entry) {
	r.mu.RLock()
	plugins := r.onEntryFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEntryFailed(ctx, e)
		}); err != nil {
			r.logger.Warn("plugin OnEntryFailed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitEntryDead emits an entry dead event.
func (r *Registry) EmitEntryDead(ctx context.Context, e *dlq.Entry) {
	r.mu.RLock()
	plugins := r.onEntryDead
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEntryDead(ctx, e)
		}); err != nil {
			r.logger.Warn("plugin OnEntryDead failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitEntryReplayed emits an entry replayed event.
func (r *Registry) EmitEntryReplayed(ctx context.Context, e *dlq.Entry) {
	r.mu.RLock()
	plugins := r.onEntryReplayed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEntryReplayed(ctx, e)
		}); err != nil {
			r.logger.Warn("plugin OnEntryReplayed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the reservation pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
