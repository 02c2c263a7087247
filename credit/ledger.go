// Package credit implements double-spend-free accounting of a consumable
// resource using a two-phase reserve/commit protocol: an operation
// provisionally holds funds while its side effect executes, then finalizes
// or undoes the hold based on the outcome.
package credit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/EfeDurmaz16/aspendos-reliability/id"
	"github.com/EfeDurmaz16/aspendos-reliability/keylock"
)

// DefaultReservationTTL is how long a reservation may stay active before
// the expiry sweep releases it.
const DefaultReservationTTL = 5 * time.Minute

// DefaultHistorySize is the per-account transaction window retained in memory.
const DefaultHistorySize = 256

// BalanceStore persists permanent account totals. It is the seam to the
// external durable store; the ledger remains authoritative for all in-flight
// reservation arithmetic and treats store writes as best-effort write-through.
type BalanceStore interface {
	// LoadBalance returns the durable total for an account. The boolean is
	// false when the account has never been persisted.
	LoadBalance(ctx context.Context, accountKey string) (decimal.Decimal, bool, error)

	// SaveBalance writes the permanent total for an account.
	SaveBalance(ctx context.Context, accountKey string, total decimal.Decimal) error

	// AppendTransaction records a transaction for durable audit.
	AppendTransaction(ctx context.Context, txn Transaction) error
}

// account is the per-key balance state. All fields are mutated only while
// the keyed lock for the account is held.
type account struct {
	total        decimal.Decimal
	reservations map[string]*Reservation // by reservation ID string
	byOperation  map[string]string       // operation ID -> reservation ID string
	history      *txRing
	loaded       bool // durable total fetched (or store absent)
}

// Ledger maintains per-account balances and active reservations.
type Ledger struct {
	locks  *keylock.KeyedMutex
	logger *slog.Logger
	store  BalanceStore
	now    func() time.Time

	reservationTTL time.Duration
	historySize    int

	mu       sync.RWMutex
	accounts map[string]*account
	resIndex map[string]string // reservation ID string -> account key

	statsMu sync.Mutex
	stats   Stats
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithStore sets the durable backing for permanent totals.
func WithStore(s BalanceStore) Option {
	return func(l *Ledger) { l.store = s }
}

// WithReservationTTL sets the default reservation expiry window.
func WithReservationTTL(ttl time.Duration) Option {
	return func(l *Ledger) { l.reservationTTL = ttl }
}

// WithHistorySize sets the per-account transaction window.
func WithHistorySize(n int) Option {
	return func(l *Ledger) { l.historySize = n }
}

// WithClock sets the time source. Tests use this for deterministic expiry.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates an empty Ledger.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		locks:          keylock.New(),
		logger:         slog.Default(),
		now:            time.Now,
		reservationTTL: DefaultReservationTTL,
		historySize:    DefaultHistorySize,
		accounts:       make(map[string]*account),
		resIndex:       make(map[string]string),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// ──────────────────────────────────────────────────
// Operations
// ──────────────────────────────────────────────────

// Add increases an account's total. amount must be strictly positive.
// Returns the new total. Reservations are not consulted.
func (l *Ledger) Add(ctx context.Context, accountKey string, amount decimal.Decimal, reason Reason) (decimal.Decimal, error) {
	if err := validateAmount(amount); err != nil {
		return decimal.Zero, err
	}

	var newTotal decimal.Decimal
	err := l.locks.WithLock(ctx, accountKey, func() error {
		a := l.account(accountKey)
		l.hydrate(ctx, accountKey, a)

		a.total = a.total.Add(amount)
		newTotal = a.total

		txn := l.append(a, Transaction{
			Type:       TxAdd,
			AccountKey: accountKey,
			Amount:     amount,
			Reason:     reason,
		})
		l.bumpStats(func(s *Stats) { s.TotalIssued = s.TotalIssued.Add(amount) })
		l.persist(ctx, accountKey, a.total, txn)

		return nil
	})

	return newTotal, err
}

// Reserve places a provisional hold on an account's credits. It fails with
// ErrAlreadyReserved when an active reservation with the same operation ID
// exists, and with ErrInsufficientCredits when amount exceeds the available
// balance. On failure no state is mutated. On success it returns the
// reservation and the new available balance.
func (l *Ledger) Reserve(ctx context.Context, accountKey string, amount decimal.Decimal, operationID string) (*Reservation, decimal.Decimal, error) {
	if err := validateAmount(amount); err != nil {
		return nil, decimal.Zero, err
	}
	if operationID == "" {
		return nil, decimal.Zero, &ValidationError{Field: "operationID", Message: "must not be empty"}
	}

	var (
		res       *Reservation
		available decimal.Decimal
	)
	err := l.locks.WithLock(ctx, accountKey, func() error {
		a := l.account(accountKey)
		l.hydrate(ctx, accountKey, a)

		if _, exists := a.byOperation[operationID]; exists {
			return ErrAlreadyReserved
		}
		if amount.GreaterThan(l.availableLocked(a)) {
			return ErrInsufficientCredits
		}

		now := l.now()
		r := &Reservation{
			ID:          id.NewReservationID(),
			AccountKey:  accountKey,
			Amount:      amount,
			OperationID: operationID,
			CreatedAt:   now,
			ExpiresAt:   now.Add(l.reservationTTL),
		}
		a.reservations[r.ID.String()] = r
		a.byOperation[operationID] = r.ID.String()

		l.mu.Lock()
		l.resIndex[r.ID.String()] = accountKey
		l.mu.Unlock()

		l.append(a, Transaction{
			Type:          TxReserve,
			AccountKey:    accountKey,
			Amount:        amount,
			OperationID:   operationID,
			ReservationID: r.ID,
		})
		l.bumpStats(func(s *Stats) { s.ActiveReservations++ })

		res = r.clone()
		available = l.availableLocked(a)

		return nil
	})
	if err != nil {
		return nil, decimal.Zero, err
	}

	return res, available, nil
}

// Commit finalizes a reservation, permanently deducting its amount from the
// account total. Returns the terminated reservation and the new total.
// A reservation can be committed at most once; any later Commit or Release
// with the same ID fails with ErrReservationNotFound.
func (l *Ledger) Commit(ctx context.Context, reservationID id.ReservationID) (*Reservation, decimal.Decimal, error) {
	return l.settle(ctx, reservationID, true)
}

// Release undoes a reservation, returning its amount to availability. The
// total is untouched. Releasing an already-terminated reservation fails with
// ErrReservationNotFound, which callers may treat as "already cleaned up".
func (l *Ledger) Release(ctx context.Context, reservationID id.ReservationID) (*Reservation, decimal.Decimal, error) {
	return l.settle(ctx, reservationID, false)
}

// settle terminates a reservation. commit deducts the amount permanently;
// otherwise the hold is simply dropped.
func (l *Ledger) settle(ctx context.Context, reservationID id.ReservationID, commit bool) (*Reservation, decimal.Decimal, error) {
	key := reservationID.String()

	l.mu.RLock()
	accountKey, ok := l.resIndex[key]
	l.mu.RUnlock()
	if !ok {
		return nil, decimal.Zero, ErrReservationNotFound
	}

	var (
		res      *Reservation
		newTotal decimal.Decimal
	)
	err := l.locks.WithLock(ctx, accountKey, func() error {
		a := l.account(accountKey)

		r, active := a.reservations[key]
		if !active {
			// Terminated between the index lookup and lock acquisition.
			return ErrReservationNotFound
		}

		l.dropReservation(a, r)

		txType := TxRelease
		if commit {
			txType = TxCommit
			a.total = a.total.Sub(r.Amount)
		}
		newTotal = a.total

		txn := l.append(a, Transaction{
			Type:          txType,
			AccountKey:    accountKey,
			Amount:        r.Amount,
			OperationID:   r.OperationID,
			ReservationID: r.ID,
		})
		l.bumpStats(func(s *Stats) {
			s.ActiveReservations--
			if commit {
				s.Committed++
				s.TotalConsumed = s.TotalConsumed.Add(r.Amount)
			} else {
				s.Released++
			}
		})
		if commit {
			l.persist(ctx, accountKey, a.total, txn)
		}

		res = r.clone()

		return nil
	})
	if err != nil {
		return nil, decimal.Zero, err
	}

	return res, newTotal, nil
}

// Balance returns the available balance for an account: total minus the sum
// of active reservation amounts. It is computed on read, never cached.
func (l *Ledger) Balance(ctx context.Context, accountKey string) (decimal.Decimal, error) {
	var available decimal.Decimal
	err := l.locks.WithLock(ctx, accountKey, func() error {
		a := l.account(accountKey)
		l.hydrate(ctx, accountKey, a)
		available = l.availableLocked(a)
		return nil
	})

	return available, err
}

// Total returns the permanent total for an account, ignoring reservations.
func (l *Ledger) Total(ctx context.Context, accountKey string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := l.locks.WithLock(ctx, accountKey, func() error {
		a := l.account(accountKey)
		l.hydrate(ctx, accountKey, a)
		total = a.total
		return nil
	})

	return total, err
}

// CleanupExpired releases every reservation past its expiry and returns
// them. Expired releases are recorded with ReasonExpired and counted
// separately from explicit releases.
func (l *Ledger) CleanupExpired(ctx context.Context) ([]*Reservation, error) {
	l.mu.RLock()
	keys := make([]string, 0, len(l.accounts))
	for k := range l.accounts {
		keys = append(keys, k)
	}
	l.mu.RUnlock()

	var expired []*Reservation
	for _, accountKey := range keys {
		err := l.locks.WithLock(ctx, accountKey, func() error {
			a := l.account(accountKey)
			now := l.now()

			for _, r := range a.reservations {
				if !r.Expired(now) {
					continue
				}

				l.dropReservation(a, r)
				l.append(a, Transaction{
					Type:          TxRelease,
					AccountKey:    accountKey,
					Amount:        r.Amount,
					OperationID:   r.OperationID,
					ReservationID: r.ID,
					Reason:        ReasonExpired,
				})
				l.bumpStats(func(s *Stats) {
					s.ActiveReservations--
					s.Expired++
				})
				expired = append(expired, r.clone())
			}

			return nil
		})
		if err != nil {
			return expired, err
		}
	}

	return expired, nil
}

// Transactions returns the retained transaction window for an account,
// oldest first.
func (l *Ledger) Transactions(ctx context.Context, accountKey string) ([]Transaction, error) {
	var out []Transaction
	err := l.locks.WithLock(ctx, accountKey, func() error {
		a := l.account(accountKey)
		out = a.history.list()
		return nil
	})

	return out, err
}

// Stats returns aggregate counters across all accounts.
func (l *Ledger) Stats() Stats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()

	return l.stats
}

// Reset clears all ledger state. For test isolation only.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.accounts = make(map[string]*account)
	l.resIndex = make(map[string]string)
	l.mu.Unlock()

	l.statsMu.Lock()
	l.stats = Stats{}
	l.statsMu.Unlock()
}

// ──────────────────────────────────────────────────
// Internals
// ──────────────────────────────────────────────────

func validateAmount(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return &ValidationError{Field: "amount", Message: "must be strictly positive"}
	}
	return nil
}

// account returns the state for a key, creating it if absent. The caller
// must hold the keyed lock for accountKey before touching the result's fields.
func (l *Ledger) account(accountKey string) *account {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.accounts[accountKey]
	if !ok {
		a = &account{
			reservations: make(map[string]*Reservation),
			byOperation:  make(map[string]string),
			history:      newTxRing(l.historySize),
		}
		l.accounts[accountKey] = a
	}

	return a
}

// hydrate pulls the durable total on first access. Called under the account lock.
func (l *Ledger) hydrate(ctx context.Context, accountKey string, a *account) {
	if a.loaded || l.store == nil {
		a.loaded = true
		return
	}
	a.loaded = true

	total, found, err := l.store.LoadBalance(ctx, accountKey)
	if err != nil {
		l.logger.Warn("durable balance load failed",
			"account_key", accountKey,
			"error", err,
		)
		return
	}
	if found {
		a.total = total
	}
}

// persist writes the permanent total and transaction through to the durable
// store, best-effort. Called under the account lock.
func (l *Ledger) persist(ctx context.Context, accountKey string, total decimal.Decimal, txn Transaction) {
	if l.store == nil {
		return
	}

	if err := l.store.SaveBalance(ctx, accountKey, total); err != nil {
		l.logger.Warn("durable balance write failed",
			"account_key", accountKey,
			"error", err,
		)
	}
	if err := l.store.AppendTransaction(ctx, txn); err != nil {
		l.logger.Warn("durable transaction append failed",
			"account_key", accountKey,
			"transaction_id", txn.ID.String(),
			"error", err,
		)
	}
}

// append stamps and records a transaction in the account window. Called
// under the account lock.
func (l *Ledger) append(a *account, txn Transaction) Transaction {
	txn.ID = id.NewTransactionID()
	txn.Timestamp = l.now()
	a.history.append(txn)
	return txn
}

// availableLocked computes total minus the sum of active reservations.
// Called under the account lock.
func (l *Ledger) availableLocked(a *account) decimal.Decimal {
	available := a.total
	for _, r := range a.reservations {
		available = available.Sub(r.Amount)
	}
	return available
}

// dropReservation removes a reservation from the account and the global
// index. Called under the account lock.
func (l *Ledger) dropReservation(a *account, r *Reservation) {
	delete(a.reservations, r.ID.String())
	delete(a.byOperation, r.OperationID)

	l.mu.Lock()
	delete(l.resIndex, r.ID.String())
	l.mu.Unlock()
}

func (l *Ledger) bumpStats(fn func(*Stats)) {
	l.statsMu.Lock()
	fn(&l.stats)
	l.statsMu.Unlock()
}
