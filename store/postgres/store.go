// Package postgres provides a PostgreSQL-backed Store implementation for
// production deployments where permanent balances must survive the process.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // registers the postgres driver
	"github.com/shopspring/decimal"

	"github.com/EfeDurmaz16/aspendos-reliability/credit"
	"github.com/EfeDurmaz16/aspendos-reliability/store"
)

type Store struct {
	db *sql.DB
}

// New opens a connection pool for the given database URL and verifies
// connectivity. Call Migrate before first use.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection pool. The caller retains
// ownership of the pool; Close is still safe to call.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) LoadBalance(ctx context.Context, accountKey string) (decimal.Decimal, bool, error) {
	const query = `SELECT total FROM account_balances WHERE account_key = $1`

	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, query, accountKey).Scan(&total)
	if err == sql.ErrNoRows {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("postgres: load balance: %w", err)
	}

	return total, true, nil
}

func (s *Store) SaveBalance(ctx context.Context, accountKey string, total decimal.Decimal) error {
	const query = `INSERT INTO account_balances (account_key, total, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (account_key) DO UPDATE SET total = EXCLUDED.total, updated_at = now()`

	if _, err := s.db.ExecContext(ctx, query, accountKey, total); err != nil {
		return fmt.Errorf("postgres: save balance: %w", err)
	}

	return nil
}

func (s *Store) AppendTransaction(ctx context.Context, txn credit.Transaction) error {
	const query = `INSERT INTO credit_transactions
		(id, account_key, type, amount, operation_id, reservation_id, reason, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), $8)`

	_, err := s.db.ExecContext(ctx, query,
		txn.ID,
		txn.AccountKey,
		string(txn.Type),
		txn.Amount,
		txn.OperationID,
		txn.ReservationID,
		string(txn.Reason),
		txn.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: append transaction: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ensure Store implements the persistence interface.
var _ store.Store = (*Store)(nil)
