// Package memory provides an in-memory Store implementation, used as the
// default backing and in tests. State does not survive the process.
package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/EfeDurmaz16/aspendos-reliability/credit"
	"github.com/EfeDurmaz16/aspendos-reliability/store"
)

type Store struct {
	mu       sync.RWMutex
	balances map[string]decimal.Decimal
	txns     []credit.Transaction
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		balances: make(map[string]decimal.Decimal),
	}
}

func (s *Store) LoadBalance(_ context.Context, accountKey string) (decimal.Decimal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total, ok := s.balances[accountKey]
	return total, ok, nil
}

func (s *Store) SaveBalance(_ context.Context, accountKey string, total decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances[accountKey] = total
	return nil
}

func (s *Store) AppendTransaction(_ context.Context, txn credit.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.txns = append(s.txns, txn)
	return nil
}

// Transactions returns all recorded transactions, for tests and inspection.
func (s *Store) Transactions() []credit.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]credit.Transaction, len(s.txns))
	copy(out, s.txns)
	return out
}

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Reset clears all state. For test isolation only.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances = make(map[string]decimal.Decimal)
	s.txns = nil
}

// Ensure Store implements the persistence interface.
var _ store.Store = (*Store)(nil)
