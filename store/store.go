// Package store defines the durable backing interface for permanent account
// totals. The core is authoritative for all in-flight reservation state;
// implementations of Store only persist the permanent balance and an audit
// trail of finalized transactions.
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/EfeDurmaz16/aspendos-reliability/credit"
)

// Store is the durable persistence interface consumed by the core.
type Store interface {
	// LoadBalance returns the durable total for an account. The boolean is
	// false when the account has never been persisted.
	LoadBalance(ctx context.Context, accountKey string) (decimal.Decimal, bool, error)

	// SaveBalance writes the permanent total for an account.
	SaveBalance(ctx context.Context, accountKey string, total decimal.Decimal) error

	// AppendTransaction records a transaction for durable audit.
	AppendTransaction(ctx context.Context, txn credit.Transaction) error

	// Migrate prepares the backing schema. Called once on core start.
	Migrate(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
