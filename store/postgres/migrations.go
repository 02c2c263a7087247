package postgres

import (
	"context"
	"fmt"
)

// migrations are applied in order on Migrate. Each statement is idempotent
// so repeated starts are safe without a version table.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS account_balances (
		account_key TEXT PRIMARY KEY,
		total       NUMERIC NOT NULL DEFAULT 0,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS credit_transactions (
		id             TEXT PRIMARY KEY,
		account_key    TEXT NOT NULL,
		type           TEXT NOT NULL,
		amount         NUMERIC NOT NULL,
		operation_id   TEXT,
		reservation_id TEXT,
		reason         TEXT,
		created_at     TIMESTAMPTZ NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_credit_transactions_account
		ON credit_transactions (account_key, created_at)`,
}

// Migrate applies the schema.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migration %d failed: %w", i, err)
		}
	}

	return nil
}
