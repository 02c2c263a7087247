package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EfeDurmaz16/aspendos-reliability/credit"
)

func TestBalanceRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, found, err := s.LoadBalance(ctx, "acct_1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SaveBalance(ctx, "acct_1", decimal.NewFromInt(42)))

	total, found, err := s.LoadBalance(ctx, "acct_1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, total.Equal(decimal.NewFromInt(42)))

	// Overwrite keeps the latest value.
	require.NoError(t, s.SaveBalance(ctx, "acct_1", decimal.NewFromInt(7)))
	total, _, err = s.LoadBalance(ctx, "acct_1")
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(7)))
}

func TestAppendTransaction(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.AppendTransaction(ctx, credit.Transaction{
		Type:       credit.TxAdd,
		AccountKey: "acct_1",
		Amount:     decimal.NewFromInt(10),
	}))
	require.NoError(t, s.AppendTransaction(ctx, credit.Transaction{
		Type:       credit.TxCommit,
		AccountKey: "acct_1",
		Amount:     decimal.NewFromInt(3),
	}))

	txns := s.Transactions()
	require.Len(t, txns, 2)
	assert.Equal(t, credit.TxAdd, txns[0].Type)
	assert.Equal(t, credit.TxCommit, txns[1].Type)
}

func TestReset(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.SaveBalance(ctx, "acct_1", decimal.NewFromInt(1)))
	require.NoError(t, s.AppendTransaction(ctx, credit.Transaction{AccountKey: "acct_1"}))

	s.Reset()

	_, found, err := s.LoadBalance(ctx, "acct_1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, s.Transactions())
}
