package storage

import (
	"context"
	"testing"

	"github.com/Veraticus/firetrack/internal/common"
	"github.com/Veraticus/firetrack/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveTransactions(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	groceries := categoryID(t, store, "Groceries")

	txns := []model.Transaction{
		testTransaction("t1", "TESCO STORES 1234", 0, &groceries),
		testTransaction("t2", "PRET A MANGER", 1, nil),
	}

	n, err := store.SaveTransactions(ctx, txns)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.SaveTransactions(ctx, txns)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "duplicate ids are ignored")

	recent, err := store.RecentTransactions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "t1", recent[0].ID)
	assert.Equal(t, "Groceries", recent[0].CategoryName)
	assert.True(t, recent[0].Amount.Equal(txns[0].Amount))
	assert.False(t, recent[1].IsCategorised())
}

func TestSaveTransactions_Invalid(t *testing.T) {
	store := createTestStorage(t)

	_, err := store.SaveTransactions(context.Background(), []model.Transaction{{ID: "x"}})
	require.ErrorIs(t, err, ErrInvalidTransaction)
}

func TestRecentTransactionFilters(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	groceries := categoryID(t, store, "Groceries")

	_, err := store.SaveTransactions(ctx, []model.Transaction{
		testTransaction("t1", "TESCO", 3, &groceries),
		testTransaction("t2", "UNKNOWN SHOP", 2, nil),
		testTransaction("t3", "ALDI", 1, &groceries),
	})
	require.NoError(t, err)

	categorised, err := store.RecentCategorisedTransactions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, categorised, 2)
	assert.Equal(t, "t3", categorised[0].ID)

	limited, err := store.RecentCategorisedTransactions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	uncategorised, err := store.UncategorisedTransactions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, uncategorised, 1)
	assert.Equal(t, "t2", uncategorised[0].ID)

	require.NoError(t, store.SetTransactionCategory(ctx, "t2", groceries))
	uncategorised, err = store.UncategorisedTransactions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, uncategorised)

	err = store.SetTransactionCategory(ctx, "missing", groceries)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestFindSimilarTransactions(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	groceries := categoryID(t, store, "Groceries")
	transport := categoryID(t, store, "Public Transport")

	_, err := store.SaveTransactions(ctx, []model.Transaction{
		testTransaction("t1", "TESCO STORES 1234", 2, &groceries),
		testTransaction("t2", "TESCO STORES 9876", 1, &groceries),
		testTransaction("t3", "TFL TRAVEL CH", 1, &transport),
		testTransaction("t4", "TESCO STORES 5555", 0, nil),
	})
	require.NoError(t, err)

	rows, err := store.FindSimilarTransactions(ctx, "TESCO STORES 1234", 0.3, 5)
	require.NoError(t, err)
	require.Len(t, rows, 2, "uncategorised and dissimilar rows are excluded")

	assert.Equal(t, "t1", rows[0].TransactionID)
	assert.InDelta(t, 1.0, rows[0].Similarity, 1e-9)
	assert.Equal(t, "Groceries", rows[0].CategoryName)
	assert.Greater(t, rows[0].Similarity, rows[1].Similarity)
	assert.False(t, rows[0].Date.IsZero())

	rows, err = store.FindSimilarTransactions(ctx, "TESCO STORES 1234", 0.3, 1)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
