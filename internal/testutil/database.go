// Package testutil provides test fixtures backed by an in-memory SQLite store
// migrated with the default taxonomy and system rules.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/firetrack/internal/model"
	"github.com/Veraticus/firetrack/internal/storage"
	"github.com/shopspring/decimal"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a new in-memory test database.
// It automatically handles migrations and cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	groceries := db.MustCategoryID("Groceries")
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, t: t}
}

// MustCategoryID returns the id of the seeded category called name or fails the test.
func (db *TestDB) MustCategoryID(name string) string {
	db.t.Helper()
	cat, err := db.Storage.GetCategoryByName(context.Background(), name)
	if err != nil {
		db.t.Fatalf("category %q: %v", name, err)
	}
	return cat.ID
}

// MustAddRule stores a user rule or fails the test.
func (db *TestDB) MustAddRule(pattern string, matchType model.MatchType, categoryID string, confidence float64) model.Rule {
	db.t.Helper()
	rule := &model.Rule{
		Pattern:    pattern,
		MatchType:  matchType,
		CategoryID: categoryID,
		Confidence: confidence,
	}
	if err := db.Storage.CreateRule(context.Background(), rule); err != nil {
		db.t.Fatalf("failed to add rule %q: %v", pattern, err)
	}
	return *rule
}

// TxnSpec describes a fixture transaction. An empty CategoryID leaves it uncategorised.
type TxnSpec struct {
	Description string
	CategoryID  string
	Amount      string
}

// MustAddTransactions stores transactions built from specs, newest first in the
// order given, and returns them.
func (db *TestDB) MustAddTransactions(specs ...TxnSpec) []model.Transaction {
	db.t.Helper()

	base := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	txns := make([]model.Transaction, len(specs))
	for i, spec := range specs {
		amount := spec.Amount
		if amount == "" {
			amount = "-10.00"
		}
		txns[i] = model.Transaction{
			ID:          fmt.Sprintf("txn-%03d", i+1),
			Date:        base.Add(-time.Duration(i) * time.Hour),
			Description: spec.Description,
			Amount:      decimal.RequireFromString(amount),
			AccountID:   "test-account",
		}
		if spec.CategoryID != "" {
			id := spec.CategoryID
			txns[i].CategoryID = &id
		}
	}

	if _, err := db.Storage.SaveTransactions(context.Background(), txns); err != nil {
		db.t.Fatalf("failed to add transactions: %v", err)
	}
	return txns
}
