package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Veraticus/firetrack/internal/common"
	"github.com/Veraticus/firetrack/internal/model"
	"github.com/Veraticus/firetrack/internal/service"
	"github.com/shopspring/decimal"
)

const transactionColumns = `
	t.id, t.date, t.description, t.amount, t.account_id,
	t.category_id, COALESCE(c.name, ''), COALESCE(t.import_session_id, '')`

// SaveTransactions inserts transactions, ignoring ids that already exist.
// It returns the number of rows actually inserted.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	for i := range transactions {
		if err := validateTransaction(&transactions[i]); err != nil {
			return 0, fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions (
			id, date, description, amount, account_id, category_id, import_session_id
		) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for _, txn := range transactions {
		var session *string
		if txn.ImportSessionID != "" {
			session = &txn.ImportSessionID
		}
		result, err := stmt.ExecContext(ctx,
			txn.ID, txn.Date.UTC(), txn.Description, txn.Amount.String(), txn.AccountID,
			nullString(txn.CategoryID), nullString(session))
		if err != nil {
			return 0, fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to check insert result: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transactions: %w", err)
	}

	slog.Debug("saved transactions", "requested", len(transactions), "inserted", inserted)
	return inserted, nil
}

// SetTransactionCategory assigns a category to a stored transaction.
func (s *SQLiteStorage) SetTransactionCategory(ctx context.Context, transactionID, categoryID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return err
	}
	if err := validateString(categoryID, "categoryID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET category_id = ? WHERE id = ?`, categoryID, transactionID)
	if err != nil {
		return fmt.Errorf("failed to set transaction category: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("transaction %s: %w", transactionID, common.ErrNotFound)
	}
	return nil
}

// FindSimilarTransactions runs the trigram similarity search over categorised transactions.
func (s *SQLiteStorage) FindSimilarTransactions(ctx context.Context, description string, minSimilarity float64, maxResults int) ([]service.SimilarRow, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(description, "description"); err != nil {
		return nil, err
	}
	if maxResults <= 0 {
		return nil, nil
	}

	query := `
		SELECT t.id, t.description, t.category_id, c.name,
			trigram_similarity(?, t.description) AS similarity, t.date
		FROM transactions t
		JOIN categories c ON c.id = t.category_id
		WHERE t.category_id IS NOT NULL
			AND trigram_similarity(?, t.description) >= ?
		ORDER BY similarity DESC, t.date DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, description, description, minSimilarity, maxResults)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []service.SimilarRow
	for rows.Next() {
		var r service.SimilarRow
		if err := rows.Scan(&r.TransactionID, &r.Description, &r.CategoryID, &r.CategoryName, &r.Similarity, &r.Date); err != nil {
			return nil, fmt.Errorf("failed to scan similar transaction: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating similar transactions: %w", err)
	}
	return results, nil
}

// RecentCategorisedTransactions returns up to limit categorised transactions, newest first.
func (s *SQLiteStorage) RecentCategorisedTransactions(ctx context.Context, limit int) ([]model.Transaction, error) {
	return s.recentTransactions(ctx, "t.category_id IS NOT NULL", limit)
}

// RecentTransactions returns up to limit transactions, newest first.
func (s *SQLiteStorage) RecentTransactions(ctx context.Context, limit int) ([]model.Transaction, error) {
	return s.recentTransactions(ctx, "", limit)
}

// UncategorisedTransactions returns up to limit transactions without a category, newest first.
func (s *SQLiteStorage) UncategorisedTransactions(ctx context.Context, limit int) ([]model.Transaction, error) {
	return s.recentTransactions(ctx, "t.category_id IS NULL", limit)
}

func (s *SQLiteStorage) recentTransactions(ctx context.Context, where string, limit int) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	query := `SELECT ` + transactionColumns + `
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id`
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY t.date DESC, t.id LIMIT ?"

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

func scanTransaction(row rowScanner) (model.Transaction, error) {
	var (
		txn        model.Transaction
		amount     string
		categoryID sql.NullString
	)
	if err := row.Scan(
		&txn.ID, &txn.Date, &txn.Description, &amount, &txn.AccountID,
		&categoryID, &txn.CategoryName, &txn.ImportSessionID,
	); err != nil {
		return txn, fmt.Errorf("failed to scan transaction: %w", err)
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return txn, fmt.Errorf("transaction %s has invalid amount %q: %w", txn.ID, amount, err)
	}
	txn.Amount = parsed
	txn.CategoryID = stringPtr(categoryID)
	return txn, nil
}
