package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

// seedCategory is a taxonomy entry installed by the seed migration.
type seedCategory struct {
	group    string
	name     string
	isIncome bool
}

var defaultCategories = []seedCategory{
	{group: "Income", name: "Salary", isIncome: true},
	{group: "Income", name: "Interest", isIncome: true},
	{group: "Income", name: "Refunds", isIncome: true},
	{group: "Income", name: "Other Income", isIncome: true},
	{group: "Bills", name: "Rent & Mortgage"},
	{group: "Bills", name: "Utilities"},
	{group: "Bills", name: "Council Tax"},
	{group: "Bills", name: "Phone & Internet"},
	{group: "Bills", name: "Insurance"},
	{group: "Food", name: "Groceries"},
	{group: "Food", name: "Eating Out"},
	{group: "Food", name: "Takeaway"},
	{group: "Transport", name: "Public Transport"},
	{group: "Transport", name: "Fuel"},
	{group: "Transport", name: "Car Maintenance"},
	{group: "Transport", name: "Taxis"},
	{group: "Lifestyle", name: "Entertainment"},
	{group: "Lifestyle", name: "Subscriptions"},
	{group: "Lifestyle", name: "Shopping"},
	{group: "Lifestyle", name: "Health & Fitness"},
	{group: "Lifestyle", name: "Personal Care"},
	{group: "Lifestyle", name: "Holidays"},
	{group: "Lifestyle", name: "Gifts"},
	{group: "Finance", name: "Savings & Investments"},
	{group: "Finance", name: "Transfers"},
	{group: "Finance", name: "Cash"},
	{group: "Finance", name: "Bank Fees"},
	{group: "Finance", name: "Taxes"},
	{group: "Other", name: "Charity"},
	{group: "Other", name: "Education"},
	{group: "Other", name: "Childcare"},
	{group: "Other", name: "Pets"},
	{group: "Other", name: "Miscellaneous"},
}

// seedRule is a protected rule installed by the system rules migration.
type seedRule struct {
	pattern    string
	category   string
	matchType  string
	confidence float64
}

var systemRules = []seedRule{
	{pattern: "tfl travel ch", category: "Public Transport", matchType: "contains", confidence: 0.95},
	{pattern: "hmrc", category: "Taxes", matchType: "contains", confidence: 0.9},
	{pattern: "cash withdrawal", category: "Cash", matchType: "contains", confidence: 0.95},
	{pattern: "interest paid", category: "Interest", matchType: "contains", confidence: 0.9},
	{pattern: `^(overdraft|unarranged od) (fee|charge)`, category: "Bank Fees", matchType: "regex", confidence: 0.9},
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS categories (
					id TEXT PRIMARY KEY,
					name TEXT UNIQUE NOT NULL,
					group_name TEXT NOT NULL DEFAULT '',
					is_income BOOLEAN NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE TABLE IF NOT EXISTS category_mappings (
					id TEXT PRIMARY KEY,
					pattern TEXT NOT NULL,
					category_id TEXT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
					match_type TEXT NOT NULL CHECK (match_type IN ('exact', 'contains', 'regex')),
					confidence REAL NOT NULL DEFAULT 1.0 CHECK (confidence >= 0 AND confidence <= 1),
					is_system BOOLEAN NOT NULL DEFAULT 0,
					notes TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_category_mappings_confidence ON category_mappings(confidence DESC)`,
				`CREATE INDEX idx_category_mappings_category ON category_mappings(category_id)`,
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					date DATETIME NOT NULL,
					description TEXT NOT NULL,
					amount TEXT NOT NULL,
					account_id TEXT NOT NULL DEFAULT '',
					category_id TEXT REFERENCES categories(id) ON DELETE SET NULL,
					import_session_id TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_date ON transactions(date DESC)`,
				`CREATE INDEX idx_transactions_category ON transactions(category_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add AI usage tracking and categorisation corrections",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS ai_usage_tracking (
					usage_date TEXT NOT NULL,
					usage_type TEXT NOT NULL,
					count INTEGER NOT NULL DEFAULT 0,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (usage_date, usage_type)
				)`,
				`CREATE TABLE IF NOT EXISTS categorisation_corrections (
					id TEXT PRIMARY KEY,
					description TEXT NOT NULL,
					normalized_description TEXT NOT NULL,
					original_category_id TEXT,
					corrected_category_id TEXT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
					original_source TEXT NOT NULL,
					import_session_id TEXT,
					processed BOOLEAN NOT NULL DEFAULT 0,
					rule_id TEXT REFERENCES category_mappings(id) ON DELETE SET NULL,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_corrections_unprocessed ON categorisation_corrections(processed, normalized_description, corrected_category_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Seed default categories",
		Up: func(tx *sql.Tx) error {
			stmt, err := tx.Prepare(`INSERT OR IGNORE INTO categories (id, name, group_name, is_income) VALUES (?, ?, ?, ?)`)
			if err != nil {
				return fmt.Errorf("failed to prepare category seed: %w", err)
			}
			defer func() { _ = stmt.Close() }()

			for _, c := range defaultCategories {
				if _, err := stmt.Exec(uuid.NewString(), c.name, c.group, c.isIncome); err != nil {
					return fmt.Errorf("failed to seed category %q: %w", c.name, err)
				}
			}
			return nil
		},
	},
	{
		Version:     4,
		Description: "Seed system rules",
		Up: func(tx *sql.Tx) error {
			now := time.Now().UTC()
			for _, r := range systemRules {
				_, err := tx.Exec(`
					INSERT INTO category_mappings (id, pattern, category_id, match_type, confidence, is_system, notes, created_at)
					SELECT ?, ?, id, ?, ?, 1, 'built-in', ? FROM categories WHERE name = ?`,
					uuid.NewString(), r.pattern, r.matchType, r.confidence, now, r.category)
				if err != nil {
					return fmt.Errorf("failed to seed system rule %q: %w", r.pattern, err)
				}
			}
			return nil
		},
	},
}

// Migrate brings the schema up to ExpectedSchemaVersion.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Debug("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
