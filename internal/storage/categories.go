package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/firetrack/internal/common"
	"github.com/Veraticus/firetrack/internal/model"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

const categoryColumns = `SELECT id, name, group_name, is_income, created_at FROM categories`

func scanCategoryRow(r rowScanner) (model.Category, error) {
	var c model.Category
	err := r.Scan(&c.ID, &c.Name, &c.GroupName, &c.IsIncome, &c.CreatedAt)
	return c, err
}

// GetCategories returns the whole taxonomy ordered by group and name.
func (s *SQLiteStorage) GetCategories(ctx context.Context) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, categoryColumns+` ORDER BY group_name, name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var taxonomy []model.Category
	for rows.Next() {
		c, err := scanCategoryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("read category row: %w", err)
		}
		taxonomy = append(taxonomy, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return taxonomy, nil
}

// GetCategory returns a category by id.
func (s *SQLiteStorage) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	return s.findCategory(ctx, `WHERE id = ?`, id)
}

// GetCategoryByName returns a category by name, ignoring case.
func (s *SQLiteStorage) GetCategoryByName(ctx context.Context, name string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	return s.findCategory(ctx, `WHERE LOWER(name) = LOWER(?)`, strings.TrimSpace(name))
}

func (s *SQLiteStorage) findCategory(ctx context.Context, where string, arg any) (*model.Category, error) {
	c, err := scanCategoryRow(s.db.QueryRowContext(ctx, categoryColumns+" "+where, arg))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, common.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("look up category: %w", err)
	}
	return &c, nil
}

// CreateCategory inserts a category. An empty ID is filled with a new uuid.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, category *model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if category == nil {
		return fmt.Errorf("%w: category", ErrNilParameter)
	}
	if err := validateString(category.Name, "name"); err != nil {
		return err
	}

	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, group_name, is_income, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		category.ID, strings.TrimSpace(category.Name), category.GroupName, category.IsIncome, category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("category %q: %w", category.Name, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create category: %w", err)
	}

	slog.Info("created category", "name", category.Name, "group", category.GroupName)
	return nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
