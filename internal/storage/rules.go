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
	"github.com/Veraticus/firetrack/internal/service"
	"github.com/google/uuid"
)

const ruleColumns = `
	m.id, m.pattern, m.category_id, COALESCE(c.name, ''), m.match_type,
	m.confidence, m.is_system, m.notes, m.created_at`

// ListRules returns every rule ordered by descending confidence.
func (s *SQLiteStorage) ListRules(ctx context.Context) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + ruleColumns + `
		FROM category_mappings m
		LEFT JOIN categories c ON c.id = m.category_id
		ORDER BY m.confidence DESC, m.created_at ASC`

	return s.queryRules(ctx, query)
}

// QueryRules returns rules matching filter, newest first.
func (s *SQLiteStorage) QueryRules(ctx context.Context, filter service.RuleFilter) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.IsSystem != nil {
		where = append(where, "m.is_system = ?")
		args = append(args, *filter.IsSystem)
	}
	if filter.CategoryID != "" {
		where = append(where, "m.category_id = ?")
		args = append(args, filter.CategoryID)
	}

	query := `SELECT ` + ruleColumns + `
		FROM category_mappings m
		LEFT JOIN categories c ON c.id = m.category_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY m.created_at DESC"

	return s.queryRules(ctx, query, args...)
}

// GetRule returns a single rule by id.
func (s *SQLiteStorage) GetRule(ctx context.Context, id string) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	query := `SELECT ` + ruleColumns + `
		FROM category_mappings m
		LEFT JOIN categories c ON c.id = m.category_id
		WHERE m.id = ?`

	rule, err := scanRule(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// CreateRule inserts a rule. ID and CreatedAt are filled in when empty.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO category_mappings (id, pattern, category_id, match_type, confidence, is_system, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Pattern, rule.CategoryID, string(rule.MatchType),
		rule.Confidence, rule.IsSystem, rule.Notes, rule.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("rule %s: %w", rule.ID, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}

	slog.Debug("created rule", "rule_id", rule.ID, "pattern", rule.Pattern, "match_type", rule.MatchType)
	return nil
}

// UpdateRule overwrites the mutable fields of an existing rule.
func (s *SQLiteStorage) UpdateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	if err := validateString(rule.ID, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE category_mappings
		SET pattern = ?, category_id = ?, match_type = ?, confidence = ?, notes = ?
		WHERE id = ?`,
		rule.Pattern, rule.CategoryID, string(rule.MatchType), rule.Confidence, rule.Notes, rule.ID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("rule %s: %w", rule.ID, common.ErrNotFound)
	}
	return nil
}

// DeleteRule removes a rule. System rules are refused at this layer too.
func (s *SQLiteStorage) DeleteRule(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM category_mappings WHERE id = ? AND is_system = 0`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// Distinguish a protected rule from a missing one.
	var isSystem bool
	err = s.db.QueryRowContext(ctx, `SELECT is_system FROM category_mappings WHERE id = ?`, id).Scan(&isSystem)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("rule %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check rule: %w", err)
	}
	return fmt.Errorf("rule %s: %w", id, common.ErrSystemRule)
}

// FindRulesByPattern returns rules of matchType whose pattern equals pattern, ignoring case.
func (s *SQLiteStorage) FindRulesByPattern(ctx context.Context, pattern string, matchType model.MatchType) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + ruleColumns + `
		FROM category_mappings m
		LEFT JOIN categories c ON c.id = m.category_id
		WHERE m.match_type = ? AND LOWER(TRIM(m.pattern)) = LOWER(TRIM(?))`

	return s.queryRules(ctx, query, string(matchType), pattern)
}

func (s *SQLiteStorage) queryRules(ctx context.Context, query string, args ...any) ([]model.Rule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*model.Rule, error) {
	var (
		rule      model.Rule
		matchType string
	)
	if err := row.Scan(
		&rule.ID, &rule.Pattern, &rule.CategoryID, &rule.CategoryName, &matchType,
		&rule.Confidence, &rule.IsSystem, &rule.Notes, &rule.CreatedAt,
	); err != nil {
		return nil, err
	}
	rule.MatchType = model.MatchType(matchType)
	return &rule, nil
}
