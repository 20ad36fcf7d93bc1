package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/firetrack/internal/model"
	"github.com/google/uuid"
)

const correctionColumns = `
	id, description, original_category_id, corrected_category_id, original_source,
	import_session_id, processed, rule_id, created_at`

// SaveCorrections stores corrections atomically. IDs and timestamps are filled in when empty.
func (s *SQLiteStorage) SaveCorrections(ctx context.Context, corrections []*model.Correction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	for i, c := range corrections {
		if err := validateCorrection(c); err != nil {
			return fmt.Errorf("correction at index %d: %w", i, err)
		}
	}
	if len(corrections) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO categorisation_corrections (
			id, description, normalized_description, original_category_id, corrected_category_id,
			original_source, import_session_id, processed, rule_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, c := range corrections {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		if c.OriginalSource == "" {
			c.OriginalSource = model.SourceNone
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.Description, model.NormalizeDescription(c.Description),
			nullString(c.OriginalCategoryID), c.CorrectedCategoryID, string(c.OriginalSource),
			nullString(c.ImportSessionID), c.Processed, nullString(c.RuleID), c.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert correction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit corrections: %w", err)
	}
	return nil
}

// GetCorrectionsByDescription returns every correction recorded for description, newest first.
func (s *SQLiteStorage) GetCorrectionsByDescription(ctx context.Context, description string) ([]model.Correction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(description, "description"); err != nil {
		return nil, err
	}

	return s.queryCorrections(ctx, `SELECT `+correctionColumns+`
		FROM categorisation_corrections
		WHERE normalized_description = ?
		ORDER BY created_at DESC`, model.NormalizeDescription(description))
}

// UnprocessedCorrections returns corrections not yet promoted into a rule, oldest first.
func (s *SQLiteStorage) UnprocessedCorrections(ctx context.Context) ([]model.Correction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	return s.queryCorrections(ctx, `SELECT `+correctionColumns+`
		FROM categorisation_corrections
		WHERE processed = 0
		ORDER BY created_at ASC, id`)
}

// CountCorrectionGroups counts unprocessed (description, corrected category) groups
// that have at least minCount members and no rule for their pattern yet.
func (s *SQLiteStorage) CountCorrectionGroups(ctx context.Context, minCount int) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	// A group's pattern is its normalized description, matched exactly when every raw
	// description agrees and by substring otherwise. Groups already covered by a rule are skipped.
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT normalized_description AS pattern,
				CASE WHEN COUNT(DISTINCT description) = 1 THEN 'exact' ELSE 'contains' END AS match_type
			FROM categorisation_corrections
			WHERE processed = 0 AND normalized_description <> ''
			GROUP BY normalized_description, corrected_category_id
			HAVING COUNT(*) >= ?
		) g
		WHERE NOT EXISTS (
			SELECT 1 FROM category_mappings m
			WHERE m.match_type = g.match_type AND LOWER(TRIM(m.pattern)) = LOWER(TRIM(g.pattern))
		)`, minCount).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count correction groups: %w", err)
	}
	return count, nil
}

// MarkCorrectionsProcessed flags corrections as promoted into ruleID.
func (s *SQLiteStorage) MarkCorrectionsProcessed(ctx context.Context, ids []string, ruleID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, nullString(&ruleID))
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE categorisation_corrections SET processed = 1, rule_id = ? WHERE id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to mark corrections processed: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) queryCorrections(ctx context.Context, query string, args ...any) ([]model.Correction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query corrections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var corrections []model.Correction
	for rows.Next() {
		var (
			c                            model.Correction
			source                       string
			original, importSession, rid sql.NullString
		)
		if err := rows.Scan(
			&c.ID, &c.Description, &original, &c.CorrectedCategoryID, &source,
			&importSession, &c.Processed, &rid, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan correction: %w", err)
		}
		c.OriginalSource = model.Source(source)
		c.OriginalCategoryID = stringPtr(original)
		c.ImportSessionID = stringPtr(importSession)
		c.RuleID = stringPtr(rid)
		corrections = append(corrections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating corrections: %w", err)
	}
	return corrections, nil
}
