package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// usageDayFormat keys ai_usage_tracking rows by calendar day.
const usageDayFormat = "2006-01-02"

// GetUsage returns the counter for usageType on day. Missing rows count as zero.
func (s *SQLiteStorage) GetUsage(ctx context.Context, day time.Time, usageType string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(usageType, "usageType"); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM ai_usage_tracking WHERE usage_date = ? AND usage_type = ?`,
		day.Format(usageDayFormat), usageType).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get ai usage: %w", err)
	}
	return count, nil
}

// IncrementUsage adds by to the counter for usageType on day, creating the row if needed.
func (s *SQLiteStorage) IncrementUsage(ctx context.Context, day time.Time, usageType string, by int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(usageType, "usageType"); err != nil {
		return err
	}
	if by <= 0 {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_usage_tracking (usage_date, usage_type, count, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(usage_date, usage_type) DO UPDATE SET
			count = count + excluded.count,
			updated_at = CURRENT_TIMESTAMP`,
		day.Format(usageDayFormat), usageType, by)
	if err != nil {
		return fmt.Errorf("failed to increment ai usage: %w", err)
	}
	return nil
}
