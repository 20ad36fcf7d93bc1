package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/firetrack/internal/common"
	"github.com/Veraticus/firetrack/internal/service"
)

const (
	// DefaultDailyLimit is the number of transactions the AI may classify per day.
	DefaultDailyLimit = 100
	// UsageTypeCategorisation is the ai_usage_tracking row the classifier counts against.
	UsageTypeCategorisation = "categorisation"
)

// Availability reports the remaining AI quota for today.
type Availability struct {
	Used       int  `json:"used"`
	Remaining  int  `json:"remaining"`
	DailyLimit int  `json:"daily_limit"`
	Available  bool `json:"available"`
}

// Fits reports whether n more transactions can be classified today.
func (a Availability) Fits(n int) bool {
	return a.Available && n <= a.Remaining
}

// UsageTracker enforces the daily AI quota.
type UsageTracker struct {
	store      service.UsageStore
	now        func() time.Time
	logger     *slog.Logger
	usageType  string
	dailyLimit int
}

// NewUsageTracker creates a tracker over store. A non-positive dailyLimit uses DefaultDailyLimit.
func NewUsageTracker(store service.UsageStore, dailyLimit int, logger *slog.Logger) *UsageTracker {
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimit
	}
	return &UsageTracker{
		store:      store,
		dailyLimit: dailyLimit,
		usageType:  UsageTypeCategorisation,
		now:        time.Now,
		logger:     common.LoggerOrDefault(logger),
	}
}

// WithClock replaces the tracker's time source.
func (u *UsageTracker) WithClock(now func() time.Time) *UsageTracker {
	u.now = now
	return u
}

// CheckAIAvailability reads today's usage. A failed read is reported as unavailable.
func (u *UsageTracker) CheckAIAvailability(ctx context.Context) Availability {
	used, err := u.store.GetUsage(ctx, u.now(), u.usageType)
	if err != nil {
		u.logger.Warn("failed to read AI usage, treating AI as unavailable", "error", err)
		return Availability{DailyLimit: u.dailyLimit}
	}

	remaining := max(u.dailyLimit-used, 0)
	return Availability{
		Available:  remaining > 0,
		Used:       used,
		Remaining:  remaining,
		DailyLimit: u.dailyLimit,
	}
}

// Record adds n classified transactions to today's usage. Failures are logged only.
func (u *UsageTracker) Record(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	if err := u.store.IncrementUsage(ctx, u.now(), u.usageType, n); err != nil {
		u.logger.Warn("failed to record AI usage", "count", n, "error", err)
	}
}

// record is nil-safe so a classifier may run without quota tracking.
func (u *UsageTracker) record(ctx context.Context, n int) {
	if u == nil {
		return
	}
	u.Record(ctx, n)
}

// String renders the availability for logs and the CLI.
func (a Availability) String() string {
	return fmt.Sprintf("%d/%d used, %d remaining", a.Used, a.DailyLimit, a.Remaining)
}
