// Package service defines the store contracts the categorisation core is built against.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/firetrack/internal/model"
)

// RuleFilter narrows a rule listing. Zero values mean "no filter".
type RuleFilter struct {
	IsSystem   *bool
	CategoryID string
}

// SimilarRow is a row returned by the store's trigram similarity search.
type SimilarRow struct {
	Date          time.Time
	TransactionID string
	Description   string
	CategoryID    string
	CategoryName  string
	Similarity    float64
}

// RuleStore persists category mappings.
type RuleStore interface {
	// ListRules returns rules ordered by descending confidence (matcher order).
	ListRules(ctx context.Context) ([]model.Rule, error)
	// QueryRules returns rules matching filter ordered newest first, with category names joined.
	QueryRules(ctx context.Context, filter RuleFilter) ([]model.Rule, error)
	GetRule(ctx context.Context, id string) (*model.Rule, error)
	CreateRule(ctx context.Context, rule *model.Rule) error
	UpdateRule(ctx context.Context, rule *model.Rule) error
	DeleteRule(ctx context.Context, id string) error
	// FindRulesByPattern returns rules of matchType whose pattern equals pattern case-insensitively.
	FindRulesByPattern(ctx context.Context, pattern string, matchType model.MatchType) ([]model.Rule, error)
}

// CategoryStore reads the category taxonomy.
type CategoryStore interface {
	GetCategories(ctx context.Context) ([]model.Category, error)
	GetCategory(ctx context.Context, id string) (*model.Category, error)
	GetCategoryByName(ctx context.Context, name string) (*model.Category, error)
	CreateCategory(ctx context.Context, category *model.Category) error
}

// TransactionStore reads categorised history and stores imported transactions.
type TransactionStore interface {
	// FindSimilarTransactions is the trigram similarity search over categorised transactions.
	FindSimilarTransactions(ctx context.Context, description string, minSimilarity float64, maxResults int) ([]SimilarRow, error)
	// RecentCategorisedTransactions returns the newest categorised transactions.
	RecentCategorisedTransactions(ctx context.Context, limit int) ([]model.Transaction, error)
	// RecentTransactions returns the newest transactions regardless of category.
	RecentTransactions(ctx context.Context, limit int) ([]model.Transaction, error)
	UncategorisedTransactions(ctx context.Context, limit int) ([]model.Transaction, error)
	SaveTransactions(ctx context.Context, transactions []model.Transaction) (int, error)
	SetTransactionCategory(ctx context.Context, transactionID, categoryID string) error
}

// UsageStore tracks daily AI usage counters keyed by date and usage type.
type UsageStore interface {
	GetUsage(ctx context.Context, day time.Time, usageType string) (int, error)
	IncrementUsage(ctx context.Context, day time.Time, usageType string, by int) error
}

// CorrectionStore persists user corrections.
type CorrectionStore interface {
	SaveCorrections(ctx context.Context, corrections []*model.Correction) error
	GetCorrectionsByDescription(ctx context.Context, description string) ([]model.Correction, error)
	UnprocessedCorrections(ctx context.Context) ([]model.Correction, error)
	// CountCorrectionGroups counts unprocessed groups with at least minCount members.
	CountCorrectionGroups(ctx context.Context, minCount int) (int, error)
	MarkCorrectionsProcessed(ctx context.Context, ids []string, ruleID string) error
}

// Storage is the full persistence contract implemented by the SQLite store.
type Storage interface {
	RuleStore
	CategoryStore
	TransactionStore
	UsageStore
	CorrectionStore

	Migrate(ctx context.Context) error
	Close() error
}
