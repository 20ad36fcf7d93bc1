package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/firetrack/internal/common"
	"github.com/Veraticus/firetrack/internal/model"
	"github.com/Veraticus/firetrack/internal/service"
)

const (
	// DefaultTestLimit caps the transactions returned by TestRule.
	DefaultTestLimit = 50
	// testSampleSize is how many recent transactions TestRule replays.
	testSampleSize = 1000
	// recentWindow defines "recently created" for GetRuleStats.
	recentWindow = 30 * 24 * time.Hour
)

// TransactionSampler supplies recent transactions for rule dry runs.
type TransactionSampler interface {
	RecentTransactions(ctx context.Context, limit int) ([]model.Transaction, error)
}

// RuleTestResult describes what a candidate rule would match.
type RuleTestResult struct {
	Transactions []model.Transaction `json:"transactions"`
	TotalMatched int                 `json:"total_matched"`
	WouldChange  int                 `json:"would_change"`
}

// RuleStats summarises the rule set.
type RuleStats struct {
	ByMatchType     map[model.MatchType]int `json:"by_match_type"`
	Total           int                     `json:"total"`
	System          int                     `json:"system"`
	User            int                     `json:"user"`
	RecentlyCreated int                     `json:"recently_created"`
}

// Manager provides CRUD and dry-run testing over the rule store.
// Every successful mutation clears the matcher's rule cache.
type Manager struct {
	store        service.RuleStore
	transactions TransactionSampler
	matcher      *Matcher
	logger       *slog.Logger
	now          func() time.Time
}

// NewManager creates a rules manager.
func NewManager(store service.RuleStore, transactions TransactionSampler, matcher *Matcher, logger *slog.Logger) *Manager {
	return &Manager{
		store:        store,
		transactions: transactions,
		matcher:      matcher,
		logger:       common.LoggerOrDefault(logger),
		now:          time.Now,
	}
}

// GetRules lists rules matching filter, newest first.
func (m *Manager) GetRules(ctx context.Context, filter service.RuleFilter) ([]model.Rule, error) {
	rules, err := m.store.QueryRules(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to get rules: %w", err)
	}
	return rules, nil
}

// GetRule returns a single rule.
func (m *Manager) GetRule(ctx context.Context, id string) (*model.Rule, error) {
	return m.store.GetRule(ctx, id)
}

// CreateRule validates and stores a new user rule. On failure the returned rule is nil.
func (m *Manager) CreateRule(ctx context.Context, rule model.Rule) (*model.Rule, error) {
	rule.Pattern = strings.TrimSpace(rule.Pattern)
	rule.ID = ""
	if err := validate(rule); err != nil {
		m.logger.Warn("rejected rule", "pattern", rule.Pattern, "error", err)
		return nil, err
	}

	exists, err := m.CheckPatternExists(ctx, rule.Pattern, rule.MatchType)
	if err != nil {
		return nil, err
	}
	if exists {
		err := fmt.Errorf("%w: %s rule %q", common.ErrDuplicateEntry, rule.MatchType, rule.Pattern)
		m.logger.Warn("rejected rule", "pattern", rule.Pattern, "error", err)
		return nil, err
	}

	if err := m.store.CreateRule(ctx, &rule); err != nil {
		m.logger.Error("failed to create rule", "pattern", rule.Pattern, "error", err)
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	m.matcher.ClearRulesCache()

	m.logger.Info("created rule",
		"rule_id", rule.ID,
		"pattern", rule.Pattern,
		"match_type", rule.MatchType,
		"category_id", rule.CategoryID)

	return m.reload(ctx, rule)
}

// UpdateRule applies update to the rule with id. On failure the returned rule is nil.
func (m *Manager) UpdateRule(ctx context.Context, id string, update model.RuleUpdate) (*model.Rule, error) {
	existing, err := m.store.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}

	rule := update.Apply(*existing)
	rule.Pattern = strings.TrimSpace(rule.Pattern)
	if err := validate(rule); err != nil {
		m.logger.Warn("rejected rule update", "rule_id", id, "error", err)
		return nil, err
	}

	if !strings.EqualFold(rule.Pattern, existing.Pattern) || rule.MatchType != existing.MatchType {
		dupes, err := m.store.FindRulesByPattern(ctx, rule.Pattern, rule.MatchType)
		if err != nil {
			return nil, fmt.Errorf("failed to check for duplicate rules: %w", err)
		}
		for _, d := range dupes {
			if d.ID != id {
				return nil, fmt.Errorf("%w: %s rule %q", common.ErrDuplicateEntry, rule.MatchType, rule.Pattern)
			}
		}
	}

	if err := m.store.UpdateRule(ctx, &rule); err != nil {
		m.logger.Error("failed to update rule", "rule_id", id, "error", err)
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	m.matcher.ClearRulesCache()

	m.logger.Info("updated rule", "rule_id", id)
	return m.reload(ctx, rule)
}

// DeleteRule removes a user rule. System rules are refused: the result is false
// and the error wraps common.ErrSystemRule.
func (m *Manager) DeleteRule(ctx context.Context, id string) (bool, error) {
	rule, err := m.store.GetRule(ctx, id)
	if err != nil {
		return false, err
	}
	if rule.IsSystem {
		m.logger.Warn("refusing to delete system rule", "rule_id", id, "pattern", rule.Pattern)
		return false, fmt.Errorf("rule %q: %w", rule.Pattern, common.ErrSystemRule)
	}

	if err := m.store.DeleteRule(ctx, id); err != nil {
		m.logger.Error("failed to delete rule", "rule_id", id, "error", err)
		return false, fmt.Errorf("failed to delete rule: %w", err)
	}
	m.matcher.ClearRulesCache()

	m.logger.Info("deleted rule", "rule_id", id, "pattern", rule.Pattern)
	return true, nil
}

// TestRule replays a candidate rule over the most recent transactions without saving it.
// WouldChange counts matched transactions whose current category is not categoryID.
func (m *Manager) TestRule(ctx context.Context, pattern string, matchType model.MatchType, categoryID string, limit int) (*RuleTestResult, error) {
	if limit <= 0 {
		limit = DefaultTestLimit
	}

	cp := compilePattern(model.Rule{Pattern: strings.TrimSpace(pattern), MatchType: matchType})
	if cp.err != nil {
		return nil, cp.err
	}

	sample, err := m.transactions.RecentTransactions(ctx, testSampleSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	result := &RuleTestResult{Transactions: []model.Transaction{}}
	for _, txn := range sample {
		if !cp.matches(model.NormalizeDescription(txn.Description)) {
			continue
		}
		result.TotalMatched++
		if len(result.Transactions) < limit {
			result.Transactions = append(result.Transactions, txn)
		}
		if txn.CategoryID == nil || *txn.CategoryID != categoryID {
			result.WouldChange++
		}
	}
	return result, nil
}

// CheckPatternExists reports whether a rule with the same pattern and match type exists, ignoring case.
func (m *Manager) CheckPatternExists(ctx context.Context, pattern string, matchType model.MatchType) (bool, error) {
	found, err := m.store.FindRulesByPattern(ctx, pattern, matchType)
	if err != nil {
		return false, fmt.Errorf("failed to check pattern: %w", err)
	}
	return len(found) > 0, nil
}

// GetRuleStats derives counts from the full rule list.
func (m *Manager) GetRuleStats(ctx context.Context) (*RuleStats, error) {
	rules, err := m.GetRules(ctx, service.RuleFilter{})
	if err != nil {
		return nil, err
	}

	stats := &RuleStats{
		Total: len(rules),
		ByMatchType: map[model.MatchType]int{
			model.MatchExact:    0,
			model.MatchContains: 0,
			model.MatchRegex:    0,
		},
	}
	cutoff := m.now().Add(-recentWindow)
	for _, r := range rules {
		stats.ByMatchType[r.MatchType]++
		if r.IsSystem {
			stats.System++
		} else {
			stats.User++
		}
		if r.CreatedAt.After(cutoff) {
			stats.RecentlyCreated++
		}
	}
	return stats, nil
}

// reload re-reads a rule so the category name join is populated.
func (m *Manager) reload(ctx context.Context, rule model.Rule) (*model.Rule, error) {
	fresh, err := m.store.GetRule(ctx, rule.ID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		m.logger.Debug("could not reload rule, returning unjoined copy", "rule_id", rule.ID, "error", err)
		return &rule, nil
	}
	return fresh, nil
}

func validate(rule model.Rule) error {
	if rule.Pattern == "" {
		return fmt.Errorf("%w: pattern is empty", common.ErrInvalidPattern)
	}
	if rule.CategoryID == "" {
		return common.NewUserError("a category is required", common.ErrInvalidRule)
	}
	if rule.Confidence < 0 || rule.Confidence > 1 {
		return common.NewUserError("confidence must be between 0 and 1", common.ErrInvalidRule)
	}
	return compilePattern(rule).err
}
