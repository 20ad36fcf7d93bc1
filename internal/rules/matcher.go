// Package rules matches transaction descriptions against stored category rules
// and manages the rule set.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/Veraticus/firetrack/internal/cache"
	"github.com/Veraticus/firetrack/internal/common"
	"github.com/Veraticus/firetrack/internal/model"
)

// DefaultCacheTTL is how long a fetched rule set is trusted.
const DefaultCacheTTL = 5 * time.Minute

// RuleLister is the slice of the rule store the matcher reads from.
type RuleLister interface {
	// ListRules must return rules ordered by descending confidence.
	ListRules(ctx context.Context) ([]model.Rule, error)
}

// compiledPattern is a rule prepared for matching. A regex rule whose pattern
// does not compile keeps err set and never matches.
type compiledPattern struct {
	re      *regexp.Regexp
	err     error
	pattern string
	rule    model.Rule
}

func compilePattern(rule model.Rule) compiledPattern {
	cp := compiledPattern{rule: rule, pattern: model.NormalizeDescription(rule.Pattern)}
	switch rule.MatchType {
	case model.MatchExact, model.MatchContains:
	case model.MatchRegex:
		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			cp.err = fmt.Errorf("%w: %w", common.ErrInvalidPattern, err)
		}
		cp.re = re
	default:
		cp.err = fmt.Errorf("%w: %q", common.ErrUnknownMatch, rule.MatchType)
	}
	return cp
}

// matches reports whether the normalised description satisfies the pattern.
func (cp compiledPattern) matches(normalized string) bool {
	if cp.err != nil || cp.pattern == "" {
		return false
	}
	switch cp.rule.MatchType {
	case model.MatchExact:
		return normalized == cp.pattern
	case model.MatchContains:
		return strings.Contains(normalized, cp.pattern)
	case model.MatchRegex:
		return cp.re.MatchString(normalized)
	default:
		return false
	}
}

// ruleSet is the rule list partitioned by match type with every regex compiled once.
type ruleSet struct {
	exact    []compiledPattern
	patterns []compiledPattern
}

func newRuleSet(rules []model.Rule, logger *slog.Logger) *ruleSet {
	rs := &ruleSet{}
	for _, rule := range rules {
		cp := compilePattern(rule)
		if cp.err != nil {
			logger.Warn("skipping rule with invalid pattern",
				"rule_id", rule.ID,
				"pattern", rule.Pattern,
				"error", cp.err)
			continue
		}
		if rule.MatchType == model.MatchExact {
			rs.exact = append(rs.exact, cp)
		} else {
			rs.patterns = append(rs.patterns, cp)
		}
	}
	return rs
}

// match applies exact rules first, then the highest-confidence contains/regex rule.
func (rs *ruleSet) match(description string) *model.RuleMatch {
	normalized := model.NormalizeDescription(description)
	if normalized == "" {
		return nil
	}

	for _, cp := range rs.exact {
		if cp.matches(normalized) {
			return &model.RuleMatch{
				Rule:       cp.rule,
				CategoryID: cp.rule.CategoryID,
				Confidence: cp.rule.Confidence,
				IsExact:    true,
			}
		}
	}

	var best *compiledPattern
	for i := range rs.patterns {
		cp := &rs.patterns[i]
		if !cp.matches(normalized) {
			continue
		}
		if best == nil || cp.rule.Confidence > best.rule.Confidence {
			best = cp
		}
	}
	if best == nil {
		return nil
	}
	return &model.RuleMatch{
		Rule:       best.rule,
		CategoryID: best.rule.CategoryID,
		Confidence: best.rule.Confidence,
	}
}

// Matcher matches descriptions against a cached, refreshable rule set.
type Matcher struct {
	rules  *cache.TTL[*ruleSet]
	logger *slog.Logger
}

// NewMatcher creates a matcher over store. A ttl of zero uses DefaultCacheTTL.
func NewMatcher(store RuleLister, ttl time.Duration, logger *slog.Logger, opts ...cache.Option) *Matcher {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	logger = common.LoggerOrDefault(logger)

	loader := func(ctx context.Context) (*ruleSet, error) {
		rules, err := store.ListRules(ctx)
		if err != nil {
			return nil, err
		}
		return newRuleSet(rules, logger), nil
	}

	opts = append([]cache.Option{cache.WithLogger(logger)}, opts...)
	return &Matcher{
		rules:  cache.NewTTL("rules", ttl, loader, opts...),
		logger: logger,
	}
}

func (m *Matcher) current(ctx context.Context) *ruleSet {
	rs, err := m.rules.Get(ctx)
	if err != nil {
		m.logger.Warn("rules unavailable, matching against an empty rule set", "error", err)
		return &ruleSet{}
	}
	return rs
}

// MatchRule returns the winning rule for description, or nil when no rule matches.
func (m *Matcher) MatchRule(ctx context.Context, description string) *model.RuleMatch {
	return m.current(ctx).match(description)
}

// MatchRulesBatch matches every description against one snapshot of the rule set.
// Every index of descriptions is present in the result; unmatched indices map to nil.
func (m *Matcher) MatchRulesBatch(ctx context.Context, descriptions []string) map[int]*model.RuleMatch {
	rs := m.current(ctx)
	results := make(map[int]*model.RuleMatch, len(descriptions))
	for i, desc := range descriptions {
		results[i] = rs.match(desc)
	}
	return results
}

// ClearRulesCache forces the next match to refetch rules from the store.
func (m *Matcher) ClearRulesCache() {
	m.rules.Invalidate()
}

// Refreshes reports how many times rules have been fetched from the store.
func (m *Matcher) Refreshes() int {
	return m.rules.Refreshes()
}
