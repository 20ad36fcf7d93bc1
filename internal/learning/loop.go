// Package learning turns recurring user corrections into rule suggestions.
package learning

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/Veraticus/firetrack/internal/common"
	"github.com/Veraticus/firetrack/internal/model"
	"github.com/Veraticus/firetrack/internal/service"
)

const (
	// DefaultMinCorrections is the number of agreeing corrections needed for a suggestion.
	DefaultMinCorrections = 2
	maxConfidence         = 0.95
	baseConfidence        = 0.6
	perCorrection         = 0.1
	maxSamples            = 5
)

// RuleCreator is the part of the rules manager the loop uses.
type RuleCreator interface {
	CreateRule(ctx context.Context, rule model.Rule) (*model.Rule, error)
	CheckPatternExists(ctx context.Context, pattern string, matchType model.MatchType) (bool, error)
}

// CategoryLister resolves category names for suggestions.
type CategoryLister interface {
	GetCategories(ctx context.Context) ([]model.Category, error)
}

// Loop records corrections and proposes rules from them.
type Loop struct {
	store      service.CorrectionStore
	rules      RuleCreator
	categories CategoryLister
	logger     *slog.Logger
	minCount   int
}

// NewLoop creates a learning loop. A minCount below one uses DefaultMinCorrections.
func NewLoop(store service.CorrectionStore, rules RuleCreator, categories CategoryLister, minCount int, logger *slog.Logger) *Loop {
	if minCount < 1 {
		minCount = DefaultMinCorrections
	}
	return &Loop{
		store:      store,
		rules:      rules,
		categories: categories,
		minCount:   minCount,
		logger:     common.LoggerOrDefault(logger),
	}
}

// RecordCorrection stores a single correction and returns it with its id set.
func (l *Loop) RecordCorrection(ctx context.Context, correction model.Correction) (*model.Correction, error) {
	saved, err := l.RecordCorrectionsBatch(ctx, []model.Correction{correction})
	if err != nil {
		return nil, err
	}
	return &saved[0], nil
}

// RecordCorrectionsBatch stores corrections atomically.
func (l *Loop) RecordCorrectionsBatch(ctx context.Context, corrections []model.Correction) ([]model.Correction, error) {
	if len(corrections) == 0 {
		return nil, nil
	}

	ptrs := make([]*model.Correction, len(corrections))
	for i := range corrections {
		c := corrections[i]
		c.Processed = false
		c.RuleID = nil
		ptrs[i] = &c
	}
	if err := l.store.SaveCorrections(ctx, ptrs); err != nil {
		return nil, fmt.Errorf("failed to record corrections: %w", err)
	}

	saved := make([]model.Correction, len(ptrs))
	for i, c := range ptrs {
		saved[i] = *c
	}
	l.logger.Info("recorded corrections", "count", len(saved))
	return saved, nil
}

// GetCorrectionsForDescription returns earlier corrections of description, newest first.
func (l *Loop) GetCorrectionsForDescription(ctx context.Context, description string) ([]model.Correction, error) {
	return l.store.GetCorrectionsByDescription(ctx, description)
}

// CheckForSuggestions reports whether any correction group has reached the threshold,
// and how many groups have. Store failures are logged and reported as none.
func (l *Loop) CheckForSuggestions(ctx context.Context) (bool, int) {
	n, err := l.store.CountCorrectionGroups(ctx, l.minCount)
	if err != nil {
		l.logger.Warn("failed to count correction groups", "error", err)
		return false, 0
	}
	return n > 0, n
}

type correctionGroup struct {
	normalized  string
	categoryID  string
	corrections []model.Correction
}

// AnalyseCorrections groups unprocessed corrections by normalised description and
// corrected category and proposes a rule for each group with enough members.
// Confidence grows with group size up to 0.95 and is scaled by the share of the
// description's corrections that agree on the category. Patterns that already
// exist as rules are skipped.
func (l *Loop) AnalyseCorrections(ctx context.Context) ([]model.PatternSuggestion, error) {
	corrections, err := l.store.UnprocessedCorrections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load corrections: %w", err)
	}
	if len(corrections) == 0 {
		return nil, nil
	}

	perDescription := make(map[string]int)
	groups := make(map[string]*correctionGroup)
	var order []string
	for _, c := range corrections {
		norm := model.NormalizeDescription(c.Description)
		perDescription[norm]++

		key := norm + "\x00" + c.CorrectedCategoryID
		g, ok := groups[key]
		if !ok {
			g = &correctionGroup{normalized: norm, categoryID: c.CorrectedCategoryID}
			groups[key] = g
			order = append(order, key)
		}
		g.corrections = append(g.corrections, c)
	}

	names, err := l.categoryNames(ctx)
	if err != nil {
		return nil, err
	}

	var suggestions []model.PatternSuggestion
	for _, key := range order {
		g := groups[key]
		count := len(g.corrections)
		if count < l.minCount || g.normalized == "" {
			continue
		}

		matchType := model.MatchExact
		first := g.corrections[0].Description
		for _, c := range g.corrections[1:] {
			if c.Description != first {
				matchType = model.MatchContains
				break
			}
		}

		exists, err := l.rules.CheckPatternExists(ctx, g.normalized, matchType)
		if err != nil {
			return nil, err
		}
		if exists {
			l.logger.Debug("skipping suggestion for existing rule", "pattern", g.normalized, "match_type", matchType)
			continue
		}

		consistency := float64(count) / float64(perDescription[g.normalized])
		confidence := math.Min(maxConfidence, baseConfidence+perCorrection*float64(count)) * consistency

		s := model.PatternSuggestion{
			Pattern:         g.normalized,
			MatchType:       matchType,
			CategoryID:      g.categoryID,
			CategoryName:    names[g.categoryID],
			CorrectionCount: count,
			Confidence:      math.Round(confidence*100) / 100,
		}
		seen := make(map[string]bool)
		for _, c := range g.corrections {
			s.CorrectionIDs = append(s.CorrectionIDs, c.ID)
			if !seen[c.Description] && len(s.SampleDescriptions) < maxSamples {
				seen[c.Description] = true
				s.SampleDescriptions = append(s.SampleDescriptions, c.Description)
			}
		}
		suggestions = append(suggestions, s)
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].CorrectionCount != suggestions[j].CorrectionCount {
			return suggestions[i].CorrectionCount > suggestions[j].CorrectionCount
		}
		return suggestions[i].Confidence > suggestions[j].Confidence
	})
	return suggestions, nil
}

// MarkCorrectionsAsProcessed stamps corrections with the rule they were promoted into.
func (l *Loop) MarkCorrectionsAsProcessed(ctx context.Context, ids []string, ruleID string) error {
	if err := l.store.MarkCorrectionsProcessed(ctx, ids, ruleID); err != nil {
		return err
	}
	l.logger.Info("marked corrections processed", "count", len(ids), "rule_id", ruleID)
	return nil
}

// CreateRuleFromSuggestion creates a rule for s and marks its source corrections processed.
func (l *Loop) CreateRuleFromSuggestion(ctx context.Context, s model.PatternSuggestion) (*model.Rule, error) {
	rule, err := l.rules.CreateRule(ctx, model.Rule{
		Pattern:    s.Pattern,
		MatchType:  s.MatchType,
		CategoryID: s.CategoryID,
		Confidence: s.Confidence,
		Notes:      fmt.Sprintf("Learned from %d corrections", s.CorrectionCount),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rule from suggestion: %w", err)
	}

	if err := l.MarkCorrectionsAsProcessed(ctx, s.CorrectionIDs, rule.ID); err != nil {
		return rule, fmt.Errorf("rule %s created but corrections not marked: %w", rule.ID, err)
	}
	return rule, nil
}

func (l *Loop) categoryNames(ctx context.Context) (map[string]string, error) {
	names := make(map[string]string)
	if l.categories == nil {
		return names, nil
	}
	cats, err := l.categories.GetCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	return names, nil
}
