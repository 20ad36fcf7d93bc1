package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/firetrack/internal/llm"
	"github.com/Veraticus/firetrack/internal/model"
	"github.com/Veraticus/firetrack/internal/similarity"
)

const maxAlternatives = 3

// Messages used for uncategorised results.
const (
	MsgNoMatch           = "No matching rule or similar transaction found"
	MsgAIUnavailable     = "AI categorisation not available"
	MsgAIQuotaExceeded   = "AI quota insufficient for batch"
	MsgAIFailed          = "AI categorisation failed"
	MsgAINoResult        = "AI returned no result for this transaction"
	MsgSimilarityFailed  = "Similarity lookup failed"
	MsgSimilarityTooWeak = "Similar transactions found but confidence too low"
)

type ruleStrategy struct {
	matcher RuleMatcher
}

func (s ruleStrategy) Name() string { return "rule" }

func (s ruleStrategy) Apply(ctx context.Context, txn model.Transaction) (model.CategorisationResult, bool) {
	m := s.matcher.MatchRule(ctx, txn.Description)
	if m == nil {
		return model.CategorisationResult{}, false
	}
	return fromRuleMatch(m), true
}

func fromRuleMatch(m *model.RuleMatch) model.CategorisationResult {
	source := model.SourceRulePattern
	if m.IsExact {
		source = model.SourceRuleExact
	}

	categoryID := m.CategoryID
	result := model.CategorisationResult{
		CategoryID:   &categoryID,
		Source:       source,
		Confidence:   m.Confidence,
		MatchDetails: fmt.Sprintf("Matched %s rule %q", m.Rule.MatchType, m.Rule.Pattern),
	}
	if m.Rule.CategoryName != "" {
		name := m.Rule.CategoryName
		result.CategoryName = &name
	}
	return result
}

type similarStrategy struct {
	finder    SimilarityFinder
	logger    *slog.Logger
	boost     float64
	threshold float64
	limit     int
}

func (s similarStrategy) Name() string { return "similar" }

func (s similarStrategy) Apply(ctx context.Context, txn model.Transaction) (model.CategorisationResult, bool) {
	matches, err := s.finder.FindSimilarTransactions(ctx, txn.Description, s.limit)
	if err != nil {
		s.logger.Warn("similarity lookup failed", "description", txn.Description, "error", err)
		return model.Uncategorised(MsgSimilarityFailed), false
	}
	if len(matches) == 0 {
		return model.CategorisationResult{}, false
	}

	best := matches[0]
	categoryID, categoryName := best.CategoryID, best.CategoryName
	confidence := best.Similarity
	details := fmt.Sprintf("Similar to %q (%.0f%% match)", best.Description, best.Similarity*100)

	if vote := similarity.GetMostCommonCategory(matches); vote != nil && vote.Count >= 2 {
		categoryID, categoryName = vote.CategoryID, vote.CategoryName
		confidence = min(1, confidence+s.boost*float64(vote.Count))
		details = fmt.Sprintf("%d similar transactions agree on %s (best %.0f%% match)",
			vote.Count, vote.CategoryName, best.Similarity*100)
	}

	if confidence < s.threshold {
		return model.Uncategorised(MsgSimilarityTooWeak), false
	}

	result := model.CategorisationResult{
		CategoryID:   &categoryID,
		Source:       model.SourceSimilar,
		Confidence:   confidence,
		MatchDetails: details,
		Alternatives: similarAlternatives(matches, categoryID),
	}
	if categoryName != "" {
		result.CategoryName = &categoryName
	}
	return result, true
}

// similarAlternatives lists the next best distinct categories among matches.
func similarAlternatives(matches []similarity.Match, chosen string) []model.Alternative {
	seen := map[string]bool{chosen: true}
	var alts []model.Alternative
	for _, m := range matches {
		if seen[m.CategoryID] {
			continue
		}
		seen[m.CategoryID] = true
		alts = append(alts, model.Alternative{
			CategoryID:   m.CategoryID,
			CategoryName: m.CategoryName,
			Confidence:   m.Similarity,
		})
		if len(alts) == maxAlternatives {
			break
		}
	}
	return alts
}

type aiStrategy struct {
	classifier AIClassifier
	logger     *slog.Logger
}

func (s aiStrategy) Name() string { return "ai" }

func (s aiStrategy) Apply(ctx context.Context, txn model.Transaction) (model.CategorisationResult, bool) {
	if s.classifier == nil || !s.classifier.CheckAIAvailability(ctx).Available {
		return model.Uncategorised(MsgAIUnavailable), false
	}

	r, err := s.classifier.CategoriseWithAI(ctx, txn)
	if err != nil {
		s.logger.Warn("AI categorisation failed", "description", txn.Description, "kind", llm.KindOf(err), "error", err)
		return model.Uncategorised(MsgAIFailed), false
	}
	return fromAIResult(r), true
}

func fromAIResult(r llm.AIResult) model.CategorisationResult {
	id, name := r.CategoryID, r.CategoryName
	details := "AI categorisation"
	if r.Reasoning != "" {
		details = "AI: " + r.Reasoning
	}

	alts := r.Alternatives
	if len(alts) > maxAlternatives {
		alts = alts[:maxAlternatives]
	}
	return model.CategorisationResult{
		CategoryID:   &id,
		CategoryName: &name,
		Source:       model.SourceAI,
		Confidence:   r.Confidence,
		MatchDetails: details,
		Alternatives: alts,
	}
}
