package engine

import (
	"context"

	"github.com/Veraticus/firetrack/internal/llm"
	"github.com/Veraticus/firetrack/internal/model"
	"github.com/Veraticus/firetrack/internal/similarity"
)

// RuleMatcher matches descriptions against the rule set.
type RuleMatcher interface {
	MatchRule(ctx context.Context, description string) *model.RuleMatch
	MatchRulesBatch(ctx context.Context, descriptions []string) map[int]*model.RuleMatch
}

// SimilarityFinder searches categorised history for resembling descriptions.
type SimilarityFinder interface {
	FindSimilarTransactions(ctx context.Context, description string, limit int) ([]similarity.Match, error)
}

// AIClassifier is the generative-model fallback.
type AIClassifier interface {
	CheckAIAvailability(ctx context.Context) llm.Availability
	CategoriseWithAI(ctx context.Context, txn model.Transaction) (llm.AIResult, error)
	CategoriseBatchWithAI(ctx context.Context, txns []model.Transaction) (map[int]llm.AIResult, error)
}

// Strategy is one step of the categorisation chain. A strategy that cannot decide
// returns ok=false; the result's MatchDetails may still explain why.
type Strategy interface {
	Name() string
	Apply(ctx context.Context, txn model.Transaction) (result model.CategorisationResult, ok bool)
}
