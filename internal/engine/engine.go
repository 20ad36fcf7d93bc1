// Package engine implements the categorisation pipeline: rules first, then similar
// history, then the AI fallback.
package engine

import (
	"context"
	"log/slog"

	"github.com/Veraticus/firetrack/internal/common"
	"github.com/Veraticus/firetrack/internal/model"
	"github.com/Veraticus/firetrack/internal/similarity"
)

// Config holds tuning options for the engine.
type Config struct {
	// AgreementBoost is added per agreeing similar transaction when at least two agree.
	AgreementBoost float64
	// SimilarityThreshold is the minimum (boosted) confidence a similarity result needs.
	SimilarityThreshold float64
	// SimilarLimit is the number of similar transactions consulted.
	SimilarLimit int
	// HighConfidence and LowConfidence bound the stats buckets.
	HighConfidence float64
	LowConfidence  float64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		AgreementBoost:      0.1,
		SimilarityThreshold: 0.5,
		SimilarLimit:        similarity.DefaultLimit,
		HighConfidence:      0.8,
		LowConfidence:       0.5,
	}
}

// Engine orchestrates the categorisation strategies.
type Engine struct {
	matcher    RuleMatcher
	similar    similarStrategy
	ai         AIClassifier
	logger     *slog.Logger
	strategies []Strategy
	config     Config
}

// New creates an engine with the default configuration. ai may be nil when no model is configured.
func New(matcher RuleMatcher, finder SimilarityFinder, ai AIClassifier, logger *slog.Logger) *Engine {
	return NewWithConfig(matcher, finder, ai, DefaultConfig(), logger)
}

// NewWithConfig creates an engine with custom configuration.
func NewWithConfig(matcher RuleMatcher, finder SimilarityFinder, ai AIClassifier, config Config, logger *slog.Logger) *Engine {
	logger = common.LoggerOrDefault(logger)
	defaults := DefaultConfig()
	if config.SimilarLimit <= 0 {
		config.SimilarLimit = defaults.SimilarLimit
	}
	if config.HighConfidence <= 0 {
		config.HighConfidence = defaults.HighConfidence
	}
	if config.LowConfidence <= 0 {
		config.LowConfidence = defaults.LowConfidence
	}
	if config.SimilarityThreshold <= 0 {
		config.SimilarityThreshold = defaults.SimilarityThreshold
	}
	if config.AgreementBoost <= 0 {
		config.AgreementBoost = defaults.AgreementBoost
	}

	similar := similarStrategy{
		finder:    finder,
		logger:    logger,
		boost:     config.AgreementBoost,
		threshold: config.SimilarityThreshold,
		limit:     config.SimilarLimit,
	}

	return &Engine{
		matcher: matcher,
		similar: similar,
		ai:      ai,
		logger:  logger,
		config:  config,
		strategies: []Strategy{
			ruleStrategy{matcher: matcher},
			similar,
			aiStrategy{classifier: ai, logger: logger},
		},
	}
}

// Strategies returns the names of the strategies in evaluation order.
func (e *Engine) Strategies() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name()
	}
	return names
}

// Categorise runs txn through the strategy chain and returns the first accepted result.
// It never fails: when nothing matches the result has source none and explains why.
func (e *Engine) Categorise(ctx context.Context, txn model.Transaction) model.CategorisationResult {
	details := MsgNoMatch
	for _, s := range e.strategies {
		result, ok := s.Apply(ctx, txn)
		if ok {
			e.logger.Debug("transaction categorised",
				"description", txn.Description,
				"strategy", s.Name(),
				"source", result.Source,
				"confidence", result.Confidence)
			return result
		}
		if result.MatchDetails != "" {
			details = result.MatchDetails
		}
	}
	return model.Uncategorised(details)
}

// CategoriseBatch categorises txns in three waves: a single rule pass over every
// description, a similarity lookup per unmatched transaction, then one batched AI
// call for whatever is left if the remaining daily quota covers all of it.
// The returned slice is index-aligned with txns.
func (e *Engine) CategoriseBatch(ctx context.Context, txns []model.Transaction) []model.CategorisationResult {
	results := make([]model.CategorisationResult, len(txns))
	if len(txns) == 0 {
		return results
	}
	done := make([]bool, len(txns))

	// Wave 1: rules.
	descriptions := make([]string, len(txns))
	for i, txn := range txns {
		descriptions[i] = txn.Description
	}
	for i, m := range e.matcher.MatchRulesBatch(ctx, descriptions) {
		if m != nil && i >= 0 && i < len(txns) {
			results[i] = fromRuleMatch(m)
			done[i] = true
		}
	}

	// Wave 2: similarity, sequentially.
	var pending []int
	for i, txn := range txns {
		if done[i] {
			continue
		}
		if r, ok := e.similar.Apply(ctx, txn); ok {
			results[i] = r
			done[i] = true
			continue
		}
		pending = append(pending, i)
	}

	e.logger.Info("batch rule and similarity waves complete",
		"total", len(txns),
		"pending_ai", len(pending))

	if len(pending) == 0 {
		return results
	}

	// Wave 3: AI.
	e.categorisePendingWithAI(ctx, txns, pending, results)
	return results
}

func (e *Engine) categorisePendingWithAI(ctx context.Context, txns []model.Transaction, pending []int, results []model.CategorisationResult) {
	fill := func(msg string) {
		for _, i := range pending {
			results[i] = model.Uncategorised(msg)
		}
	}

	if e.ai == nil {
		fill(MsgAIUnavailable)
		return
	}

	avail := e.ai.CheckAIAvailability(ctx)
	switch {
	case !avail.Available:
		fill(MsgAIUnavailable)
		return
	case !avail.Fits(len(pending)):
		e.logger.Info("skipping AI for batch", "pending", len(pending), "remaining", avail.Remaining)
		fill(MsgAIQuotaExceeded)
		return
	}

	batch := make([]model.Transaction, len(pending))
	for j, i := range pending {
		batch[j] = txns[i]
	}

	aiResults, err := e.ai.CategoriseBatchWithAI(ctx, batch)
	if err != nil {
		// The wave fails as a unit, whatever the classifier managed before the error.
		e.logger.Warn("batch AI categorisation failed", "pending", len(pending), "error", err)
		fill(MsgAIFailed)
		return
	}

	for j, i := range pending {
		if r, ok := aiResults[j]; ok {
			results[i] = fromAIResult(r)
		} else {
			results[i] = model.Uncategorised(MsgAINoResult)
		}
	}
}

// CalculateStats aggregates results.
func (e *Engine) CalculateStats(results []model.CategorisationResult) model.Stats {
	return CalculateStats(results, e.config.HighConfidence, e.config.LowConfidence)
}

// CalculateStats aggregates results using the given confidence bucket bounds:
// high is inclusive, low is exclusive.
func CalculateStats(results []model.CategorisationResult, high, low float64) model.Stats {
	stats := model.Stats{
		Total:    len(results),
		BySource: make(map[model.Source]int),
	}
	for _, r := range results {
		stats.BySource[r.Source]++
		if r.IsCategorised() {
			stats.Categorised++
		} else {
			stats.Uncategorised++
		}
		if r.Confidence >= high {
			stats.HighConfidence++
		}
		if r.Confidence < low {
			stats.LowConfidence++
		}
		if r.Source == model.SourceAI {
			stats.AIUsed++
		}
	}
	return stats
}
