package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Veraticus/firetrack/internal/cache"
	"github.com/Veraticus/firetrack/internal/common"
	"github.com/Veraticus/firetrack/internal/model"
)

const (
	// DefaultTimeout bounds each model call.
	DefaultTimeout = 30 * time.Second
	// DefaultCategoryTTL is how long the taxonomy is cached.
	DefaultCategoryTTL = 10 * time.Minute
	// MaxBatchSize is the number of transactions sent in one model call.
	MaxBatchSize = 10
	// UnresolvedConfidence caps the confidence of a category the taxonomy does not know.
	UnresolvedConfidence = 0.3
	maxAlternatives      = 3
)

// CategoryLister is the slice of the category store the classifier reads.
type CategoryLister interface {
	GetCategories(ctx context.Context) ([]model.Category, error)
}

// ClassifierConfig tunes the classifier. Zero values use the package defaults.
type ClassifierConfig struct {
	Retry       common.RetryOptions
	Timeout     time.Duration
	CategoryTTL time.Duration
	BatchSize   int
}

// Classifier categorises transactions with a generative model.
type Classifier struct {
	client     Client
	categories *cache.TTL[*model.CategoryIndex]
	usage      *UsageTracker
	logger     *slog.Logger
	retry      common.RetryOptions
	timeout    time.Duration
	batchSize  int
}

// NewClassifier creates a classifier. Category loads go through a TTL cache configured by opts.
func NewClassifier(client Client, categories CategoryLister, usage *UsageTracker, cfg ClassifierConfig, logger *slog.Logger, opts ...cache.Option) *Classifier {
	logger = common.LoggerOrDefault(logger)

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CategoryTTL <= 0 {
		cfg.CategoryTTL = DefaultCategoryTTL
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	// One retry, and only for unparseable replies.
	cfg.Retry.MaxAttempts = 2
	if cfg.Retry.InitialDelay <= 0 {
		cfg.Retry.InitialDelay = 250 * time.Millisecond
	}

	loader := func(ctx context.Context) (*model.CategoryIndex, error) {
		cats, err := categories.GetCategories(ctx)
		if err != nil {
			return nil, err
		}
		return model.NewCategoryIndex(cats), nil
	}
	opts = append([]cache.Option{cache.WithLogger(logger)}, opts...)

	return &Classifier{
		client:     client,
		categories: cache.NewTTL("categories", cfg.CategoryTTL, loader, opts...),
		usage:      usage,
		logger:     logger,
		retry:      cfg.Retry,
		timeout:    cfg.Timeout,
		batchSize:  cfg.BatchSize,
	}
}

// CheckAIAvailability reports today's remaining quota.
func (c *Classifier) CheckAIAvailability(ctx context.Context) Availability {
	if c.usage == nil {
		return Availability{Available: true, Remaining: DefaultDailyLimit, DailyLimit: DefaultDailyLimit}
	}
	return c.usage.CheckAIAvailability(ctx)
}

// InvalidateCategories forces the taxonomy to be reloaded on the next call.
func (c *Classifier) InvalidateCategories() {
	c.categories.Invalidate()
}

// CategoriseWithAI classifies a single transaction. Failures are returned as *Error.
func (c *Classifier) CategoriseWithAI(ctx context.Context, txn model.Transaction) (AIResult, error) {
	idx, err := c.loadCategories(ctx)
	if err != nil {
		return AIResult{}, err
	}

	prompt := buildSinglePrompt(txn, idx.All())

	var result AIResult
	err = c.call(ctx, prompt, func(content string) error {
		r, err := parseSingle(content)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		c.logger.Warn("AI categorisation failed", "description", txn.Description, "kind", KindOf(err), "error", err)
		return AIResult{}, err
	}

	result = c.resolve(result, idx)
	c.usage.record(ctx, 1)

	c.logger.Info("AI categorised transaction",
		"description", txn.Description,
		"category", result.CategoryName,
		"confidence", result.Confidence)
	return result, nil
}

// CategoriseBatchWithAI classifies txns in chunks of at most ten, one model call per chunk,
// processed in order. Results are keyed by index into txns. Indices the model omitted are
// absent from the map. If any chunk fails the whole batch fails and no results are returned;
// quota already spent on earlier chunks stays recorded.
func (c *Classifier) CategoriseBatchWithAI(ctx context.Context, txns []model.Transaction) (map[int]AIResult, error) {
	results := make(map[int]AIResult, len(txns))
	if len(txns) == 0 {
		return results, nil
	}

	idx, err := c.loadCategories(ctx)
	if err != nil {
		return nil, err
	}

	for start := 0; start < len(txns); start += c.batchSize {
		end := min(start+c.batchSize, len(txns))
		chunk := txns[start:end]

		var parsed map[int]AIResult
		prompt := buildBatchPrompt(chunk, idx.All())
		err := c.call(ctx, prompt, func(content string) error {
			p, err := parseBatch(content, len(chunk))
			if err != nil {
				return err
			}
			parsed = p
			return nil
		})
		if err != nil {
			c.logger.Warn("AI batch chunk failed",
				"offset", start,
				"size", len(chunk),
				"kind", KindOf(err),
				"error", err)
			return nil, err
		}

		for i, r := range parsed {
			results[start+i] = c.resolve(r, idx)
		}
		c.usage.record(ctx, len(parsed))

		c.logger.Info("AI categorised batch chunk",
			"offset", start,
			"size", len(chunk),
			"returned", len(parsed))
	}

	return results, nil
}

func (c *Classifier) loadCategories(ctx context.Context) (*model.CategoryIndex, error) {
	idx, err := c.categories.Get(ctx)
	if err != nil {
		return nil, newError(KindAPI, "failed to load categories", err)
	}
	if idx.Len() == 0 {
		return nil, newError(KindAPI, "no categories available", nil)
	}
	return idx, nil
}

// call sends prompt to the model and hands the reply to parse. Parse errors are retried
// once; every other failure is returned immediately.
func (c *Classifier) call(ctx context.Context, prompt string, parse func(string) error) error {
	err := common.WithRetry(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		content, err := c.client.Complete(callCtx, prompt)
		if err != nil {
			return common.Terminal(classifyProviderError(err))
		}
		if err := parse(content); err != nil {
			if KindOf(err) == KindParse {
				return err
			}
			return common.Terminal(err)
		}
		return nil
	}, c.retry)
	if err == nil {
		return nil
	}

	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr
	}
	return classifyProviderError(err)
}

// resolve checks the model's answer against the taxonomy. An unknown id falls back to a
// case-insensitive name match; failing that the answer is kept with its confidence capped.
func (c *Classifier) resolve(r AIResult, idx *model.CategoryIndex) AIResult {
	if cat, ok := idx.ByID(r.CategoryID); ok {
		r.CategoryName = cat.Name
	} else if cat, ok := idx.ByName(r.CategoryName); ok {
		c.logger.Debug("AI category id unknown, matched by name",
			"category_id", r.CategoryID,
			"category_name", r.CategoryName)
		r.CategoryID = cat.ID
		r.CategoryName = cat.Name
	} else {
		c.logger.Warn("AI returned a category outside the taxonomy",
			"category_id", r.CategoryID,
			"category_name", r.CategoryName)
		r.Confidence = min(r.Confidence, UnresolvedConfidence)
	}

	alternatives := make([]model.Alternative, 0, len(r.Alternatives))
	for _, alt := range r.Alternatives {
		if len(alternatives) == maxAlternatives {
			break
		}
		cat, ok := idx.ByID(alt.CategoryID)
		if !ok {
			if cat, ok = idx.ByName(alt.CategoryName); !ok {
				continue
			}
		}
		if cat.ID == r.CategoryID {
			continue
		}
		alternatives = append(alternatives, model.Alternative{
			CategoryID:   cat.ID,
			CategoryName: cat.Name,
			Confidence:   alt.Confidence,
		})
	}
	if len(alternatives) == 0 {
		alternatives = nil
	}
	r.Alternatives = alternatives
	return r
}
