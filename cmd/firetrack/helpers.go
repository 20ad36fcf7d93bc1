package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Veraticus/firetrack/internal/cache"
	"github.com/Veraticus/firetrack/internal/cli"
	"github.com/Veraticus/firetrack/internal/common"
	"github.com/Veraticus/firetrack/internal/config"
	"github.com/Veraticus/firetrack/internal/engine"
	"github.com/Veraticus/firetrack/internal/learning"
	"github.com/Veraticus/firetrack/internal/llm"
	"github.com/Veraticus/firetrack/internal/model"
	"github.com/Veraticus/firetrack/internal/rules"
	"github.com/Veraticus/firetrack/internal/service"
	"github.com/Veraticus/firetrack/internal/similarity"
	"github.com/Veraticus/firetrack/internal/storage"
)

// initStorage opens the configured database and brings its schema up to date.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(settings.Database.Path)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// closeQuietly closes c and logs instead of returning a failure.
func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		slog.Error("failed to close", "error", err)
	}
}

// app wires the categorisation core over one store.
type app struct {
	store      *storage.SQLiteStorage
	matcher    *rules.Matcher
	rules      *rules.Manager
	classifier *llm.Classifier
	usage      *llm.UsageTracker
	engine     *engine.Engine
	learning   *learning.Loop
	closers    []io.Closer
}

func newApp(ctx context.Context, cfg config.Settings) (*app, error) {
	store, err := initStorage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	logger := slog.Default()
	a := &app{
		store:   store,
		matcher: rules.NewMatcher(store, cfg.Cache.RulesTTL, logger),
		usage:   llm.NewUsageTracker(store, cfg.LLM.DailyLimit, logger),
	}
	a.rules = rules.NewManager(store, store, a.matcher, logger)
	a.learning = learning.NewLoop(store, a.rules, store, cfg.Learning.MinCorrections, logger)

	classifier, closer, err := newClassifier(ctx, cfg.LLM, cfg.Cache, store, a.usage)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	a.classifier = classifier

	// A nil *llm.Classifier must not reach the engine as a non-nil interface.
	var ai engine.AIClassifier
	if classifier != nil {
		ai = classifier
	}
	a.engine = engine.New(a.matcher, similarity.NewLookup(store, logger), ai, logger)

	return a, nil
}

// newClassifier builds the AI fallback, or returns nil when it is disabled or has no key.
func newClassifier(ctx context.Context, cfg config.LLMSettings, caches config.CacheSettings, store service.CategoryStore, usage *llm.UsageTracker) (*llm.Classifier, io.Closer, error) {
	if !cfg.Enabled {
		slog.Debug("AI categorisation disabled by configuration")
		return nil, nil, nil
	}
	if cfg.APIKey == "" {
		slog.Info("No API key configured, AI categorisation unavailable", "provider", cfg.Provider)
		return nil, nil, nil
	}

	client, err := llm.NewClient(ctx, llm.Config{
		Provider:    cfg.Provider,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Timeout:     cfg.Timeout,
		RateLimit:   cfg.RateLimit,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return nil, nil, err
	}

	closer, _ := client.(io.Closer)
	classifier := llm.NewClassifier(client, store, usage, llm.ClassifierConfig{
		Retry:       common.RetryOptions{InitialDelay: cfg.RetryDelay},
		Timeout:     cfg.Timeout,
		CategoryTTL: caches.CategoriesTTL,
	}, slog.Default(), cache.WithLogger(slog.Default()))
	return classifier, closer, nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			slog.Error("failed to close client", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		slog.Error("failed to close storage", "error", err)
	}
}

// resolveCategory finds a category by name or id, suggesting the nearest name on a miss.
func resolveCategory(ctx context.Context, store service.CategoryStore, nameOrID string) (*model.Category, error) {
	cat, err := store.GetCategoryByName(ctx, nameOrID)
	if err == nil {
		return cat, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up category: %w", err)
	}

	if cat, err := store.GetCategory(ctx, nameOrID); err == nil {
		return cat, nil
	}

	categories, err := store.GetCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.Name
	}

	msg := fmt.Sprintf("unknown category %q", nameOrID)
	if suggestion, ok := cli.ClosestMatch(nameOrID, names); ok {
		msg += fmt.Sprintf(" (did you mean %q?)", suggestion)
	}
	return nil, common.NewUserError(msg, common.ErrNotFound)
}
