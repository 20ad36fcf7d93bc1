// Package cache provides process-wide, refreshable caches for slowly changing reference data.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Clock returns the current time. Tests substitute a controllable clock.
type Clock func() time.Time

// Loader fetches a fresh value for the cache.
type Loader[T any] func(ctx context.Context) (T, error)

// TTL holds a single value that is refreshed through its loader once it is older
// than the configured ttl or after Invalidate. Freshness is best effort: if the
// loader fails and a previous value exists, the previous value is served.
// Concurrent callers that find the value expired share one loader call.
type TTL[T any] struct {
	fetchedAt time.Time
	value     T
	loader    Loader[T]
	now       Clock
	logger    *slog.Logger
	flight    singleflight.Group
	name      string
	ttl       time.Duration
	mu        sync.Mutex
	gen       uint64 // bumped by Invalidate
	loaded    bool
	stale     bool
	refreshes int
}

// Option configures a TTL cache.
type Option func(*options)

type options struct {
	now    Clock
	logger *slog.Logger
}

// WithClock overrides the time source.
func WithClock(now Clock) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger used for refresh diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// NewTTL creates a cache named name (used in logs) that reloads through loader.
func NewTTL[T any](name string, ttl time.Duration, loader Loader[T], opts ...Option) *TTL[T] {
	o := options{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTL[T]{
		name:   name,
		ttl:    ttl,
		loader: loader,
		now:    o.now,
		logger: o.logger,
	}
}

// Get returns the cached value, refreshing it first when it has expired or was invalidated.
// An error is returned only when the refresh fails and nothing was ever loaded.
func (c *TTL[T]) Get(ctx context.Context) (T, error) {
	c.mu.Lock()
	if c.loaded && !c.stale && c.now().Sub(c.fetchedAt) < c.ttl {
		v := c.value
		c.mu.Unlock()
		return v, nil
	}
	gen := c.gen
	c.mu.Unlock()

	// Keyed by generation so a load started before Invalidate is not shared with later callers.
	res, err, _ := c.flight.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		return c.refresh(ctx, gen)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}

func (c *TTL[T]) refresh(ctx context.Context, gen uint64) (T, error) {
	value, err := c.loader(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshes++

	if err != nil {
		if c.loaded {
			c.logger.Warn("cache refresh failed, serving stale data",
				"cache", c.name,
				"age", c.now().Sub(c.fetchedAt),
				"error", err)
			return c.value, nil
		}
		var zero T
		return zero, fmt.Errorf("failed to load %s: %w", c.name, err)
	}

	c.value = value
	c.fetchedAt = c.now()
	c.loaded = true
	// An Invalidate that raced this load still wins.
	c.stale = c.gen != gen
	c.logger.Debug("cache refreshed", "cache", c.name)
	return value, nil
}

// Invalidate forces the next Get to reload. The current value is kept as a
// fallback in case that reload fails.
func (c *TTL[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale = true
	c.gen++
}

// Refreshes reports how many times the loader has been called.
func (c *TTL[T]) Refreshes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshes
}
