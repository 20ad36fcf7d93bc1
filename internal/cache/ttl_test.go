package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func TestTTL_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("caches until expiry", func(t *testing.T) {
		clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
		calls := 0
		c := NewTTL("numbers", 5*time.Minute, func(context.Context) (int, error) {
			calls++
			return calls, nil
		}, WithClock(clock.Now))

		v, err := c.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, v)

		clock.Advance(4 * time.Minute)
		v, err = c.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, v)

		clock.Advance(time.Minute)
		v, err = c.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, v)
		assert.Equal(t, 2, c.Refreshes())
	})

	t.Run("invalidate forces a single refetch", func(t *testing.T) {
		calls := 0
		c := NewTTL("numbers", time.Hour, func(context.Context) (int, error) {
			calls++
			return calls, nil
		})

		_, err := c.Get(ctx)
		require.NoError(t, err)

		c.Invalidate()
		first, err := c.Get(ctx)
		require.NoError(t, err)
		second, err := c.Get(ctx)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 2, c.Refreshes())
	})

	t.Run("serves stale value when refresh fails", func(t *testing.T) {
		clock := &fakeClock{now: time.Now()}
		fail := false
		c := NewTTL("words", time.Minute, func(context.Context) (string, error) {
			if fail {
				return "", errors.New("database unavailable")
			}
			return "fresh", nil
		}, WithClock(clock.Now))

		_, err := c.Get(ctx)
		require.NoError(t, err)

		fail = true
		clock.Advance(2 * time.Minute)
		v, err := c.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, "fresh", v)
	})

	t.Run("errors when nothing was ever loaded", func(t *testing.T) {
		c := NewTTL("words", time.Minute, func(context.Context) (string, error) {
			return "", errors.New("database unavailable")
		})

		_, err := c.Get(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load words")
	})
}

func TestTTL_ConcurrentGetsShareOneLoad(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	c := NewTTL("slow", time.Hour, func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	})

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Get(context.Background())
			assert.NoError(t, err)
			results[i] = v
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, 42, v)
	}
	assert.LessOrEqual(t, c.Refreshes(), 2)
}

func TestTTL_InvalidateDuringLoad(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	c := NewTTL("rules", time.Hour, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			close(started)
			<-release
		}
		return calls, nil
	})

	done := make(chan int)
	go func() {
		v, _ := c.Get(ctx)
		done <- v
	}()
	<-started
	c.Invalidate()
	close(release)
	assert.Equal(t, 1, <-done)

	v, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v, "the racing invalidation forces another load")
}
