package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fastRetry(attempts int) RetryOptions {
	return RetryOptions{MaxAttempts: attempts, InitialDelay: time.Millisecond}
}

func TestWithRetry(t *testing.T) {
	tests := []struct {
		wantErr   error
		failures  []error
		name      string
		attempts  int
		wantCalls int
	}{
		{
			name:      "succeeds first time",
			attempts:  3,
			wantCalls: 1,
		},
		{
			name:      "succeeds after a retry",
			failures:  []error{errFlaky},
			attempts:  3,
			wantCalls: 2,
		},
		{
			name:      "terminal error stops immediately",
			failures:  []error{Terminal(ErrInvalidPattern)},
			attempts:  3,
			wantCalls: 1,
			wantErr:   ErrInvalidPattern,
		},
		{
			name:      "gives up after max attempts",
			failures:  []error{errFlaky, errFlaky},
			attempts:  2,
			wantCalls: 2,
			wantErr:   ErrMaxRetries,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := WithRetry(context.Background(), func() error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			}, fastRetry(tt.attempts))

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestWithRetry_ExhaustedKeepsLastError(t *testing.T) {
	err := WithRetry(context.Background(), func() error { return Retryable(errFlaky) }, fastRetry(2))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRetries)
	assert.ErrorIs(t, err, errFlaky)

	var re *RetryableError
	assert.ErrorAs(t, err, &re)
}

func TestWithRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := WithRetry(ctx, func() error {
		calls++
		cancel()
		return errFlaky
	}, RetryOptions{MaxAttempts: 5, InitialDelay: time.Hour})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
