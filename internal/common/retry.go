package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrRateLimit is returned or wrapped when a provider throttles a call.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrMaxRetries wraps the last failure once WithRetry runs out of attempts.
	ErrMaxRetries = errors.New("max retries exceeded")
)

// RetryOptions configures WithRetry. Zero fields take the defaults below.
type RetryOptions struct {
	MaxAttempts  int           // 3
	InitialDelay time.Duration // 100ms
	MaxDelay     time.Duration // 30s
	Multiplier   float64       // 2
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = 100 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.Multiplier <= 0 {
		o.Multiplier = 2
	}
	return o
}

func (o RetryOptions) backoff(d time.Duration) time.Duration {
	return min(time.Duration(float64(d)*o.Multiplier), o.MaxDelay)
}

// RetryableError tags an error as worth another attempt or not.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Terminal marks err as not worth retrying.
func Terminal(err error) error { return &RetryableError{Err: err} }

// Retryable marks err as worth retrying. Untagged errors are retried too.
func Retryable(err error) error { return &RetryableError{Err: err, Retryable: true} }

// terminalCause returns the wrapped error when err was marked Terminal, else nil.
func terminalCause(err error) error {
	var tagged *RetryableError
	if errors.As(err, &tagged) && !tagged.Retryable {
		return tagged.Err
	}
	return nil
}

// WithRetry runs op until it succeeds, returns a Terminal error, the context ends,
// or the attempts run out. A Terminal error comes back unwrapped. Exhaustion
// returns ErrMaxRetries wrapping the final failure.
func WithRetry(ctx context.Context, op func() error, opts RetryOptions) error {
	opts = opts.withDefaults()
	delay := opts.InitialDelay

	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if cause := terminalCause(err); cause != nil {
			return cause
		}
		if attempt >= opts.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, attempt, err)
		}

		slog.Warn("Retrying after failure", "attempt", attempt, "of", opts.MaxAttempts, "wait", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = opts.backoff(delay)
	}
}
