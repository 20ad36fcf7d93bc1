package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter spaces provider calls to requestsPerMinute, allowing a burst of the same size.
type rateLimiter struct {
	lim *rate.Limiter
}

func newRateLimiter(requestsPerMinute int) *rateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	every := rate.Every(time.Minute / time.Duration(requestsPerMinute))
	return &rateLimiter{lim: rate.NewLimiter(every, requestsPerMinute)}
}

// wait blocks until the next call may go out or ctx ends. When the next slot lies
// beyond ctx's deadline it fails at once with a timeout.
func (rl *rateLimiter) wait(ctx context.Context) error {
	err := rl.lim.Wait(ctx)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("rate limiter canceled: %w", ctx.Err())
	default:
		if _, ok := ctx.Deadline(); ok {
			return newError(KindTimeout, "no request slot before the deadline", err)
		}
		return fmt.Errorf("rate limiter: %w", err)
	}
}
