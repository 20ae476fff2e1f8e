package middleware

import (
	"context"
	"time"
)

// Timeout returns middleware that enforces a per-step execution
// deadline. The step's timeout-ms param overrides the fallback; when
// the deadline is exceeded the context is cancelled and the handler
// should return context.DeadlineExceeded.
func Timeout(fallback time.Duration) Middleware {
	return func(ctx context.Context, sc *StepContext, next Handler) error {
		if d := sc.Step.Timeout(fallback); d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
