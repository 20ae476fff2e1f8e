package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Recover returns middleware that recovers from panics in the handler
// chain. Panics are converted to errors and logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, sc *StepContext, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("step handler panicked",
					slog.String("run_id", sc.Run.ID.String()),
					slog.String("step_id", sc.Step.ID.String()),
					slog.String("action", string(sc.Step.Action)),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic in step %s: %v", sc.Step.ID, r)
			}
		}()
		return next(ctx)
	}
}
