package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that logs step start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, sc *StepContext, next Handler) error {
		logger.Info("step started",
			slog.String("run_id", sc.Run.ID.String()),
			slog.String("step_id", sc.Step.ID.String()),
			slog.String("action", string(sc.Step.Action)),
			slog.String("target", sc.Step.Target),
			slog.Int("attempt", sc.Attempt),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("step failed",
				slog.String("run_id", sc.Run.ID.String()),
				slog.String("step_id", sc.Step.ID.String()),
				slog.String("action", string(sc.Step.Action)),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("step completed",
				slog.String("run_id", sc.Run.ID.String()),
				slog.String("step_id", sc.Step.ID.String()),
				slog.String("action", string(sc.Step.Action)),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
