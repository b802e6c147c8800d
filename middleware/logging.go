package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/accord/workflow"
)

// Logging returns middleware that logs task dispatch and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, t *workflow.Task, next Handler) error {
		logger.Info("task dispatched",
			slog.String("spec_id", t.SpecID),
			slog.String("task_id", t.ID.String()),
			slog.String("type", string(t.Type)),
			slog.Int("attempt", t.AttemptCount),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("task attempt failed",
				slog.String("spec_id", t.SpecID),
				slog.String("task_id", t.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("task attempt completed",
				slog.String("spec_id", t.SpecID),
				slog.String("task_id", t.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
