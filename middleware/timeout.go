package middleware

import (
	"context"
	"log/slog"

	"github.com/xraph/accord/workflow"
)

// Timeout returns middleware that enforces a per-task execution
// deadline. If the task declares a non-zero Timeout, a
// context.WithTimeout wraps the executor call. When the deadline is
// exceeded the context is cancelled and the executor should return
// context.DeadlineExceeded, which flows into normal retry policy.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, t *workflow.Task, next Handler) error {
		if t.Timeout > 0 {
			logger.Debug("task timeout set",
				slog.String("task_id", t.ID.String()),
				slog.Duration("timeout", t.Timeout),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t.Timeout)
			defer cancel()
		}
		return next(ctx)
	}
}
