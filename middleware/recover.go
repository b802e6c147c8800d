package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/accord/workflow"
)

// Recover returns middleware that recovers from panics in the executor
// chain. Panics are converted to errors and logged with a stack trace,
// so a misbehaving executor fails the task instead of the process.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, t *workflow.Task, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("task executor panicked",
					slog.String("spec_id", t.SpecID),
					slog.String("task_id", t.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic in task %s: %v", t.SpecID, r)
			}
		}()
		return next(ctx)
	}
}
