// Package ext defines the extension system for Accord.
// Extensions are notified of lifecycle events (workflow started, task
// completed, checkpoint evaluated, etc.) and can react to them —
// logging, metrics, tracing, etc.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/accord/compliance"
	"github.com/xraph/accord/ledger"
	"github.com/xraph/accord/settlement"
	"github.com/xraph/accord/workflow"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Workflow lifecycle hooks
// ──────────────────────────────────────────────────

// WorkflowStarted is called when a workflow execution begins.
type WorkflowStarted interface {
	OnWorkflowStarted(ctx context.Context, e *workflow.Execution) error
}

// WorkflowCompleted is called after a workflow execution finishes
// successfully.
type WorkflowCompleted interface {
	OnWorkflowCompleted(ctx context.Context, e *workflow.Execution, elapsed time.Duration) error
}

// WorkflowFailed is called when a workflow execution fails terminally.
type WorkflowFailed interface {
	OnWorkflowFailed(ctx context.Context, e *workflow.Execution, err error) error
}

// WorkflowCancelled is called when a workflow execution is cancelled.
type WorkflowCancelled interface {
	OnWorkflowCancelled(ctx context.Context, e *workflow.Execution) error
}

// ──────────────────────────────────────────────────
// Task lifecycle hooks
// ──────────────────────────────────────────────────

// TaskStarted is called when a task is dispatched to the executor.
type TaskStarted interface {
	OnTaskStarted(ctx context.Context, t *workflow.Task) error
}

// TaskCompleted is called after a task finishes successfully.
type TaskCompleted interface {
	OnTaskCompleted(ctx context.Context, t *workflow.Task, elapsed time.Duration) error
}

// TaskFailed is called when a task fails terminally (no more retries).
type TaskFailed interface {
	OnTaskFailed(ctx context.Context, t *workflow.Task, err error) error
}

// TaskRetrying is called when a task fails but is scheduled for retry.
type TaskRetrying interface {
	OnTaskRetrying(ctx context.Context, t *workflow.Task, attempt int, nextRetryAt time.Time) error
}

// ──────────────────────────────────────────────────
// Ledger and compliance hooks
// ──────────────────────────────────────────────────

// LedgerAppended is called after an event is committed to the ledger.
type LedgerAppended interface {
	OnLedgerAppended(ctx context.Context, e *ledger.Event) error
}

// BlockSealed is called after a verification block is sealed.
type BlockSealed interface {
	OnBlockSealed(ctx context.Context, b *ledger.Block) error
}

// CheckpointEvaluated is called after a compliance checkpoint is
// evaluated, pass or fail.
type CheckpointEvaluated interface {
	OnCheckpointEvaluated(ctx context.Context, c *compliance.Checkpoint) error
}

// SettlementTriggered is called after a workflow completion produces a
// settlement signal.
type SettlementTriggered interface {
	OnSettlementTriggered(ctx context.Context, s *settlement.Signal) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
