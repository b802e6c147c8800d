package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/accord/compliance"
	"github.com/xraph/accord/ledger"
	"github.com/xraph/accord/settlement"
	"github.com/xraph/accord/workflow"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type workflowStartedEntry struct {
	name string
	hook WorkflowStarted
}

type workflowCompletedEntry struct {
	name string
	hook WorkflowCompleted
}

type workflowFailedEntry struct {
	name string
	hook WorkflowFailed
}

type workflowCancelledEntry struct {
	name string
	hook WorkflowCancelled
}

type taskStartedEntry struct {
	name string
	hook TaskStarted
}

type taskCompletedEntry struct {
	name string
	hook TaskCompleted
}

type taskFailedEntry struct {
	name string
	hook TaskFailed
}

type taskRetryingEntry struct {
	name string
	hook TaskRetrying
}

type ledgerAppendedEntry struct {
	name string
	hook LedgerAppended
}

type blockSealedEntry struct {
	name string
	hook BlockSealed
}

type checkpointEvaluatedEntry struct {
	name string
	hook CheckpointEvaluated
}

type settlementTriggeredEntry struct {
	name string
	hook SettlementTriggered
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	workflowStarted     []workflowStartedEntry
	workflowCompleted   []workflowCompletedEntry
	workflowFailed      []workflowFailedEntry
	workflowCancelled   []workflowCancelledEntry
	taskStarted         []taskStartedEntry
	taskCompleted       []taskCompletedEntry
	taskFailed          []taskFailedEntry
	taskRetrying        []taskRetryingEntry
	ledgerAppended      []ledgerAppendedEntry
	blockSealed         []blockSealedEntry
	checkpointEvaluated []checkpointEvaluatedEntry
	settlementTriggered []settlementTriggeredEntry
	shutdown            []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(WorkflowStarted); ok {
		r.workflowStarted = append(r.workflowStarted, workflowStartedEntry{name, h})
	}
	if h, ok := e.(WorkflowCompleted); ok {
		r.workflowCompleted = append(r.workflowCompleted, workflowCompletedEntry{name, h})
	}
	if h, ok := e.(WorkflowFailed); ok {
		r.workflowFailed = append(r.workflowFailed, workflowFailedEntry{name, h})
	}
	if h, ok := e.(WorkflowCancelled); ok {
		r.workflowCancelled = append(r.workflowCancelled, workflowCancelledEntry{name, h})
	}
	if h, ok := e.(TaskStarted); ok {
		r.taskStarted = append(r.taskStarted, taskStartedEntry{name, h})
	}
	if h, ok := e.(TaskCompleted); ok {
		r.taskCompleted = append(r.taskCompleted, taskCompletedEntry{name, h})
	}
	if h, ok := e.(TaskFailed); ok {
		r.taskFailed = append(r.taskFailed, taskFailedEntry{name, h})
	}
	if h, ok := e.(TaskRetrying); ok {
		r.taskRetrying = append(r.taskRetrying, taskRetryingEntry{name, h})
	}
	if h, ok := e.(LedgerAppended); ok {
		r.ledgerAppended = append(r.ledgerAppended, ledgerAppendedEntry{name, h})
	}
	if h, ok := e.(BlockSealed); ok {
		r.blockSealed = append(r.blockSealed, blockSealedEntry{name, h})
	}
	if h, ok := e.(CheckpointEvaluated); ok {
		r.checkpointEvaluated = append(r.checkpointEvaluated, checkpointEvaluatedEntry{name, h})
	}
	if h, ok := e.(SettlementTriggered); ok {
		r.settlementTriggered = append(r.settlementTriggered, settlementTriggeredEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Workflow event emitters
// ──────────────────────────────────────────────────

// EmitWorkflowStarted notifies all extensions that implement
// WorkflowStarted.
func (r *Registry) EmitWorkflowStarted(ctx context.Context, e *workflow.Execution) {
	for _, entry := range r.workflowStarted {
		if err := entry.hook.OnWorkflowStarted(ctx, e); err != nil {
			r.logHookError("OnWorkflowStarted", entry.name, err)
		}
	}
}

// EmitWorkflowCompleted notifies all extensions that implement
// WorkflowCompleted.
func (r *Registry) EmitWorkflowCompleted(ctx context.Context, e *workflow.Execution, elapsed time.Duration) {
	for _, entry := range r.workflowCompleted {
		if err := entry.hook.OnWorkflowCompleted(ctx, e, elapsed); err != nil {
			r.logHookError("OnWorkflowCompleted", entry.name, err)
		}
	}
}

// EmitWorkflowFailed notifies all extensions that implement
// WorkflowFailed.
func (r *Registry) EmitWorkflowFailed(ctx context.Context, e *workflow.Execution, wfErr error) {
	for _, entry := range r.workflowFailed {
		if err := entry.hook.OnWorkflowFailed(ctx, e, wfErr); err != nil {
			r.logHookError("OnWorkflowFailed", entry.name, err)
		}
	}
}

// EmitWorkflowCancelled notifies all extensions that implement
// WorkflowCancelled.
func (r *Registry) EmitWorkflowCancelled(ctx context.Context, e *workflow.Execution) {
	for _, entry := range r.workflowCancelled {
		if err := entry.hook.OnWorkflowCancelled(ctx, e); err != nil {
			r.logHookError("OnWorkflowCancelled", entry.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Task event emitters
// ──────────────────────────────────────────────────

// EmitTaskStarted notifies all extensions that implement TaskStarted.
func (r *Registry) EmitTaskStarted(ctx context.Context, t *workflow.Task) {
	for _, entry := range r.taskStarted {
		if err := entry.hook.OnTaskStarted(ctx, t); err != nil {
			r.logHookError("OnTaskStarted", entry.name, err)
		}
	}
}

// EmitTaskCompleted notifies all extensions that implement
// TaskCompleted.
func (r *Registry) EmitTaskCompleted(ctx context.Context, t *workflow.Task, elapsed time.Duration) {
	for _, entry := range r.taskCompleted {
		if err := entry.hook.OnTaskCompleted(ctx, t, elapsed); err != nil {
			r.logHookError("OnTaskCompleted", entry.name, err)
		}
	}
}

// EmitTaskFailed notifies all extensions that implement TaskFailed.
func (r *Registry) EmitTaskFailed(ctx context.Context, t *workflow.Task, taskErr error) {
	for _, entry := range r.taskFailed {
		if err := entry.hook.OnTaskFailed(ctx, t, taskErr); err != nil {
			r.logHookError("OnTaskFailed", entry.name, err)
		}
	}
}

// EmitTaskRetrying notifies all extensions that implement TaskRetrying.
func (r *Registry) EmitTaskRetrying(ctx context.Context, t *workflow.Task, attempt int, nextRetryAt time.Time) {
	for _, entry := range r.taskRetrying {
		if err := entry.hook.OnTaskRetrying(ctx, t, attempt, nextRetryAt); err != nil {
			r.logHookError("OnTaskRetrying", entry.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Ledger and compliance emitters
// ──────────────────────────────────────────────────

// EmitLedgerAppended notifies all extensions that implement
// LedgerAppended.
func (r *Registry) EmitLedgerAppended(ctx context.Context, e *ledger.Event) {
	for _, entry := range r.ledgerAppended {
		if err := entry.hook.OnLedgerAppended(ctx, e); err != nil {
			r.logHookError("OnLedgerAppended", entry.name, err)
		}
	}
}

// EmitBlockSealed notifies all extensions that implement BlockSealed.
func (r *Registry) EmitBlockSealed(ctx context.Context, b *ledger.Block) {
	for _, entry := range r.blockSealed {
		if err := entry.hook.OnBlockSealed(ctx, b); err != nil {
			r.logHookError("OnBlockSealed", entry.name, err)
		}
	}
}

// EmitCheckpointEvaluated notifies all extensions that implement
// CheckpointEvaluated.
func (r *Registry) EmitCheckpointEvaluated(ctx context.Context, c *compliance.Checkpoint) {
	for _, entry := range r.checkpointEvaluated {
		if err := entry.hook.OnCheckpointEvaluated(ctx, c); err != nil {
			r.logHookError("OnCheckpointEvaluated", entry.name, err)
		}
	}
}

// EmitSettlementTriggered notifies all extensions that implement
// SettlementTriggered.
func (r *Registry) EmitSettlementTriggered(ctx context.Context, s *settlement.Signal) {
	for _, entry := range r.settlementTriggered {
		if err := entry.hook.OnSettlementTriggered(ctx, s); err != nil {
			r.logHookError("OnSettlementTriggered", entry.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, entry := range r.shutdown {
		if err := entry.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", entry.name, err)
		}
	}
}

// logHookError logs a hook failure. Extension errors never propagate to
// the caller: observability must not break orchestration.
func (r *Registry) logHookError(hook, name string, err error) {
	if r.logger == nil {
		return
	}
	r.logger.Error("extension hook failed",
		slog.String("hook", hook),
		slog.String("extension", name),
		slog.String("error", err.Error()),
	)
}
