package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/accord"
	"github.com/xraph/accord/id"
	"github.com/xraph/accord/ledger"
	"github.com/xraph/accord/workflow"
)

var errTaskTimeout = errors.New("engine: task exceeded declared timeout")

// ExecuteNextTasks computes the ready set for the execution's current
// snapshot and dispatches each ready task. It is idempotent: calling it
// again with no intervening completion dispatches nothing, because the
// first call moved every ready task out of PENDING.
func (eng *Engine) ExecuteNextTasks(ctx context.Context, executionID id.ExecutionID) ([]*workflow.Task, error) {
	mu := eng.locks.forExecution(executionID)
	mu.Lock()
	defer mu.Unlock()

	return eng.executeNextLocked(ctx, executionID)
}

func (eng *Engine) executeNextLocked(ctx context.Context, executionID id.ExecutionID) ([]*workflow.Task, error) {
	exec, err := eng.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec.Status != workflow.ExecutionRunning {
		return nil, nil
	}

	def, err := eng.store.GetDefinition(ctx, exec.DefinitionID)
	if err != nil {
		return nil, err
	}
	tasks, err := eng.store.TasksByExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	var dispatched []*workflow.Task
	for _, t := range workflow.ReadyTasks(tasks, def.Edges) {
		if err := t.Transition(workflow.TaskQueued); err != nil {
			return dispatched, err
		}
		if err := eng.store.UpdateTask(ctx, t); err != nil {
			return dispatched, err
		}
		if err := eng.dispatchLocked(ctx, exec, t); err != nil {
			return dispatched, err
		}
		dispatched = append(dispatched, t)
	}
	return dispatched, nil
}

// dispatchTask re-dispatches a QUEUED task (the retry path).
func (eng *Engine) dispatchTask(ctx context.Context, executionID id.ExecutionID, taskID id.TaskID) error {
	mu := eng.locks.forExecution(executionID)
	mu.Lock()
	defer mu.Unlock()

	exec, err := eng.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status != workflow.ExecutionRunning {
		return nil
	}
	t, err := eng.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status != workflow.TaskQueued {
		return nil
	}
	return eng.dispatchLocked(ctx, exec, t)
}

// CompleteTask records a successful task result and cascades: newly
// unblocked tasks are dispatched, and if this was the last live task
// the workflow completes, fires the settlement trigger, and appends
// workflow_completed. The task must be RUNNING or WAITING_INPUT;
// anything else (a duplicate delivery, a cancelled task's stale result)
// returns accord.ErrInvalidTransition and mutates nothing.
func (eng *Engine) CompleteTask(ctx context.Context, taskID id.TaskID, output json.RawMessage) error {
	t, err := eng.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	mu := eng.locks.forExecution(t.ExecutionID)
	mu.Lock()
	defer mu.Unlock()

	return eng.completeLocked(ctx, t.ExecutionID, taskID, output)
}

func (eng *Engine) completeLocked(ctx context.Context, executionID id.ExecutionID, taskID id.TaskID, output json.RawMessage) error {
	t, err := eng.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status != workflow.TaskRunning && t.Status != workflow.TaskWaitingInput {
		return invalidTaskState(t, "complete")
	}
	if err := t.Transition(workflow.TaskCompleted); err != nil {
		return err
	}

	now := time.Now().UTC()
	t.Output = output
	t.CompletedAt = &now
	t.NextRetryAt = nil
	t.DeadlineAt = nil
	if err := eng.store.UpdateTask(ctx, t); err != nil {
		return err
	}

	if _, err := eng.ledger.Append(ctx, ledger.EventTaskCompleted,
		map[string]any{"spec_id": t.SpecID, "attempt": t.AttemptCount},
		ledger.WithWorkflow(executionID), ledger.WithTask(t.ID),
	); err != nil {
		return err
	}
	elapsed := time.Duration(0)
	if t.StartedAt != nil {
		elapsed = now.Sub(*t.StartedAt)
	}
	eng.extensions.EmitTaskCompleted(ctx, t, elapsed)

	exec, err := eng.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	exec.CompletedTasks++
	exec.Touch()
	if err := eng.store.UpdateExecution(ctx, exec); err != nil {
		return err
	}

	// A decision task prunes branches by naming spec IDs in a "skip"
	// array; skips then cascade through everything downstream.
	if t.Type == workflow.TaskTypeDecision {
		if err := eng.applyDecisionSkips(ctx, exec, t); err != nil {
			return err
		}
	}

	if _, err := eng.executeNextLocked(ctx, executionID); err != nil {
		return err
	}
	return eng.maybeCompleteLocked(ctx, executionID)
}

// FailTask records a failed task attempt. With retry budget remaining
// the task returns to QUEUED behind an exponential backoff delay;
// otherwise the task goes terminal FAILED and the owning workflow fails
// with it.
func (eng *Engine) FailTask(ctx context.Context, taskID id.TaskID, taskErr error) error {
	return eng.failTask(ctx, taskID, taskErr, false)
}

func (eng *Engine) failTask(ctx context.Context, taskID id.TaskID, taskErr error, timedOut bool) error {
	t, err := eng.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	mu := eng.locks.forExecution(t.ExecutionID)
	mu.Lock()
	defer mu.Unlock()

	t, err = eng.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status != workflow.TaskRunning && t.Status != workflow.TaskWaitingInput {
		return invalidTaskState(t, "fail")
	}

	if t.RetryBudgetLeft() {
		return eng.scheduleRetryLocked(ctx, t, taskErr, timedOut)
	}
	return eng.failTerminalLocked(ctx, t, taskErr, timedOut)
}

func (eng *Engine) scheduleRetryLocked(ctx context.Context, t *workflow.Task, taskErr error, timedOut bool) error {
	if err := t.Transition(workflow.TaskQueued); err != nil {
		return err
	}

	delay := eng.backoff.Delay(t.AttemptCount)
	next := time.Now().UTC().Add(delay)
	t.NextRetryAt = &next
	t.DeadlineAt = nil
	t.ErrorMessage = taskErr.Error()
	if err := eng.store.UpdateTask(ctx, t); err != nil {
		return err
	}

	if _, err := eng.ledger.Append(ctx, ledger.EventTaskRetried,
		map[string]any{
			"spec_id": t.SpecID,
			"attempt": t.AttemptCount,
			"error":   taskErr.Error(),
			"delay":   delay.String(),
		},
		ledger.WithWorkflow(t.ExecutionID), ledger.WithTask(t.ID),
	); err != nil {
		return err
	}
	eng.extensions.EmitTaskRetrying(ctx, t, t.AttemptCount, next)

	eng.logger.Info("task retry scheduled",
		slog.String("task_id", t.ID.String()),
		slog.Int("attempt", t.AttemptCount),
		slog.Duration("delay", delay),
		slog.Bool("timed_out", timedOut),
	)
	return nil
}

func (eng *Engine) failTerminalLocked(ctx context.Context, t *workflow.Task, taskErr error, timedOut bool) error {
	if err := t.Transition(workflow.TaskFailed); err != nil {
		return err
	}

	now := time.Now().UTC()
	t.ErrorMessage = taskErr.Error()
	t.CompletedAt = &now
	t.NextRetryAt = nil
	t.DeadlineAt = nil
	if err := eng.store.UpdateTask(ctx, t); err != nil {
		return err
	}

	eventType := ledger.EventTaskFailed
	if timedOut {
		eventType = ledger.EventTaskTimedOut
	}
	if _, err := eng.ledger.Append(ctx, eventType,
		map[string]any{"spec_id": t.SpecID, "attempt": t.AttemptCount, "error": taskErr.Error()},
		ledger.WithWorkflow(t.ExecutionID), ledger.WithTask(t.ID),
	); err != nil {
		return err
	}
	eng.extensions.EmitTaskFailed(ctx, t, taskErr)

	return eng.failWorkflowLocked(ctx, t.ExecutionID, fmt.Errorf("task %s failed: %w", t.SpecID, taskErr))
}

// failWorkflowLocked drives the owning execution to FAILED. One
// permanently failed task fails the whole workflow; there is no
// partial-success terminal state.
func (eng *Engine) failWorkflowLocked(ctx context.Context, executionID id.ExecutionID, cause error) error {
	exec, err := eng.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status.Terminal() {
		return nil
	}
	// A paused execution holds task failures too: the failure stays on
	// the task and ResumeWorkflow propagates it to the workflow.
	if exec.Status == workflow.ExecutionPaused {
		eng.logger.Info("workflow failure deferred until resume",
			slog.String("execution_id", executionID.String()),
			slog.String("error", cause.Error()),
		)
		return nil
	}
	if err := exec.Transition(workflow.ExecutionFailed); err != nil {
		return err
	}

	now := time.Now().UTC()
	exec.Error = cause.Error()
	exec.FailedTasks++
	exec.CompletedAt = &now
	if err := eng.store.UpdateExecution(ctx, exec); err != nil {
		return err
	}

	if _, err := eng.ledger.Append(ctx, ledger.EventWorkflowFailed,
		map[string]any{"error": cause.Error()},
		ledger.WithWorkflow(executionID),
	); err != nil {
		return err
	}
	eng.extensions.EmitWorkflowFailed(ctx, exec, cause)

	eng.logger.Error("workflow failed",
		slog.String("execution_id", executionID.String()),
		slog.String("error", cause.Error()),
	)
	return nil
}

// ResumeTask applies an external approval decision to a WAITING_INPUT
// task. Approval completes the task with the decision payload as
// output; rejection fails the task terminally — a human "no" is not a
// transient error and consumes no retry budget semantics.
func (eng *Engine) ResumeTask(ctx context.Context, taskID id.TaskID, approved bool, payload json.RawMessage) error {
	t, err := eng.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	mu := eng.locks.forExecution(t.ExecutionID)
	mu.Lock()
	defer mu.Unlock()

	t, err = eng.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status != workflow.TaskWaitingInput {
		return invalidTaskState(t, "resume")
	}

	exec, err := eng.store.GetExecution(ctx, t.ExecutionID)
	if err != nil {
		return err
	}
	if exec.Status == workflow.ExecutionWaitingApproval {
		if err := exec.Transition(workflow.ExecutionRunning); err != nil {
			return err
		}
		if err := eng.store.UpdateExecution(ctx, exec); err != nil {
			return err
		}
		if _, err := eng.ledger.Append(ctx, ledger.EventWorkflowResumed, nil,
			ledger.WithWorkflow(exec.ID)); err != nil {
			return err
		}
	}

	if err := t.Transition(workflow.TaskRunning); err != nil {
		return err
	}
	if err := eng.store.UpdateTask(ctx, t); err != nil {
		return err
	}

	if approved {
		return eng.completeLocked(ctx, t.ExecutionID, t.ID, payload)
	}
	return eng.failTerminalLocked(ctx, t, errors.New("approval rejected"), false)
}

// applyDecisionSkips reads the "skip" array from a decision task's
// output and cascades SKIPPED through the named branches: a PENDING
// task is skipped when it is named directly or when any of its
// dependencies was skipped.
func (eng *Engine) applyDecisionSkips(ctx context.Context, exec *workflow.Execution, decision *workflow.Task) error {
	if len(decision.Output) == 0 {
		return nil
	}
	var out struct {
		Skip []string `json:"skip"`
	}
	if err := json.Unmarshal(decision.Output, &out); err != nil || len(out.Skip) == 0 {
		return nil
	}

	def, err := eng.store.GetDefinition(ctx, exec.DefinitionID)
	if err != nil {
		return err
	}
	tasks, err := eng.store.TasksByExecution(ctx, exec.ID)
	if err != nil {
		return err
	}

	skipSet := make(map[string]bool, len(out.Skip))
	for _, specID := range out.Skip {
		skipSet[specID] = true
		for _, downstream := range workflow.Downstream(specID, def.Edges) {
			skipSet[downstream] = true
		}
	}

	for _, t := range tasks {
		if !skipSet[t.SpecID] || t.Status != workflow.TaskPending {
			continue
		}
		if err := t.Transition(workflow.TaskSkipped); err != nil {
			return err
		}
		if err := eng.store.UpdateTask(ctx, t); err != nil {
			return err
		}
		if _, err := eng.ledger.Append(ctx, ledger.EventTaskSkipped,
			map[string]any{"spec_id": t.SpecID, "decided_by": decision.SpecID},
			ledger.WithWorkflow(exec.ID), ledger.WithTask(t.ID),
		); err != nil {
			return err
		}
	}
	return nil
}

// maybeCompleteLocked finishes the workflow once every task is
// COMPLETED or SKIPPED. The merged per-spec outputs become the
// execution's output, and the settlement trigger fires after the
// workflow_completed event is durably in the ledger.
func (eng *Engine) maybeCompleteLocked(ctx context.Context, executionID id.ExecutionID) error {
	exec, err := eng.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status != workflow.ExecutionRunning {
		return nil
	}

	tasks, err := eng.store.TasksByExecution(ctx, executionID)
	if err != nil {
		return err
	}
	outputs := make(map[string]json.RawMessage)
	for _, t := range tasks {
		switch t.Status {
		case workflow.TaskCompleted:
			if len(t.Output) > 0 {
				outputs[t.SpecID] = t.Output
			}
		case workflow.TaskSkipped:
			// Skipped tasks contribute nothing.
		default:
			return nil
		}
	}

	merged, err := json.Marshal(outputs)
	if err != nil {
		return err
	}

	if err := exec.Transition(workflow.ExecutionCompleted); err != nil {
		return err
	}
	now := time.Now().UTC()
	exec.Output = merged
	exec.CompletedAt = &now
	if err := eng.store.UpdateExecution(ctx, exec); err != nil {
		return err
	}

	if _, err := eng.ledger.Append(ctx, ledger.EventWorkflowCompleted,
		map[string]any{"completed_tasks": exec.CompletedTasks, "total_tasks": exec.TotalTasks},
		ledger.WithWorkflow(executionID),
	); err != nil {
		return err
	}

	elapsed := time.Duration(0)
	if exec.StartedAt != nil {
		elapsed = now.Sub(*exec.StartedAt)
	}
	eng.extensions.EmitWorkflowCompleted(ctx, exec, elapsed)

	if eng.settlement != nil {
		eng.settlement.OnWorkflowCompleted(ctx, executionID, merged)
	}

	eng.logger.Info("workflow completed",
		slog.String("execution_id", executionID.String()),
		slog.Int("completed_tasks", exec.CompletedTasks),
	)
	return nil
}

func invalidTaskState(t *workflow.Task, op string) error {
	return fmt.Errorf("engine: cannot %s task %s in status %s: %w",
		op, t.ID, t.Status, accord.ErrInvalidTransition)
}
