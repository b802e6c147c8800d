package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/accord"
	"github.com/xraph/accord/id"
	"github.com/xraph/accord/ledger"
	"github.com/xraph/accord/workflow"
)

// CreateDefinition validates and persists a workflow definition. The
// DAG is checked here, once; a stored definition is structurally sound
// for every execution that follows.
func (eng *Engine) CreateDefinition(ctx context.Context, name string, tasks []workflow.TaskSpec, edges []workflow.Edge) (*workflow.Definition, error) {
	d := &workflow.Definition{
		Entity: accord.NewEntity(),
		ID:     id.NewDefinitionID(),
		Name:   name,
		Active: true,
		Tasks:  tasks,
		Edges:  edges,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := eng.store.CreateDefinition(ctx, d); err != nil {
		return nil, err
	}

	eng.logger.Info("definition created",
		slog.String("definition_id", d.ID.String()),
		slog.String("name", name),
		slog.Int("tasks", len(tasks)),
		slog.Int("edges", len(edges)),
	)
	return d, nil
}

// GetDefinition retrieves a definition by ID.
func (eng *Engine) GetDefinition(ctx context.Context, definitionID id.DefinitionID) (*workflow.Definition, error) {
	return eng.store.GetDefinition(ctx, definitionID)
}

// SetDefinitionActive toggles whether new executions may start from
// the definition. In-flight executions are unaffected.
func (eng *Engine) SetDefinitionActive(ctx context.Context, definitionID id.DefinitionID, active bool) error {
	d, err := eng.store.GetDefinition(ctx, definitionID)
	if err != nil {
		return err
	}
	d.Active = active
	d.Touch()
	return eng.store.UpdateDefinition(ctx, d)
}

// StartWorkflow instantiates an execution from a definition: the
// execution starts RUNNING, one task per spec is materialized in
// PENDING, a workflow_started event is appended, and the first batch of
// ready tasks is dispatched before StartWorkflow returns.
func (eng *Engine) StartWorkflow(ctx context.Context, definitionID id.DefinitionID, input json.RawMessage) (*workflow.Execution, error) {
	d, err := eng.store.GetDefinition(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	if !d.Active {
		return nil, fmt.Errorf("engine: definition %s is disabled: %w", definitionID, accord.ErrInactiveDefinition)
	}

	now := time.Now().UTC()
	exec := &workflow.Execution{
		Entity:       accord.NewEntity(),
		ID:           id.NewExecutionID(),
		DefinitionID: d.ID,
		Status:       workflow.ExecutionRunning,
		Input:        input,
		TotalTasks:   len(d.Tasks),
		StartedAt:    &now,
	}
	if err := eng.store.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}

	for _, spec := range d.Tasks {
		// Specs that declare no retry budget or timeout inherit the
		// engine-wide defaults.
		if spec.MaxRetries == 0 {
			spec.MaxRetries = eng.defaultMaxRetries
		}
		if spec.Timeout == 0 {
			spec.Timeout = eng.defaultTaskTimeout
		}
		if err := eng.store.CreateTask(ctx, workflow.NewTask(exec.ID, spec)); err != nil {
			return nil, err
		}
	}

	if _, err := eng.ledger.Append(ctx, ledger.EventWorkflowStarted,
		map[string]any{"definition_id": d.ID.String(), "name": d.Name, "total_tasks": len(d.Tasks)},
		ledger.WithWorkflow(exec.ID),
	); err != nil {
		return nil, err
	}
	eng.extensions.EmitWorkflowStarted(ctx, exec)

	eng.logger.Info("workflow started",
		slog.String("execution_id", exec.ID.String()),
		slog.String("definition", d.Name),
	)

	if _, err := eng.ExecuteNextTasks(ctx, exec.ID); err != nil {
		return nil, err
	}
	return exec, nil
}

// GetExecution retrieves an execution by ID.
func (eng *Engine) GetExecution(ctx context.Context, executionID id.ExecutionID) (*workflow.Execution, error) {
	return eng.store.GetExecution(ctx, executionID)
}

// GetTask retrieves a task by ID.
func (eng *Engine) GetTask(ctx context.Context, taskID id.TaskID) (*workflow.Task, error) {
	return eng.store.GetTask(ctx, taskID)
}

// TasksByExecution lists an execution's tasks.
func (eng *Engine) TasksByExecution(ctx context.Context, executionID id.ExecutionID) ([]*workflow.Task, error) {
	return eng.store.TasksByExecution(ctx, executionID)
}

// PauseWorkflow suspends a running execution. Paused executions
// dispatch no new tasks; in-flight executor calls finish normally and
// their results are held by the task state machine until resume.
func (eng *Engine) PauseWorkflow(ctx context.Context, executionID id.ExecutionID) error {
	mu := eng.locks.forExecution(executionID)
	mu.Lock()
	defer mu.Unlock()

	exec, err := eng.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if err := exec.Transition(workflow.ExecutionPaused); err != nil {
		return err
	}
	if err := eng.store.UpdateExecution(ctx, exec); err != nil {
		return err
	}

	_, err = eng.ledger.Append(ctx, ledger.EventWorkflowPaused, nil, ledger.WithWorkflow(executionID))
	return err
}

// ResumeWorkflow returns a paused execution to RUNNING and settles
// whatever happened while it was suspended: task results that landed
// under pause were recorded on the tasks but could not advance the
// execution, so a terminally failed task now fails the workflow, newly
// ready tasks are dispatched, and the completion gate is re-checked.
func (eng *Engine) ResumeWorkflow(ctx context.Context, executionID id.ExecutionID) error {
	mu := eng.locks.forExecution(executionID)
	mu.Lock()
	defer mu.Unlock()

	exec, err := eng.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status != workflow.ExecutionPaused {
		return fmt.Errorf("engine: execution %s is %s, not paused: %w", executionID, exec.Status, accord.ErrInvalidTransition)
	}
	if err := exec.Transition(workflow.ExecutionRunning); err != nil {
		return err
	}
	if err := eng.store.UpdateExecution(ctx, exec); err != nil {
		return err
	}
	if _, err := eng.ledger.Append(ctx, ledger.EventWorkflowResumed, nil, ledger.WithWorkflow(executionID)); err != nil {
		return err
	}

	tasks, err := eng.store.TasksByExecution(ctx, executionID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if t.Status == workflow.TaskFailed {
			return eng.failWorkflowLocked(ctx, executionID,
				fmt.Errorf("task %s failed: %s", t.SpecID, t.ErrorMessage))
		}
	}

	if _, err := eng.executeNextLocked(ctx, executionID); err != nil {
		return err
	}
	return eng.maybeCompleteLocked(ctx, executionID)
}

// CancelWorkflow transitions the execution and every non-terminal task
// to CANCELLED and appends a workflow_cancelled event. Abandonment of
// in-flight executor calls is best-effort: an already-started agent
// call is not interrupted, but its eventual result lands on a cancelled
// task and is discarded by the state machine.
func (eng *Engine) CancelWorkflow(ctx context.Context, executionID id.ExecutionID) error {
	mu := eng.locks.forExecution(executionID)
	mu.Lock()
	defer mu.Unlock()

	exec, err := eng.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if err := exec.Transition(workflow.ExecutionCancelled); err != nil {
		return err
	}

	tasks, err := eng.store.TasksByExecution(ctx, executionID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if t.Status.Terminal() {
			continue
		}
		if err := t.Transition(workflow.TaskCancelled); err != nil {
			return err
		}
		if err := eng.store.UpdateTask(ctx, t); err != nil {
			return err
		}
		if _, err := eng.ledger.Append(ctx, ledger.EventTaskCancelled,
			map[string]any{"spec_id": t.SpecID},
			ledger.WithWorkflow(executionID), ledger.WithTask(t.ID),
		); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	exec.CompletedAt = &now
	if err := eng.store.UpdateExecution(ctx, exec); err != nil {
		return err
	}
	if _, err := eng.ledger.Append(ctx, ledger.EventWorkflowCancelled, nil, ledger.WithWorkflow(executionID)); err != nil {
		return err
	}
	eng.extensions.EmitWorkflowCancelled(ctx, exec)

	eng.logger.Info("workflow cancelled", slog.String("execution_id", executionID.String()))
	return nil
}
