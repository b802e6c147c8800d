package workflow

import (
	"context"
	"time"

	"github.com/xraph/accord/id"
)

// Store defines the persistence contract for workflow definitions,
// executions, and tasks.
type Store interface {
	// CreateDefinition persists a new definition.
	CreateDefinition(ctx context.Context, d *Definition) error

	// GetDefinition retrieves a definition by ID, or
	// accord.ErrDefinitionNotFound.
	GetDefinition(ctx context.Context, definitionID id.DefinitionID) (*Definition, error)

	// UpdateDefinition persists the definition's current state (only
	// the Active flag ever changes; the task and edge sets are
	// immutable).
	UpdateDefinition(ctx context.Context, d *Definition) error

	// ListDefinitions returns all definitions ordered by creation time
	// ascending.
	ListDefinitions(ctx context.Context) ([]*Definition, error)

	// CreateExecution persists a new execution.
	CreateExecution(ctx context.Context, e *Execution) error

	// GetExecution retrieves an execution by ID, or
	// accord.ErrExecutionNotFound.
	GetExecution(ctx context.Context, executionID id.ExecutionID) (*Execution, error)

	// UpdateExecution persists the execution's current state.
	UpdateExecution(ctx context.Context, e *Execution) error

	// ListExecutions returns executions filtered by status (all when
	// empty), ordered by creation time ascending.
	ListExecutions(ctx context.Context, statuses ...ExecutionStatus) ([]*Execution, error)

	// CreateTask persists a new task.
	CreateTask(ctx context.Context, t *Task) error

	// GetTask retrieves a task by ID, or accord.ErrTaskNotFound.
	GetTask(ctx context.Context, taskID id.TaskID) (*Task, error)

	// UpdateTask persists the task's current state.
	UpdateTask(ctx context.Context, t *Task) error

	// TasksByExecution returns all tasks belonging to an execution,
	// ordered by SpecID ascending.
	TasksByExecution(ctx context.Context, executionID id.ExecutionID) ([]*Task, error)

	// DueRetries returns QUEUED tasks whose NextRetryAt is at or before
	// now, ordered by NextRetryAt ascending.
	DueRetries(ctx context.Context, now time.Time) ([]*Task, error)

	// ExpiredTasks returns RUNNING tasks whose DeadlineAt is at or
	// before now.
	ExpiredTasks(ctx context.Context, now time.Time) ([]*Task, error)
}
