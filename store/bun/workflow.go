package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/accord"
	"github.com/xraph/accord/id"
	"github.com/xraph/accord/workflow"
)

// CreateDefinition persists a new definition.
func (s *Store) CreateDefinition(ctx context.Context, d *workflow.Definition) error {
	m, err := toDefinitionModel(d)
	if err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("accord/bun: create definition: %w", err)
	}
	return nil
}

// GetDefinition retrieves a definition by ID.
func (s *Store) GetDefinition(ctx context.Context, definitionID id.DefinitionID) (*workflow.Definition, error) {
	m := new(definitionModel)
	err := s.db.NewSelect().Model(m).Where("id = ?", definitionID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, accord.ErrDefinitionNotFound
		}
		return nil, fmt.Errorf("accord/bun: get definition: %w", err)
	}
	return fromDefinitionModel(m)
}

// UpdateDefinition persists the definition's current state.
func (s *Store) UpdateDefinition(ctx context.Context, d *workflow.Definition) error {
	res, err := s.db.NewUpdate().
		Model((*definitionModel)(nil)).
		Set("active = ?", d.Active).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", d.ID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("accord/bun: update definition: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return accord.ErrDefinitionNotFound
	}
	return nil
}

// ListDefinitions returns all definitions ordered by creation time.
func (s *Store) ListDefinitions(ctx context.Context) ([]*workflow.Definition, error) {
	var models []definitionModel
	err := s.db.NewSelect().Model(&models).Order("created_at ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: list definitions: %w", err)
	}

	result := make([]*workflow.Definition, 0, len(models))
	for i := range models {
		d, err := fromDefinitionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, nil
}

// CreateExecution persists a new execution.
func (s *Store) CreateExecution(ctx context.Context, e *workflow.Execution) error {
	if _, err := s.db.NewInsert().Model(toExecutionModel(e)).Exec(ctx); err != nil {
		return fmt.Errorf("accord/bun: create execution: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution by ID.
func (s *Store) GetExecution(ctx context.Context, executionID id.ExecutionID) (*workflow.Execution, error) {
	m := new(executionModel)
	err := s.db.NewSelect().Model(m).Where("id = ?", executionID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, accord.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("accord/bun: get execution: %w", err)
	}
	return fromExecutionModel(m)
}

// UpdateExecution persists the execution's current state.
func (s *Store) UpdateExecution(ctx context.Context, e *workflow.Execution) error {
	m := toExecutionModel(e)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().
		Model(m).
		Column("status", "input", "output", "error", "total_tasks",
			"completed_tasks", "failed_tasks", "started_at", "completed_at", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("accord/bun: update execution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return accord.ErrExecutionNotFound
	}
	return nil
}

// ListExecutions returns executions filtered by status (all when
// empty), ordered by creation time ascending.
func (s *Store) ListExecutions(ctx context.Context, statuses ...workflow.ExecutionStatus) ([]*workflow.Execution, error) {
	var models []executionModel
	q := s.db.NewSelect().Model(&models)
	if len(statuses) > 0 {
		raw := make([]string, len(statuses))
		for i, st := range statuses {
			raw[i] = string(st)
		}
		q = q.Where("status IN (?)", bun.In(raw))
	}
	if err := q.Order("created_at ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("accord/bun: list executions: %w", err)
	}

	result := make([]*workflow.Execution, 0, len(models))
	for i := range models {
		e, err := fromExecutionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}

// CreateTask persists a new task.
func (s *Store) CreateTask(ctx context.Context, t *workflow.Task) error {
	if _, err := s.db.NewInsert().Model(toTaskModel(t)).Exec(ctx); err != nil {
		return fmt.Errorf("accord/bun: create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*workflow.Task, error) {
	m := new(taskModel)
	err := s.db.NewSelect().Model(m).Where("id = ?", taskID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, accord.ErrTaskNotFound
		}
		return nil, fmt.Errorf("accord/bun: get task: %w", err)
	}
	return fromTaskModel(m)
}

// UpdateTask persists the task's current state.
func (s *Store) UpdateTask(ctx context.Context, t *workflow.Task) error {
	m := toTaskModel(t)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().
		Model(m).
		Column("status", "output", "error_message", "attempt_count",
			"next_retry_at", "deadline_at", "started_at", "completed_at", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("accord/bun: update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return accord.ErrTaskNotFound
	}
	return nil
}

// TasksByExecution returns an execution's tasks ordered by SpecID.
func (s *Store) TasksByExecution(ctx context.Context, executionID id.ExecutionID) ([]*workflow.Task, error) {
	var models []taskModel
	err := s.db.NewSelect().
		Model(&models).
		Where("execution_id = ?", executionID.String()).
		Order("spec_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: tasks by execution: %w", err)
	}
	return collectTaskModels(models)
}

// DueRetries returns QUEUED tasks whose retry delay has elapsed.
func (s *Store) DueRetries(ctx context.Context, now time.Time) ([]*workflow.Task, error) {
	var models []taskModel
	err := s.db.NewSelect().
		Model(&models).
		Where("status = ?", string(workflow.TaskQueued)).
		Where("next_retry_at IS NOT NULL").
		Where("next_retry_at <= ?", now).
		Order("next_retry_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: due retries: %w", err)
	}
	return collectTaskModels(models)
}

// ExpiredTasks returns RUNNING tasks past their deadline.
func (s *Store) ExpiredTasks(ctx context.Context, now time.Time) ([]*workflow.Task, error) {
	var models []taskModel
	err := s.db.NewSelect().
		Model(&models).
		Where("status = ?", string(workflow.TaskRunning)).
		Where("deadline_at IS NOT NULL").
		Where("deadline_at <= ?", now).
		Order("deadline_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: expired tasks: %w", err)
	}
	return collectTaskModels(models)
}

func collectTaskModels(models []taskModel) ([]*workflow.Task, error) {
	result := make([]*workflow.Task, 0, len(models))
	for i := range models {
		t, err := fromTaskModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}
