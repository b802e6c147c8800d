package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/accord"
	"github.com/xraph/accord/id"
	"github.com/xraph/accord/workflow"
)

const definitionColumns = `id, name, active, tasks, edges, created_at, updated_at`

// CreateDefinition persists a new definition.
func (s *Store) CreateDefinition(ctx context.Context, d *workflow.Definition) error {
	tasks, err := json.Marshal(d.Tasks)
	if err != nil {
		return fmt.Errorf("accord/postgres: marshal tasks: %w", err)
	}
	edges, err := json.Marshal(d.Edges)
	if err != nil {
		return fmt.Errorf("accord/postgres: marshal edges: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO accord_definitions (id, name, active, tasks, edges, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID.String(), d.Name, d.Active, tasks, edges, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("accord/postgres: create definition: %w", err)
	}
	return nil
}

// GetDefinition retrieves a definition by ID.
func (s *Store) GetDefinition(ctx context.Context, definitionID id.DefinitionID) (*workflow.Definition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+definitionColumns+` FROM accord_definitions WHERE id = $1`,
		definitionID.String(),
	)
	d, err := scanDefinition(row)
	if err != nil {
		if isNoRows(err) {
			return nil, accord.ErrDefinitionNotFound
		}
		return nil, fmt.Errorf("accord/postgres: get definition: %w", err)
	}
	return d, nil
}

// UpdateDefinition persists the definition's current state.
func (s *Store) UpdateDefinition(ctx context.Context, d *workflow.Definition) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accord_definitions SET active = $2, updated_at = NOW() WHERE id = $1`,
		d.ID.String(), d.Active,
	)
	if err != nil {
		return fmt.Errorf("accord/postgres: update definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return accord.ErrDefinitionNotFound
	}
	return nil
}

// ListDefinitions returns all definitions ordered by creation time.
func (s *Store) ListDefinitions(ctx context.Context) ([]*workflow.Definition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+definitionColumns+` FROM accord_definitions ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("accord/postgres: list definitions: %w", err)
	}
	defer rows.Close()

	var result []*workflow.Definition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("accord/postgres: scan definition: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func scanDefinition(row pgx.Row) (*workflow.Definition, error) {
	var (
		d            workflow.Definition
		rawID        string
		tasks, edges []byte
	)
	if err := row.Scan(&rawID, &d.Name, &d.Active, &tasks, &edges, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := id.ParseDefinitionID(rawID)
	if err != nil {
		return nil, err
	}
	d.ID = parsed
	if err := json.Unmarshal(tasks, &d.Tasks); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(edges, &d.Edges); err != nil {
		return nil, err
	}
	return &d, nil
}

const executionColumns = `id, definition_id, status, input, output, error,
	total_tasks, completed_tasks, failed_tasks, started_at, completed_at,
	created_at, updated_at`

// CreateExecution persists a new execution.
func (s *Store) CreateExecution(ctx context.Context, e *workflow.Execution) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accord_executions (
			id, definition_id, status, input, output, error,
			total_tasks, completed_tasks, failed_tasks, started_at, completed_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID.String(), e.DefinitionID.String(), string(e.Status),
		nullableJSON(e.Input), nullableJSON(e.Output), e.Error,
		e.TotalTasks, e.CompletedTasks, e.FailedTasks, e.StartedAt, e.CompletedAt,
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("accord/postgres: create execution: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution by ID.
func (s *Store) GetExecution(ctx context.Context, executionID id.ExecutionID) (*workflow.Execution, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+executionColumns+` FROM accord_executions WHERE id = $1`,
		executionID.String(),
	)
	e, err := scanExecution(row)
	if err != nil {
		if isNoRows(err) {
			return nil, accord.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("accord/postgres: get execution: %w", err)
	}
	return e, nil
}

// UpdateExecution persists the execution's current state.
func (s *Store) UpdateExecution(ctx context.Context, e *workflow.Execution) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accord_executions SET
			status = $2, input = $3, output = $4, error = $5,
			total_tasks = $6, completed_tasks = $7, failed_tasks = $8,
			started_at = $9, completed_at = $10, updated_at = NOW()
		WHERE id = $1`,
		e.ID.String(), string(e.Status), nullableJSON(e.Input), nullableJSON(e.Output),
		e.Error, e.TotalTasks, e.CompletedTasks, e.FailedTasks,
		e.StartedAt, e.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("accord/postgres: update execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return accord.ErrExecutionNotFound
	}
	return nil
}

// ListExecutions returns executions filtered by status (all when empty),
// ordered by creation time ascending.
func (s *Store) ListExecutions(ctx context.Context, statuses ...workflow.ExecutionStatus) ([]*workflow.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM accord_executions`
	args := []any{}
	if len(statuses) > 0 {
		raw := make([]string, len(statuses))
		for i, st := range statuses {
			raw[i] = string(st)
		}
		query += ` WHERE status = ANY($1)`
		args = append(args, raw)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("accord/postgres: list executions: %w", err)
	}
	defer rows.Close()

	var result []*workflow.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("accord/postgres: scan execution: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func scanExecution(row pgx.Row) (*workflow.Execution, error) {
	var (
		e             workflow.Execution
		rawID, rawDef string
		status        string
		input, output []byte
	)
	if err := row.Scan(&rawID, &rawDef, &status, &input, &output, &e.Error,
		&e.TotalTasks, &e.CompletedTasks, &e.FailedTasks, &e.StartedAt, &e.CompletedAt,
		&e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if e.ID, err = id.ParseExecutionID(rawID); err != nil {
		return nil, err
	}
	if e.DefinitionID, err = id.ParseDefinitionID(rawDef); err != nil {
		return nil, err
	}
	e.Status = workflow.ExecutionStatus(status)
	e.Input = json.RawMessage(input)
	e.Output = json.RawMessage(output)
	return &e, nil
}

const taskColumns = `id, execution_id, spec_id, type, status, config, output,
	error_message, attempt_count, max_retries, timeout_ns, next_retry_at,
	deadline_at, started_at, completed_at, created_at, updated_at`

// CreateTask persists a new task.
func (s *Store) CreateTask(ctx context.Context, t *workflow.Task) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accord_tasks (
			id, execution_id, spec_id, type, status, config, output,
			error_message, attempt_count, max_retries, timeout_ns, next_retry_at,
			deadline_at, started_at, completed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		t.ID.String(), t.ExecutionID.String(), t.SpecID, string(t.Type), string(t.Status),
		nullableJSON(t.Config), nullableJSON(t.Output), t.ErrorMessage,
		t.AttemptCount, t.MaxRetries, t.Timeout.Nanoseconds(),
		t.NextRetryAt, t.DeadlineAt, t.StartedAt, t.CompletedAt,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("accord/postgres: create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*workflow.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM accord_tasks WHERE id = $1`,
		taskID.String(),
	)
	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, accord.ErrTaskNotFound
		}
		return nil, fmt.Errorf("accord/postgres: get task: %w", err)
	}
	return t, nil
}

// UpdateTask persists the task's current state.
func (s *Store) UpdateTask(ctx context.Context, t *workflow.Task) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accord_tasks SET
			status = $2, output = $3, error_message = $4, attempt_count = $5,
			next_retry_at = $6, deadline_at = $7, started_at = $8, completed_at = $9,
			updated_at = NOW()
		WHERE id = $1`,
		t.ID.String(), string(t.Status), nullableJSON(t.Output), t.ErrorMessage,
		t.AttemptCount, t.NextRetryAt, t.DeadlineAt, t.StartedAt, t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("accord/postgres: update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return accord.ErrTaskNotFound
	}
	return nil
}

// TasksByExecution returns an execution's tasks ordered by SpecID.
func (s *Store) TasksByExecution(ctx context.Context, executionID id.ExecutionID) ([]*workflow.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM accord_tasks WHERE execution_id = $1 ORDER BY spec_id ASC`,
		executionID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("accord/postgres: tasks by execution: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// DueRetries returns QUEUED tasks whose retry delay has elapsed.
func (s *Store) DueRetries(ctx context.Context, now time.Time) ([]*workflow.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM accord_tasks
		 WHERE status = 'queued' AND next_retry_at IS NOT NULL AND next_retry_at <= $1
		 ORDER BY next_retry_at ASC`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("accord/postgres: due retries: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ExpiredTasks returns RUNNING tasks past their deadline.
func (s *Store) ExpiredTasks(ctx context.Context, now time.Time) ([]*workflow.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM accord_tasks
		 WHERE status = 'running' AND deadline_at IS NOT NULL AND deadline_at <= $1
		 ORDER BY deadline_at ASC`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("accord/postgres: expired tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func collectTasks(rows pgx.Rows) ([]*workflow.Task, error) {
	var result []*workflow.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("accord/postgres: scan task: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func scanTask(row pgx.Row) (*workflow.Task, error) {
	var (
		t              workflow.Task
		rawID, rawExec string
		taskType       string
		status         string
		config, output []byte
		timeoutNS      int64
	)
	if err := row.Scan(&rawID, &rawExec, &t.SpecID, &taskType, &status,
		&config, &output, &t.ErrorMessage, &t.AttemptCount, &t.MaxRetries,
		&timeoutNS, &t.NextRetryAt, &t.DeadlineAt, &t.StartedAt, &t.CompletedAt,
		&t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if t.ID, err = id.ParseTaskID(rawID); err != nil {
		return nil, err
	}
	if t.ExecutionID, err = id.ParseExecutionID(rawExec); err != nil {
		return nil, err
	}
	t.Type = workflow.TaskType(taskType)
	t.Status = workflow.TaskStatus(status)
	t.Config = json.RawMessage(config)
	t.Output = json.RawMessage(output)
	t.Timeout = time.Duration(timeoutNS)
	return &t, nil
}

// nullableJSON maps an empty payload to SQL NULL instead of the invalid
// empty jsonb value.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
