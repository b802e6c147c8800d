package workflow

import (
	"encoding/json"
	"time"

	"github.com/xraph/accord"
	"github.com/xraph/accord/id"
)

// TaskStatus represents the lifecycle state of a task execution.
type TaskStatus string

const (
	// TaskPending means the task is waiting for its dependencies.
	TaskPending TaskStatus = "pending"
	// TaskQueued means the task is eligible and awaiting dispatch
	// (including a retry waiting out its backoff delay).
	TaskQueued TaskStatus = "queued"
	// TaskRunning means the task has been handed to the executor.
	TaskRunning TaskStatus = "running"
	// TaskWaitingInput means a human_approval task is suspended until
	// an external decision arrives.
	TaskWaitingInput TaskStatus = "waiting_input"
	// TaskCompleted means the task finished successfully.
	TaskCompleted TaskStatus = "completed"
	// TaskFailed means the task failed with no retry budget left.
	TaskFailed TaskStatus = "failed"
	// TaskSkipped means a decision branch excluded the task.
	TaskSkipped TaskStatus = "skipped"
	// TaskCancelled means the owning execution was cancelled.
	TaskCancelled TaskStatus = "cancelled"
)

var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskPending:      {TaskQueued, TaskSkipped, TaskCancelled},
	TaskQueued:       {TaskRunning, TaskFailed, TaskSkipped, TaskCancelled},
	TaskRunning:      {TaskWaitingInput, TaskCompleted, TaskFailed, TaskQueued, TaskCancelled},
	TaskWaitingInput: {TaskRunning, TaskFailed, TaskCancelled},
}

// CanTransitionTo reports whether moving to the target status is legal.
// running -> queued is the retry path: a failed attempt with budget
// remaining re-queues instead of going terminal.
func (s TaskStatus) CanTransitionTo(target TaskStatus) bool {
	for _, allowed := range taskTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskSkipped, TaskCancelled:
		return true
	}
	return false
}

// Task is one instantiation of a TaskSpec within an execution. SpecID
// matches the spec it was materialized from; dependency edges resolve
// through it.
type Task struct {
	accord.Entity

	ID           id.TaskID       `json:"id"`
	ExecutionID  id.ExecutionID  `json:"execution_id"`
	SpecID       string          `json:"spec_id"`
	Type         TaskType        `json:"type"`
	Status       TaskStatus      `json:"status"`
	Config       json.RawMessage `json:"config,omitempty"`
	Output       json.RawMessage `json:"output,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	AttemptCount int             `json:"attempt_count"`
	MaxRetries   int             `json:"max_retries"`
	Timeout      time.Duration   `json:"timeout,omitempty"`
	NextRetryAt  *time.Time      `json:"next_retry_at,omitempty"`
	DeadlineAt   *time.Time      `json:"deadline_at,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// NewTask materializes a task from its spec in PENDING.
func NewTask(executionID id.ExecutionID, spec TaskSpec) *Task {
	return &Task{
		Entity:      accord.NewEntity(),
		ID:          id.NewTaskID(),
		ExecutionID: executionID,
		SpecID:      spec.SpecID,
		Type:        spec.Type,
		Status:      TaskPending,
		Config:      spec.Config,
		MaxRetries:  spec.MaxRetries,
		Timeout:     spec.Timeout,
	}
}

// Transition moves the task to the target status, or returns
// accord.ErrInvalidTransition.
func (t *Task) Transition(target TaskStatus) error {
	if !t.Status.CanTransitionTo(target) {
		return invalidTransition("task", t.ID.String(), string(t.Status), string(target))
	}
	t.Status = target
	t.Touch()
	return nil
}

// RetryBudgetLeft reports whether another attempt is allowed. A task
// with max_retries=N may run N+1 times in total.
func (t *Task) RetryBudgetLeft() bool {
	return t.AttemptCount <= t.MaxRetries
}
