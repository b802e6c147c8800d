package workflow

import (
	"encoding/json"
	"time"

	"github.com/xraph/accord"
	"github.com/xraph/accord/id"
)

// ExecutionStatus represents the lifecycle state of a workflow
// execution.
type ExecutionStatus string

const (
	// ExecutionPending means the execution exists but has not started.
	ExecutionPending ExecutionStatus = "pending"
	// ExecutionRunning means tasks are being scheduled and dispatched.
	ExecutionRunning ExecutionStatus = "running"
	// ExecutionPaused means an operator suspended the execution; it
	// resumes back to running.
	ExecutionPaused ExecutionStatus = "paused"
	// ExecutionWaitingApproval means a human_approval task is pending
	// an external decision.
	ExecutionWaitingApproval ExecutionStatus = "waiting_approval"
	// ExecutionCompleted means every task completed or was skipped.
	ExecutionCompleted ExecutionStatus = "completed"
	// ExecutionFailed means a task exhausted its retries or failed
	// non-retryably.
	ExecutionFailed ExecutionStatus = "failed"
	// ExecutionCancelled means the execution was explicitly cancelled.
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// executionTransitions enumerates every legal status change.
var executionTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionPending:         {ExecutionRunning, ExecutionCancelled},
	ExecutionRunning:         {ExecutionPaused, ExecutionWaitingApproval, ExecutionCompleted, ExecutionFailed, ExecutionCancelled},
	ExecutionPaused:          {ExecutionRunning, ExecutionCancelled},
	ExecutionWaitingApproval: {ExecutionRunning, ExecutionFailed, ExecutionCancelled},
}

// CanTransitionTo reports whether moving to the target status is legal.
func (s ExecutionStatus) CanTransitionTo(target ExecutionStatus) bool {
	for _, allowed := range executionTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// Execution is one instantiation of a definition. It is owned
// exclusively by the engine: mutated only through engine operations and
// never deleted, only driven to a terminal status.
type Execution struct {
	accord.Entity

	ID             id.ExecutionID  `json:"id"`
	DefinitionID   id.DefinitionID `json:"definition_id"`
	Status         ExecutionStatus `json:"status"`
	Input          json.RawMessage `json:"input,omitempty"`
	Output         json.RawMessage `json:"output,omitempty"`
	Error          string          `json:"error,omitempty"`
	TotalTasks     int             `json:"total_tasks"`
	CompletedTasks int             `json:"completed_tasks"`
	FailedTasks    int             `json:"failed_tasks"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// Transition moves the execution to the target status, or returns
// accord.ErrInvalidTransition.
func (e *Execution) Transition(target ExecutionStatus) error {
	if !e.Status.CanTransitionTo(target) {
		return invalidTransition("execution", e.ID.String(), string(e.Status), string(target))
	}
	e.Status = target
	e.Touch()
	return nil
}

func invalidTransition(kind, entityID, from, to string) error {
	return &TransitionError{Kind: kind, EntityID: entityID, From: from, To: to}
}

// TransitionError reports an illegal state-machine move. It unwraps to
// accord.ErrInvalidTransition.
type TransitionError struct {
	Kind     string
	EntityID string
	From     string
	To       string
}

func (e *TransitionError) Error() string {
	return "workflow: " + e.Kind + " " + e.EntityID + ": illegal transition " + e.From + " -> " + e.To
}

func (e *TransitionError) Unwrap() error { return accord.ErrInvalidTransition }
