package ledger

import (
	"encoding/json"
	"time"

	"github.com/xraph/accord"
	"github.com/xraph/accord/id"
)

// EventType names a class of ledger event.
type EventType string

// Event types recorded by the engine and its satellite services.
const (
	// Workflow lifecycle.
	EventWorkflowCreated   EventType = "workflow_created"
	EventWorkflowStarted   EventType = "workflow_started"
	EventWorkflowCompleted EventType = "workflow_completed"
	EventWorkflowFailed    EventType = "workflow_failed"
	EventWorkflowCancelled EventType = "workflow_cancelled"
	EventWorkflowPaused    EventType = "workflow_paused"
	EventWorkflowResumed   EventType = "workflow_resumed"

	// Task lifecycle.
	EventTaskStarted   EventType = "task_started"
	EventTaskCompleted EventType = "task_completed"
	EventTaskFailed    EventType = "task_failed"
	EventTaskRetried   EventType = "task_retried"
	EventTaskSkipped   EventType = "task_skipped"
	EventTaskCancelled EventType = "task_cancelled"
	EventTaskTimedOut  EventType = "task_timed_out"

	// Approvals and governance.
	EventApprovalRequested EventType = "approval_requested"
	EventApprovalGranted   EventType = "approval_granted"
	EventApprovalRejected  EventType = "approval_rejected"
	EventPolicyViolation   EventType = "policy_violation"

	// Compliance checkpoints.
	EventCheckpointPassed EventType = "checkpoint_passed"
	EventCheckpointFailed EventType = "checkpoint_failed"

	// Settlement.
	EventSettlementTriggered EventType = "settlement_triggered"
)

// Event is one immutable, sequenced, hash-linked record of a state change.
// Sequence numbers are strictly increasing and gapless, assigned at append
// time. Hash covers {sequence, type, workflow_id, task_id, actor_type,
// actor_id, payload, previous_hash, timestamp} in canonical JSON form.
// Events are never mutated or deleted.
type Event struct {
	accord.Entity

	ID         id.EventID      `json:"id"`
	Sequence   int64           `json:"sequence"`
	Type       EventType       `json:"type"`
	WorkflowID id.ExecutionID  `json:"workflow_id,omitempty"`
	TaskID     id.TaskID       `json:"task_id,omitempty"`
	ActorType  string          `json:"actor_type,omitempty"`
	ActorID    string          `json:"actor_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	PrevHash   string          `json:"previous_hash"`
	Hash       string          `json:"hash"`
	Timestamp  time.Time       `json:"timestamp"`
}

// AppendOption attaches optional attribution to an appended event.
type AppendOption func(*Event)

// WithWorkflow correlates the event with a workflow execution.
func WithWorkflow(executionID id.ExecutionID) AppendOption {
	return func(e *Event) { e.WorkflowID = executionID }
}

// WithTask correlates the event with a task execution.
func WithTask(taskID id.TaskID) AppendOption {
	return func(e *Event) { e.TaskID = taskID }
}

// WithActor records who (or what) caused the event. actorType is typically
// "system", "user", or "agent".
func WithActor(actorType, actorID string) AppendOption {
	return func(e *Event) {
		e.ActorType = actorType
		e.ActorID = actorID
	}
}
