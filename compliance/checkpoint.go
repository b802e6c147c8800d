package compliance

import (
	"time"

	"github.com/xraph/accord"
	"github.com/xraph/accord/id"
)

// CheckpointStatus tracks a checkpoint through its lifecycle.
type CheckpointStatus string

const (
	// CheckpointPending means the checkpoint exists but has not been
	// evaluated yet.
	CheckpointPending CheckpointStatus = "pending"
	// CheckpointPassed means every rule held at evaluation time.
	CheckpointPassed CheckpointStatus = "passed"
	// CheckpointFailed means at least one rule was violated or
	// malformed.
	CheckpointFailed CheckpointStatus = "failed"
)

// Checkpoint binds a named rule set to a workflow execution. A
// checkpoint is created by an external caller, evaluated against ledger
// event payloads, and its result is itself recorded as a ledger event,
// so the audit trail carries both the check and its outcome.
type Checkpoint struct {
	accord.Entity

	ID          id.CheckpointID  `json:"id"`
	Name        string           `json:"name"`
	WorkflowID  id.ExecutionID   `json:"workflow_id"`
	Rules       []Rule           `json:"rules"`
	Status      CheckpointStatus `json:"status"`
	Violations  []RuleViolation  `json:"violations,omitempty"`
	RuleErrors  []RuleError      `json:"rule_errors,omitempty"`
	EvaluatedAt *time.Time       `json:"evaluated_at,omitempty"`
}

// Terminal reports whether the checkpoint has been evaluated.
func (c *Checkpoint) Terminal() bool {
	return c.Status == CheckpointPassed || c.Status == CheckpointFailed
}
