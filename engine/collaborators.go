package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xraph/accord/id"
	"github.com/xraph/accord/workflow"
)

// TaskExecutor performs the actual work of a task: agent invocation,
// decision evaluation, or one leg of a parallel fan-out. The engine
// only needs success or failure plus an output payload; everything else
// (model calls, prompt construction, branch conditions) lives behind
// this interface.
//
// A decision executor signals pruned branches by including a "skip"
// array of spec IDs in its output; the engine cascades SKIPPED through
// those branches.
type TaskExecutor interface {
	Invoke(ctx context.Context, t *workflow.Task, input json.RawMessage) (json.RawMessage, error)
}

// TaskExecutorFunc adapts a function to the TaskExecutor interface.
type TaskExecutorFunc func(ctx context.Context, t *workflow.Task, input json.RawMessage) (json.RawMessage, error)

// Invoke implements TaskExecutor.
func (f TaskExecutorFunc) Invoke(ctx context.Context, t *workflow.Task, input json.RawMessage) (json.RawMessage, error) {
	return f(ctx, t, input)
}

// PolicyChecker is consulted before every task dispatch. Returning a
// *PolicyDenialError blocks the dispatch: the task fails with a policy
// violation and no retry attempt is consumed. Any other error is
// treated as an infrastructure failure and surfaced to the caller.
type PolicyChecker interface {
	Check(ctx context.Context, t *workflow.Task, e *workflow.Execution) error
}

// PolicyCheckerFunc adapts a function to the PolicyChecker interface.
type PolicyCheckerFunc func(ctx context.Context, t *workflow.Task, e *workflow.Execution) error

// Check implements PolicyChecker.
func (f PolicyCheckerFunc) Check(ctx context.Context, t *workflow.Task, e *workflow.Execution) error {
	return f(ctx, t, e)
}

// PolicyDenialError is a governance denial. It is terminal for the
// task and never retried.
type PolicyDenialError struct {
	Reason string
}

func (e *PolicyDenialError) Error() string {
	return fmt.Sprintf("engine: policy denied task: %s", e.Reason)
}

// SettlementTrigger is notified fire-and-forget when a workflow
// completes. The engine does not wait for or depend on its result.
type SettlementTrigger interface {
	OnWorkflowCompleted(ctx context.Context, executionID id.ExecutionID, workflowData json.RawMessage)
}

// ApprovalRequester raises an approval request for a suspended
// human_approval task. The decision arrives back later through
// ResumeTask.
type ApprovalRequester interface {
	RequestApproval(ctx context.Context, executionID id.ExecutionID, taskID id.TaskID, prompt string) error
}
