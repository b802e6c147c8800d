package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/accord/ledger"
	"github.com/xraph/accord/workflow"
)

// dispatchLocked hands a QUEUED task to its type-specific path. The
// execution lock is held by the caller; the executor itself runs in a
// detached goroutine so the lock is never held across external work.
func (eng *Engine) dispatchLocked(ctx context.Context, exec *workflow.Execution, t *workflow.Task) error {
	if eng.policy != nil {
		if err := eng.policy.Check(ctx, t, exec); err != nil {
			var denial *PolicyDenialError
			if errors.As(err, &denial) {
				return eng.denyLocked(ctx, exec, t, denial)
			}
			return err
		}
	}

	if eng.sem != nil {
		select {
		case eng.sem <- struct{}{}:
		default:
			// Over the engine-wide cap: leave the task QUEUED and let
			// the retry loop pick it up on its next pass.
			next := time.Now().UTC().Add(eng.retryPollInterval)
			t.NextRetryAt = &next
			return eng.store.UpdateTask(ctx, t)
		}
	}
	if eng.limiter != nil && !eng.limiter.Acquire(t) {
		if eng.sem != nil {
			<-eng.sem
		}
		// Over capacity: leave the task QUEUED and let the retry loop
		// pick it up on its next pass.
		next := time.Now().UTC().Add(eng.retryPollInterval)
		t.NextRetryAt = &next
		return eng.store.UpdateTask(ctx, t)
	}

	if err := t.Transition(workflow.TaskRunning); err != nil {
		eng.release(t)
		return err
	}
	now := time.Now().UTC()
	t.AttemptCount++
	t.NextRetryAt = nil
	if t.StartedAt == nil {
		t.StartedAt = &now
	}
	if t.Timeout > 0 {
		deadline := now.Add(t.Timeout)
		t.DeadlineAt = &deadline
	}
	if err := eng.store.UpdateTask(ctx, t); err != nil {
		eng.release(t)
		return err
	}

	if _, err := eng.ledger.Append(ctx, ledger.EventTaskStarted,
		map[string]any{"spec_id": t.SpecID, "type": string(t.Type), "attempt": t.AttemptCount},
		ledger.WithWorkflow(exec.ID), ledger.WithTask(t.ID),
	); err != nil {
		eng.release(t)
		return err
	}
	eng.extensions.EmitTaskStarted(ctx, t)

	switch t.Type {
	case workflow.TaskTypeHumanApproval:
		defer eng.release(t)
		return eng.suspendForApprovalLocked(ctx, exec, t)
	case workflow.TaskTypeParallel:
		eng.runAsync(exec, t, eng.invokeParallel)
	default:
		eng.runAsync(exec, t, eng.invokeSingle)
	}
	return nil
}

func (eng *Engine) release(t *workflow.Task) {
	if eng.limiter != nil {
		eng.limiter.Release(t)
	}
	if eng.sem != nil {
		<-eng.sem
	}
}

func (eng *Engine) denyLocked(ctx context.Context, exec *workflow.Execution, t *workflow.Task, denial *PolicyDenialError) error {
	if _, err := eng.ledger.Append(ctx, ledger.EventPolicyViolation,
		map[string]any{"spec_id": t.SpecID, "reason": denial.Reason},
		ledger.WithWorkflow(exec.ID), ledger.WithTask(t.ID),
	); err != nil {
		return err
	}

	// A denial is terminal regardless of retry budget: re-running the
	// same task against the same policy cannot succeed.
	if err := t.Transition(workflow.TaskFailed); err != nil {
		return err
	}
	now := time.Now().UTC()
	t.ErrorMessage = denial.Error()
	t.CompletedAt = &now
	if err := eng.store.UpdateTask(ctx, t); err != nil {
		return err
	}

	if _, err := eng.ledger.Append(ctx, ledger.EventTaskFailed,
		map[string]any{"spec_id": t.SpecID, "error": denial.Error()},
		ledger.WithWorkflow(exec.ID), ledger.WithTask(t.ID),
	); err != nil {
		return err
	}
	eng.extensions.EmitTaskFailed(ctx, t, denial)

	return eng.failWorkflowLocked(ctx, exec.ID, denial)
}

// suspendForApprovalLocked parks a human_approval task in WAITING_INPUT
// and moves the workflow to WAITING_APPROVAL. The approval collaborator
// is notified after both states are persisted; its decision re-enters
// through ResumeTask.
func (eng *Engine) suspendForApprovalLocked(ctx context.Context, exec *workflow.Execution, t *workflow.Task) error {
	if err := t.Transition(workflow.TaskWaitingInput); err != nil {
		return err
	}
	t.DeadlineAt = nil
	if err := eng.store.UpdateTask(ctx, t); err != nil {
		return err
	}

	if err := exec.Transition(workflow.ExecutionWaitingApproval); err != nil {
		return err
	}
	if err := eng.store.UpdateExecution(ctx, exec); err != nil {
		return err
	}

	if eng.approvals == nil {
		eng.logger.Warn("human_approval task suspended with no approval requester configured",
			slog.String("task_id", t.ID.String()))
		return nil
	}

	var cfg struct {
		Prompt string `json:"prompt"`
	}
	if len(t.Config) > 0 {
		_ = json.Unmarshal(t.Config, &cfg)
	}
	if err := eng.approvals.RequestApproval(ctx, exec.ID, t.ID, cfg.Prompt); err != nil {
		eng.logger.Error("approval request failed",
			slog.String("task_id", t.ID.String()),
			slog.String("error", err.Error()))
	}
	return nil
}

type invokeFunc func(ctx context.Context, t *workflow.Task, input json.RawMessage) (json.RawMessage, error)

// runAsync runs an invocation in a detached goroutine and feeds the
// result back through CompleteTask / failTask. The goroutine blocks on
// the execution lock, so it only observes state after the dispatching
// call has finished.
func (eng *Engine) runAsync(exec *workflow.Execution, t *workflow.Task, invoke invokeFunc) {
	eng.wg.Add(1)
	go func() {
		defer eng.wg.Done()
		defer eng.release(t)

		ctx := context.Background()
		input, err := eng.assembleInput(ctx, exec, t)
		if err != nil {
			eng.applyResult(ctx, t, nil, err)
			return
		}

		var output json.RawMessage
		err = eng.chain(ctx, t, func(ctx context.Context) error {
			var invErr error
			output, invErr = invoke(ctx, t, input)
			return invErr
		})
		eng.applyResult(ctx, t, output, err)
	}()
}

func (eng *Engine) applyResult(ctx context.Context, t *workflow.Task, output json.RawMessage, err error) {
	if err == nil {
		err = eng.CompleteTask(ctx, t.ID, output)
		if err == nil {
			return
		}
		eng.logger.Debug("task result discarded",
			slog.String("task_id", t.ID.String()),
			slog.String("reason", err.Error()))
		return
	}

	timedOut := errors.Is(err, context.DeadlineExceeded)
	if failErr := eng.failTask(ctx, t.ID, err, timedOut); failErr != nil {
		eng.logger.Debug("task failure discarded",
			slog.String("task_id", t.ID.String()),
			slog.String("reason", failErr.Error()))
	}
}

func (eng *Engine) invokeSingle(ctx context.Context, t *workflow.Task, input json.RawMessage) (json.RawMessage, error) {
	if eng.executor == nil {
		return nil, errors.New("engine: no task executor configured")
	}
	return eng.executor.Invoke(ctx, t, input)
}

// invokeParallel fans a parallel task out over its configured subtasks
// via an errgroup: all legs run concurrently, the first error cancels
// the rest, and success yields the subtask outputs in config order.
func (eng *Engine) invokeParallel(ctx context.Context, t *workflow.Task, input json.RawMessage) (json.RawMessage, error) {
	if eng.executor == nil {
		return nil, errors.New("engine: no task executor configured")
	}

	var cfg struct {
		Subtasks []json.RawMessage `json:"subtasks"`
	}
	if err := json.Unmarshal(t.Config, &cfg); err != nil {
		return nil, fmt.Errorf("engine: invalid parallel config: %w", err)
	}
	if len(cfg.Subtasks) == 0 {
		return nil, errors.New("engine: parallel task has no subtasks")
	}

	outputs := make([]json.RawMessage, len(cfg.Subtasks))
	g, gctx := errgroup.WithContext(ctx)
	for i, sub := range cfg.Subtasks {
		leg := *t
		leg.Config = sub
		idx := i
		g.Go(func() error {
			out, err := eng.executor.Invoke(gctx, &leg, input)
			if err != nil {
				return fmt.Errorf("subtask %d: %w", idx, err)
			}
			outputs[idx] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"subtasks": outputs})
}

// assembleInput builds the payload handed to the executor: the
// workflow's input plus the outputs of the task's direct completed
// dependencies, keyed by spec ID.
func (eng *Engine) assembleInput(ctx context.Context, exec *workflow.Execution, t *workflow.Task) (json.RawMessage, error) {
	def, err := eng.store.GetDefinition(ctx, exec.DefinitionID)
	if err != nil {
		return nil, err
	}
	tasks, err := eng.store.TasksByExecution(ctx, exec.ID)
	if err != nil {
		return nil, err
	}

	bySpec := make(map[string]*workflow.Task, len(tasks))
	for _, tk := range tasks {
		bySpec[tk.SpecID] = tk
	}

	upstream := make(map[string]json.RawMessage)
	for _, edge := range def.Edges {
		if edge.To != t.SpecID {
			continue
		}
		dep := bySpec[edge.From]
		if dep != nil && dep.Status == workflow.TaskCompleted && len(dep.Output) > 0 {
			upstream[edge.From] = dep.Output
		}
	}

	payload := map[string]any{"upstream": upstream}
	if len(exec.Input) > 0 {
		payload["workflow_input"] = exec.Input
	}
	return json.Marshal(payload)
}
