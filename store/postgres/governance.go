package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/accord"
	"github.com/xraph/accord/approval"
	"github.com/xraph/accord/compliance"
	"github.com/xraph/accord/id"
	"github.com/xraph/accord/settlement"
)

// ── Compliance checkpoints ─────────────────────────────────────────

const checkpointColumns = `id, name, workflow_id, rules, status, violations,
	rule_errors, evaluated_at, created_at, updated_at`

// CreateCheckpoint persists a new checkpoint.
func (s *Store) CreateCheckpoint(ctx context.Context, c *compliance.Checkpoint) error {
	rules, err := json.Marshal(c.Rules)
	if err != nil {
		return fmt.Errorf("accord/postgres: marshal rules: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO accord_checkpoints (
			id, name, workflow_id, rules, status, violations, rule_errors,
			evaluated_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID.String(), c.Name, c.WorkflowID.String(), rules, string(c.Status),
		marshalOrNull(c.Violations), marshalOrNull(c.RuleErrors),
		c.EvaluatedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("accord/postgres: create checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves a checkpoint by ID.
func (s *Store) GetCheckpoint(ctx context.Context, checkpointID id.CheckpointID) (*compliance.Checkpoint, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+checkpointColumns+` FROM accord_checkpoints WHERE id = $1`,
		checkpointID.String(),
	)
	c, err := scanCheckpoint(row)
	if err != nil {
		if isNoRows(err) {
			return nil, accord.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("accord/postgres: get checkpoint: %w", err)
	}
	return c, nil
}

// UpdateCheckpoint persists the checkpoint's current state.
func (s *Store) UpdateCheckpoint(ctx context.Context, c *compliance.Checkpoint) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accord_checkpoints SET
			status = $2, violations = $3, rule_errors = $4, evaluated_at = $5,
			updated_at = NOW()
		WHERE id = $1`,
		c.ID.String(), string(c.Status),
		marshalOrNull(c.Violations), marshalOrNull(c.RuleErrors), c.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("accord/postgres: update checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return accord.ErrCheckpointNotFound
	}
	return nil
}

// CheckpointsByWorkflow returns a workflow's checkpoints ordered by
// creation time.
func (s *Store) CheckpointsByWorkflow(ctx context.Context, workflowID id.ExecutionID) ([]*compliance.Checkpoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+checkpointColumns+` FROM accord_checkpoints
		 WHERE workflow_id = $1 ORDER BY created_at ASC`,
		workflowID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("accord/postgres: checkpoints by workflow: %w", err)
	}
	defer rows.Close()

	var result []*compliance.Checkpoint
	for rows.Next() {
		c, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("accord/postgres: scan checkpoint: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func scanCheckpoint(row pgx.Row) (*compliance.Checkpoint, error) {
	var (
		c                             compliance.Checkpoint
		rawID, rawWF, status          string
		rules, violations, ruleErrors []byte
	)
	if err := row.Scan(&rawID, &c.Name, &rawWF, &rules, &status,
		&violations, &ruleErrors, &c.EvaluatedAt, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if c.ID, err = id.ParseCheckpointID(rawID); err != nil {
		return nil, err
	}
	if c.WorkflowID, err = id.ParseExecutionID(rawWF); err != nil {
		return nil, err
	}
	c.Status = compliance.CheckpointStatus(status)
	if err := json.Unmarshal(rules, &c.Rules); err != nil {
		return nil, err
	}
	if len(violations) > 0 {
		if err := json.Unmarshal(violations, &c.Violations); err != nil {
			return nil, err
		}
	}
	if len(ruleErrors) > 0 {
		if err := json.Unmarshal(ruleErrors, &c.RuleErrors); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// ── Approvals ──────────────────────────────────────────────────────

const approvalColumns = `id, execution_id, task_id, status, prompt,
	decided_by, reason, payload, decided_at, created_at, updated_at`

// CreateApproval persists a new approval request.
func (s *Store) CreateApproval(ctx context.Context, a *approval.Approval) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accord_approvals (
			id, execution_id, task_id, status, prompt, decided_by, reason,
			payload, decided_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID.String(), a.ExecutionID.String(), a.TaskID.String(), string(a.Status),
		a.Prompt, a.DecidedBy, a.Reason, nullableJSON(a.Payload), a.DecidedAt,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("accord/postgres: create approval: %w", err)
	}
	return nil
}

// GetApproval retrieves an approval by ID.
func (s *Store) GetApproval(ctx context.Context, approvalID id.ApprovalID) (*approval.Approval, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+approvalColumns+` FROM accord_approvals WHERE id = $1`,
		approvalID.String(),
	)
	a, err := scanApproval(row)
	if err != nil {
		if isNoRows(err) {
			return nil, accord.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("accord/postgres: get approval: %w", err)
	}
	return a, nil
}

// UpdateApproval persists the approval's current state.
func (s *Store) UpdateApproval(ctx context.Context, a *approval.Approval) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accord_approvals SET
			status = $2, decided_by = $3, reason = $4, payload = $5,
			decided_at = $6, updated_at = NOW()
		WHERE id = $1`,
		a.ID.String(), string(a.Status), a.DecidedBy, a.Reason,
		nullableJSON(a.Payload), a.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("accord/postgres: update approval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return accord.ErrApprovalNotFound
	}
	return nil
}

// PendingApprovals returns all undecided approvals ordered by creation
// time.
func (s *Store) PendingApprovals(ctx context.Context) ([]*approval.Approval, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ` + approvalColumns + ` FROM accord_approvals
		 WHERE status = 'pending' ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("accord/postgres: pending approvals: %w", err)
	}
	defer rows.Close()
	return collectApprovals(rows)
}

// ApprovalsByExecution returns a workflow's approvals ordered by
// creation time.
func (s *Store) ApprovalsByExecution(ctx context.Context, executionID id.ExecutionID) ([]*approval.Approval, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+approvalColumns+` FROM accord_approvals
		 WHERE execution_id = $1 ORDER BY created_at ASC`,
		executionID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("accord/postgres: approvals by execution: %w", err)
	}
	defer rows.Close()
	return collectApprovals(rows)
}

func collectApprovals(rows pgx.Rows) ([]*approval.Approval, error) {
	var result []*approval.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("accord/postgres: scan approval: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func scanApproval(row pgx.Row) (*approval.Approval, error) {
	var (
		a                            approval.Approval
		rawID, rawExec, rawTask, sta string
		payload                      []byte
	)
	if err := row.Scan(&rawID, &rawExec, &rawTask, &sta, &a.Prompt,
		&a.DecidedBy, &a.Reason, &payload, &a.DecidedAt, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if a.ID, err = id.ParseApprovalID(rawID); err != nil {
		return nil, err
	}
	if a.ExecutionID, err = id.ParseExecutionID(rawExec); err != nil {
		return nil, err
	}
	if a.TaskID, err = id.ParseTaskID(rawTask); err != nil {
		return nil, err
	}
	a.Status = approval.Status(sta)
	a.Payload = json.RawMessage(payload)
	return &a, nil
}

// ── Settlement signals ─────────────────────────────────────────────

const signalColumns = `id, execution_id, status, data, created_at, updated_at`

// CreateSignal persists a new settlement signal.
func (s *Store) CreateSignal(ctx context.Context, sig *settlement.Signal) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accord_signals (id, execution_id, status, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sig.ID.String(), sig.ExecutionID.String(), string(sig.Status),
		nullableJSON(sig.Data), sig.CreatedAt, sig.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("accord/postgres: create signal: %w", err)
	}
	return nil
}

// GetSignal retrieves a signal by ID.
func (s *Store) GetSignal(ctx context.Context, signalID id.SignalID) (*settlement.Signal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+signalColumns+` FROM accord_signals WHERE id = $1`,
		signalID.String(),
	)
	sig, err := scanSignal(row)
	if err != nil {
		if isNoRows(err) {
			return nil, accord.ErrSignalNotFound
		}
		return nil, fmt.Errorf("accord/postgres: get signal: %w", err)
	}
	return sig, nil
}

// UpdateSignal persists the signal's current state.
func (s *Store) UpdateSignal(ctx context.Context, sig *settlement.Signal) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accord_signals SET status = $2, data = $3, updated_at = NOW()
		WHERE id = $1`,
		sig.ID.String(), string(sig.Status), nullableJSON(sig.Data),
	)
	if err != nil {
		return fmt.Errorf("accord/postgres: update signal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return accord.ErrSignalNotFound
	}
	return nil
}

// SignalsByExecution returns a workflow's signals ordered by creation
// time.
func (s *Store) SignalsByExecution(ctx context.Context, executionID id.ExecutionID) ([]*settlement.Signal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+signalColumns+` FROM accord_signals
		 WHERE execution_id = $1 ORDER BY created_at ASC`,
		executionID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("accord/postgres: signals by execution: %w", err)
	}
	defer rows.Close()

	var result []*settlement.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("accord/postgres: scan signal: %w", err)
		}
		result = append(result, sig)
	}
	return result, rows.Err()
}

func scanSignal(row pgx.Row) (*settlement.Signal, error) {
	var (
		sig                 settlement.Signal
		rawID, rawExec, sta string
		data                []byte
	)
	if err := row.Scan(&rawID, &rawExec, &sta, &data, &sig.CreatedAt, &sig.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if sig.ID, err = id.ParseSignalID(rawID); err != nil {
		return nil, err
	}
	if sig.ExecutionID, err = id.ParseExecutionID(rawExec); err != nil {
		return nil, err
	}
	sig.Status = settlement.SignalStatus(sta)
	sig.Data = json.RawMessage(data)
	return &sig, nil
}

// marshalOrNull renders a possibly-empty slice as JSON, or SQL NULL.
func marshalOrNull(v any) any {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return nil
	}
	return data
}
