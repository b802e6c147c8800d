package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/accord"
	"github.com/xraph/accord/approval"
	"github.com/xraph/accord/compliance"
	"github.com/xraph/accord/id"
	"github.com/xraph/accord/settlement"
)

// ── Compliance checkpoints ─────────────────────────────────────────

// CreateCheckpoint persists a new checkpoint.
func (s *Store) CreateCheckpoint(ctx context.Context, c *compliance.Checkpoint) error {
	m, err := toCheckpointModel(c)
	if err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("accord/bun: create checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves a checkpoint by ID.
func (s *Store) GetCheckpoint(ctx context.Context, checkpointID id.CheckpointID) (*compliance.Checkpoint, error) {
	m := new(checkpointModel)
	err := s.db.NewSelect().Model(m).Where("id = ?", checkpointID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, accord.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("accord/bun: get checkpoint: %w", err)
	}
	return fromCheckpointModel(m)
}

// UpdateCheckpoint persists the checkpoint's current state.
func (s *Store) UpdateCheckpoint(ctx context.Context, c *compliance.Checkpoint) error {
	m, err := toCheckpointModel(c)
	if err != nil {
		return err
	}
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().
		Model(m).
		Column("status", "violations", "rule_errors", "evaluated_at", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("accord/bun: update checkpoint: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return accord.ErrCheckpointNotFound
	}
	return nil
}

// CheckpointsByWorkflow returns a workflow's checkpoints ordered by
// creation time.
func (s *Store) CheckpointsByWorkflow(ctx context.Context, workflowID id.ExecutionID) ([]*compliance.Checkpoint, error) {
	var models []checkpointModel
	err := s.db.NewSelect().
		Model(&models).
		Where("workflow_id = ?", workflowID.String()).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: checkpoints by workflow: %w", err)
	}
	result := make([]*compliance.Checkpoint, 0, len(models))
	for i := range models {
		c, err := fromCheckpointModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, nil
}

// ── Approvals ──────────────────────────────────────────────────────

// CreateApproval persists a new approval request.
func (s *Store) CreateApproval(ctx context.Context, a *approval.Approval) error {
	if _, err := s.db.NewInsert().Model(toApprovalModel(a)).Exec(ctx); err != nil {
		return fmt.Errorf("accord/bun: create approval: %w", err)
	}
	return nil
}

// GetApproval retrieves an approval by ID.
func (s *Store) GetApproval(ctx context.Context, approvalID id.ApprovalID) (*approval.Approval, error) {
	m := new(approvalModel)
	err := s.db.NewSelect().Model(m).Where("id = ?", approvalID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, accord.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("accord/bun: get approval: %w", err)
	}
	return fromApprovalModel(m)
}

// UpdateApproval persists the approval's current state.
func (s *Store) UpdateApproval(ctx context.Context, a *approval.Approval) error {
	m := toApprovalModel(a)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().
		Model(m).
		Column("status", "decided_by", "reason", "payload", "decided_at", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("accord/bun: update approval: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return accord.ErrApprovalNotFound
	}
	return nil
}

// PendingApprovals returns all undecided approvals ordered by creation
// time.
func (s *Store) PendingApprovals(ctx context.Context) ([]*approval.Approval, error) {
	var models []approvalModel
	err := s.db.NewSelect().
		Model(&models).
		Where("status = ?", string(approval.StatusPending)).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: pending approvals: %w", err)
	}
	return collectApprovalModels(models)
}

// ApprovalsByExecution returns a workflow's approvals ordered by
// creation time.
func (s *Store) ApprovalsByExecution(ctx context.Context, executionID id.ExecutionID) ([]*approval.Approval, error) {
	var models []approvalModel
	err := s.db.NewSelect().
		Model(&models).
		Where("execution_id = ?", executionID.String()).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: approvals by execution: %w", err)
	}
	return collectApprovalModels(models)
}

func collectApprovalModels(models []approvalModel) ([]*approval.Approval, error) {
	result := make([]*approval.Approval, 0, len(models))
	for i := range models {
		a, err := fromApprovalModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, nil
}

// ── Settlement signals ─────────────────────────────────────────────

// CreateSignal persists a new settlement signal.
func (s *Store) CreateSignal(ctx context.Context, sig *settlement.Signal) error {
	if _, err := s.db.NewInsert().Model(toSignalModel(sig)).Exec(ctx); err != nil {
		return fmt.Errorf("accord/bun: create signal: %w", err)
	}
	return nil
}

// GetSignal retrieves a signal by ID.
func (s *Store) GetSignal(ctx context.Context, signalID id.SignalID) (*settlement.Signal, error) {
	m := new(signalModel)
	err := s.db.NewSelect().Model(m).Where("id = ?", signalID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, accord.ErrSignalNotFound
		}
		return nil, fmt.Errorf("accord/bun: get signal: %w", err)
	}
	return fromSignalModel(m)
}

// UpdateSignal persists the signal's current state.
func (s *Store) UpdateSignal(ctx context.Context, sig *settlement.Signal) error {
	m := toSignalModel(sig)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().
		Model(m).
		Column("status", "data", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("accord/bun: update signal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return accord.ErrSignalNotFound
	}
	return nil
}

// SignalsByExecution returns a workflow's signals ordered by creation
// time.
func (s *Store) SignalsByExecution(ctx context.Context, executionID id.ExecutionID) ([]*settlement.Signal, error) {
	var models []signalModel
	err := s.db.NewSelect().
		Model(&models).
		Where("execution_id = ?", executionID.String()).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: signals by execution: %w", err)
	}
	result := make([]*settlement.Signal, 0, len(models))
	for i := range models {
		sig, err := fromSignalModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, sig)
	}
	return result, nil
}
