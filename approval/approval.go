// Package approval manages human approval decisions for
// human_approval tasks. When the engine suspends a task in
// WAITING_INPUT it requests an approval here; an external channel (see
// the redis subpackage) eventually delivers a decision, which resumes
// the task through the engine's callback.
package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/accord"
	"github.com/xraph/accord/id"
	"github.com/xraph/accord/ledger"
)

// Status tracks an approval request's lifecycle.
type Status string

const (
	// StatusPending means the request awaits a decision.
	StatusPending Status = "pending"
	// StatusApproved means a decider granted the request.
	StatusApproved Status = "approved"
	// StatusRejected means a decider rejected the request.
	StatusRejected Status = "rejected"
)

// Approval is one pending or decided approval request, bound to the
// suspended task that raised it.
type Approval struct {
	accord.Entity

	ID          id.ApprovalID   `json:"id"`
	ExecutionID id.ExecutionID  `json:"execution_id"`
	TaskID      id.TaskID       `json:"task_id"`
	Status      Status          `json:"status"`
	Prompt      string          `json:"prompt,omitempty"`
	DecidedBy   string          `json:"decided_by,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	DecidedAt   *time.Time      `json:"decided_at,omitempty"`
}

// Store defines the persistence contract for approvals.
type Store interface {
	// CreateApproval persists a new approval request.
	CreateApproval(ctx context.Context, a *Approval) error

	// GetApproval retrieves an approval by ID, or
	// accord.ErrApprovalNotFound.
	GetApproval(ctx context.Context, approvalID id.ApprovalID) (*Approval, error)

	// UpdateApproval persists the approval's current state.
	UpdateApproval(ctx context.Context, a *Approval) error

	// PendingApprovals returns all undecided approvals, ordered by
	// creation time ascending.
	PendingApprovals(ctx context.Context) ([]*Approval, error)

	// ApprovalsByExecution returns all approvals for a workflow
	// execution, ordered by creation time ascending.
	ApprovalsByExecution(ctx context.Context, executionID id.ExecutionID) ([]*Approval, error)
}

// TaskResumer is the engine-side callback that resumes a suspended task
// once a decision lands.
type TaskResumer interface {
	ResumeTask(ctx context.Context, taskID id.TaskID, approved bool, payload json.RawMessage) error
}

// Gateway is an outbound notification channel for new approval
// requests (chat message, e-mail, queue publish). Delivery is
// best-effort: a failed notification leaves the request pending and
// discoverable through PendingApprovals.
type Gateway interface {
	NotifyRequested(ctx context.Context, a *Approval) error
}

// Service creates approval requests and applies decisions. Every
// request and decision is recorded in the trust ledger before control
// returns to the caller.
type Service struct {
	store   Store
	ledger  *ledger.Ledger
	resumer TaskResumer
	gateway Gateway
	logger  *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithGateway sets the outbound notification gateway.
func WithGateway(g Gateway) ServiceOption {
	return func(s *Service) { s.gateway = g }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates an approval service. The resumer is the engine
// callback used to resume tasks after a decision.
func NewService(store Store, lg *ledger.Ledger, resumer TaskResumer, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		ledger:  lg,
		resumer: resumer,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request creates a pending approval for a suspended task and appends
// an approval_requested ledger event. The gateway, when configured, is
// notified after the request is durably recorded.
func (s *Service) Request(ctx context.Context, executionID id.ExecutionID, taskID id.TaskID, prompt string) (*Approval, error) {
	a := &Approval{
		Entity:      accord.NewEntity(),
		ID:          id.NewApprovalID(),
		ExecutionID: executionID,
		TaskID:      taskID,
		Status:      StatusPending,
		Prompt:      prompt,
	}
	if err := s.store.CreateApproval(ctx, a); err != nil {
		return nil, err
	}

	if _, err := s.ledger.Append(ctx, ledger.EventApprovalRequested,
		map[string]any{"approval_id": a.ID.String(), "prompt": prompt},
		ledger.WithWorkflow(executionID), ledger.WithTask(taskID),
	); err != nil {
		return nil, err
	}

	if s.gateway != nil {
		if err := s.gateway.NotifyRequested(ctx, a); err != nil {
			s.logger.Warn("approval notification failed",
				slog.String("approval_id", a.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("approval requested",
		slog.String("approval_id", a.ID.String()),
		slog.String("task_id", taskID.String()),
	)
	return a, nil
}

// Decide applies a decision to a pending approval: the approval is
// updated, an approval_granted or approval_rejected event is appended
// with the decider as actor, and the suspended task is resumed through
// the engine callback. Deciding a non-pending approval returns
// accord.ErrInvalidTransition.
func (s *Service) Decide(ctx context.Context, approvalID id.ApprovalID, approved bool, decidedBy, reason string, payload json.RawMessage) (*Approval, error) {
	a, err := s.store.GetApproval(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusPending {
		return nil, fmt.Errorf("approval: %s already decided as %s: %w", a.ID, a.Status, accord.ErrInvalidTransition)
	}

	now := time.Now().UTC()
	a.Status = StatusRejected
	if approved {
		a.Status = StatusApproved
	}
	a.DecidedBy = decidedBy
	a.Reason = reason
	a.Payload = payload
	a.DecidedAt = &now
	a.Touch()
	if err := s.store.UpdateApproval(ctx, a); err != nil {
		return nil, err
	}

	eventType := ledger.EventApprovalRejected
	if approved {
		eventType = ledger.EventApprovalGranted
	}
	if _, err := s.ledger.Append(ctx, eventType,
		map[string]any{"approval_id": a.ID.String(), "reason": reason},
		ledger.WithWorkflow(a.ExecutionID), ledger.WithTask(a.TaskID),
		ledger.WithActor("user", decidedBy),
	); err != nil {
		return nil, err
	}

	if err := s.resumer.ResumeTask(ctx, a.TaskID, approved, payload); err != nil {
		return nil, err
	}

	s.logger.Info("approval decided",
		slog.String("approval_id", a.ID.String()),
		slog.String("status", string(a.Status)),
		slog.String("decided_by", decidedBy),
	)
	return a, nil
}

// RequestApproval adapts Request to the engine's ApprovalRequester
// collaborator contract.
func (s *Service) RequestApproval(ctx context.Context, executionID id.ExecutionID, taskID id.TaskID, prompt string) error {
	_, err := s.Request(ctx, executionID, taskID, prompt)
	return err
}

// Get retrieves an approval by ID.
func (s *Service) Get(ctx context.Context, approvalID id.ApprovalID) (*Approval, error) {
	return s.store.GetApproval(ctx, approvalID)
}

// Pending lists all undecided approvals.
func (s *Service) Pending(ctx context.Context) ([]*Approval, error) {
	return s.store.PendingApprovals(ctx)
}
