// Package settlement turns workflow completions into settlement
// signals. The engine calls the trigger fire-and-forget when a workflow
// reaches COMPLETED; the signal is persisted and recorded in the trust
// ledger, and downstream payment rails consume it from there. Amount
// and approval business rules live outside this module.
package settlement

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/xraph/accord"
	"github.com/xraph/accord/id"
	"github.com/xraph/accord/ledger"
)

// SignalStatus tracks a settlement signal's delivery state.
type SignalStatus string

const (
	// SignalPending means the signal was created but not yet picked up
	// by a downstream consumer.
	SignalPending SignalStatus = "pending"
	// SignalConsumed means a downstream consumer acknowledged the
	// signal.
	SignalConsumed SignalStatus = "consumed"
)

// Signal is one settlement notification emitted for a completed
// workflow execution.
type Signal struct {
	accord.Entity

	ID          id.SignalID     `json:"id"`
	ExecutionID id.ExecutionID  `json:"execution_id"`
	Status      SignalStatus    `json:"status"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// Store defines the persistence contract for settlement signals.
type Store interface {
	// CreateSignal persists a new signal.
	CreateSignal(ctx context.Context, s *Signal) error

	// GetSignal retrieves a signal by ID, or accord.ErrSignalNotFound.
	GetSignal(ctx context.Context, signalID id.SignalID) (*Signal, error)

	// UpdateSignal persists the signal's current state.
	UpdateSignal(ctx context.Context, s *Signal) error

	// SignalsByExecution returns all signals for a workflow execution,
	// ordered by creation time ascending.
	SignalsByExecution(ctx context.Context, executionID id.ExecutionID) ([]*Signal, error)
}

// Emitter receives settlement signal notifications. *ext.Registry
// satisfies it; the indirection exists because ext imports this
// package.
type Emitter interface {
	EmitSettlementTriggered(ctx context.Context, s *Signal)
}

// Service creates settlement signals and records them in the ledger. It
// satisfies the engine's SettlementTrigger collaborator contract.
type Service struct {
	store   Store
	ledger  *ledger.Ledger
	logger  *slog.Logger
	emitter Emitter
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithEmitter sets the emitter notified after every signal.
func WithEmitter(em Emitter) ServiceOption {
	return func(s *Service) { s.emitter = em }
}

// NewService creates a settlement service.
func NewService(store Store, lg *ledger.Ledger, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		ledger: lg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnWorkflowCompleted creates a pending settlement signal for the
// execution and appends a settlement_triggered ledger event. The engine
// calls this fire-and-forget; failures are logged, never returned into
// the workflow completion path.
func (s *Service) OnWorkflowCompleted(ctx context.Context, executionID id.ExecutionID, workflowData json.RawMessage) {
	sig := &Signal{
		Entity:      accord.NewEntity(),
		ID:          id.NewSignalID(),
		ExecutionID: executionID,
		Status:      SignalPending,
		Data:        workflowData,
	}
	if err := s.store.CreateSignal(ctx, sig); err != nil {
		s.logger.Error("settlement signal not persisted",
			slog.String("execution_id", executionID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	payload := map[string]any{"signal_id": sig.ID.String()}
	if len(workflowData) > 0 {
		payload["workflow_data"] = json.RawMessage(workflowData)
	}
	if _, err := s.ledger.Append(ctx, ledger.EventSettlementTriggered, payload,
		ledger.WithWorkflow(executionID)); err != nil {
		s.logger.Error("settlement event not recorded",
			slog.String("signal_id", sig.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("settlement signal created",
		slog.String("signal_id", sig.ID.String()),
		slog.String("execution_id", executionID.String()),
	)
	if s.emitter != nil {
		s.emitter.EmitSettlementTriggered(ctx, sig)
	}
}

// Consume marks a pending signal as consumed by a downstream system.
func (s *Service) Consume(ctx context.Context, signalID id.SignalID) (*Signal, error) {
	sig, err := s.store.GetSignal(ctx, signalID)
	if err != nil {
		return nil, err
	}
	if sig.Status != SignalPending {
		return nil, &invalidSignalState{id: signalID, status: sig.Status}
	}
	sig.Status = SignalConsumed
	sig.Touch()
	if err := s.store.UpdateSignal(ctx, sig); err != nil {
		return nil, err
	}
	return sig, nil
}

// SignalsByExecution lists all signals for an execution.
func (s *Service) SignalsByExecution(ctx context.Context, executionID id.ExecutionID) ([]*Signal, error) {
	return s.store.SignalsByExecution(ctx, executionID)
}

type invalidSignalState struct {
	id     id.SignalID
	status SignalStatus
}

func (e *invalidSignalState) Error() string {
	return "settlement: signal " + e.id.String() + " is " + string(e.status) + ", not pending"
}

func (e *invalidSignalState) Unwrap() error { return accord.ErrInvalidTransition }
