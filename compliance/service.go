package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/accord"
	"github.com/xraph/accord/id"
	"github.com/xraph/accord/ledger"
)

// Emitter receives checkpoint evaluation notifications. *ext.Registry
// satisfies it; the indirection exists because ext imports this
// package.
type Emitter interface {
	EmitCheckpointEvaluated(ctx context.Context, c *Checkpoint)
}

// Service creates checkpoints, evaluates them, and records every
// evaluation outcome as a ledger event before returning it to the
// caller.
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

// WithEmitter sets the emitter notified after every evaluation.
func WithEmitter(em Emitter) ServiceOption {
	return func(s *Service) { s.emitter = em }
}

// NewService creates a compliance service over the given store and
// ledger.
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

// CreateCheckpoint validates the rule set and persists a pending
// checkpoint bound to the given workflow execution.
func (s *Service) CreateCheckpoint(ctx context.Context, name string, workflowID id.ExecutionID, rules []Rule) (*Checkpoint, error) {
	if name == "" {
		return nil, fmt.Errorf("compliance: checkpoint name is required")
	}
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}

	c := &Checkpoint{
		Entity:     accord.NewEntity(),
		ID:         id.NewCheckpointID(),
		Name:       name,
		WorkflowID: workflowID,
		Rules:      rules,
		Status:     CheckpointPending,
	}
	if err := s.store.CreateCheckpoint(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("compliance checkpoint created",
		slog.String("checkpoint_id", c.ID.String()),
		slog.String("name", name),
		slog.String("workflow_id", workflowID.String()),
		slog.Int("rules", len(rules)),
	)
	return c, nil
}

// GetCheckpoint retrieves a checkpoint by ID.
func (s *Service) GetCheckpoint(ctx context.Context, checkpointID id.CheckpointID) (*Checkpoint, error) {
	return s.store.GetCheckpoint(ctx, checkpointID)
}

// CheckpointsByWorkflow lists all checkpoints for a workflow execution.
func (s *Service) CheckpointsByWorkflow(ctx context.Context, workflowID id.ExecutionID) ([]*Checkpoint, error) {
	return s.store.CheckpointsByWorkflow(ctx, workflowID)
}

// EvaluateCheckpoint evaluates a pending checkpoint's rules against the
// given payload, persists the result, and appends a checkpoint_passed or
// checkpoint_failed ledger event. An already-evaluated checkpoint
// returns accord.ErrInvalidTransition.
func (s *Service) EvaluateCheckpoint(ctx context.Context, checkpointID id.CheckpointID, payload map[string]any) (*Checkpoint, error) {
	c, err := s.store.GetCheckpoint(ctx, checkpointID)
	if err != nil {
		return nil, err
	}
	if c.Terminal() {
		return nil, fmt.Errorf("compliance: checkpoint %s already evaluated as %s: %w", c.ID, c.Status, accord.ErrInvalidTransition)
	}

	return s.record(ctx, c, Evaluate(c.Rules, payload))
}

// EvaluateAgainstLedger evaluates a pending checkpoint against the
// payload of the workflow's most recent ledger event, optionally
// restricted to the given event types. A workflow with no matching
// events fails the checkpoint: evaluation is fail-closed end to end.
func (s *Service) EvaluateAgainstLedger(ctx context.Context, checkpointID id.CheckpointID, types ...ledger.EventType) (*Checkpoint, error) {
	c, err := s.store.GetCheckpoint(ctx, checkpointID)
	if err != nil {
		return nil, err
	}
	if c.Terminal() {
		return nil, fmt.Errorf("compliance: checkpoint %s already evaluated as %s: %w", c.ID, c.Status, accord.ErrInvalidTransition)
	}

	events, err := s.ledger.EventsByWorkflow(ctx, c.WorkflowID, types...)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		outcome := Outcome{Passed: false, Violations: []RuleViolation{{
			Reason: "no ledger events to evaluate against",
		}}}
		return s.record(ctx, c, outcome)
	}

	latest := events[len(events)-1]
	return s.record(ctx, c, EvaluateJSON(c.Rules, latest.Payload))
}

func (s *Service) record(ctx context.Context, c *Checkpoint, outcome Outcome) (*Checkpoint, error) {
	now := time.Now().UTC()
	c.Status = CheckpointFailed
	if outcome.Passed {
		c.Status = CheckpointPassed
	}
	c.Violations = outcome.Violations
	c.RuleErrors = outcome.RuleErrors
	c.EvaluatedAt = &now
	c.Touch()

	if err := s.store.UpdateCheckpoint(ctx, c); err != nil {
		return nil, err
	}

	eventType := ledger.EventCheckpointFailed
	if outcome.Passed {
		eventType = ledger.EventCheckpointPassed
	}
	eventPayload := map[string]any{
		"checkpoint_id": c.ID.String(),
		"name":          c.Name,
		"passed":        outcome.Passed,
	}
	if len(outcome.Violations) > 0 {
		eventPayload["violations"] = outcome.Violations
	}
	if len(outcome.RuleErrors) > 0 {
		eventPayload["rule_errors"] = outcome.RuleErrors
	}
	if _, err := s.ledger.Append(ctx, eventType, eventPayload, ledger.WithWorkflow(c.WorkflowID)); err != nil {
		return nil, err
	}

	s.logger.Info("compliance checkpoint evaluated",
		slog.String("checkpoint_id", c.ID.String()),
		slog.String("name", c.Name),
		slog.String("status", string(c.Status)),
		slog.Int("violations", len(outcome.Violations)),
		slog.Int("rule_errors", len(outcome.RuleErrors)),
	)
	if s.emitter != nil {
		s.emitter.EmitCheckpointEvaluated(ctx, c)
	}
	return c, nil
}
