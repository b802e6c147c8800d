package compliance_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/accord"
	"github.com/xraph/accord/compliance"
	"github.com/xraph/accord/id"
	"github.com/xraph/accord/ledger"
	"github.com/xraph/accord/store/memory"
)

func newTestService() (*compliance.Service, *ledger.Ledger) {
	s := memory.New()
	lg := ledger.New(s)
	return compliance.NewService(s, lg), lg
}

func TestCreateCheckpoint_RejectsMalformedRules(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateCheckpoint(context.Background(), "limits", id.NewExecutionID(), []compliance.Rule{
		{Field: "amount", Op: "regex"},
	})
	if err == nil {
		t.Error("expected error for unknown operator")
	}

	_, err = svc.CreateCheckpoint(context.Background(), "", id.NewExecutionID(), []compliance.Rule{
		{Field: "amount", Op: compliance.OpPresent},
	})
	if err == nil {
		t.Error("expected error for empty name")
	}
}

func TestEvaluateCheckpoint_PassRecordsLedgerEvent(t *testing.T) {
	svc, lg := newTestService()
	ctx := context.Background()
	wfID := id.NewExecutionID()

	c, err := svc.CreateCheckpoint(ctx, "spend-limit", wfID, []compliance.Rule{
		{Field: "amount", Op: compliance.OpLte, Value: 1000},
	})
	if err != nil {
		t.Fatalf("CreateCheckpoint: %v", err)
	}
	if c.Status != compliance.CheckpointPending {
		t.Fatalf("status = %s, want pending", c.Status)
	}

	evaluated, err := svc.EvaluateCheckpoint(ctx, c.ID, map[string]any{"amount": 500})
	if err != nil {
		t.Fatalf("EvaluateCheckpoint: %v", err)
	}
	if evaluated.Status != compliance.CheckpointPassed {
		t.Errorf("status = %s, want passed", evaluated.Status)
	}
	if evaluated.EvaluatedAt == nil {
		t.Error("EvaluatedAt not set")
	}

	events, err := lg.EventsByWorkflow(ctx, wfID, ledger.EventCheckpointPassed)
	if err != nil {
		t.Fatalf("EventsByWorkflow: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("len(checkpoint_passed events) = %d, want 1", len(events))
	}
}

func TestEvaluateCheckpoint_FailureCarriesViolations(t *testing.T) {
	svc, lg := newTestService()
	ctx := context.Background()
	wfID := id.NewExecutionID()

	c, err := svc.CreateCheckpoint(ctx, "spend-limit", wfID, []compliance.Rule{
		{Field: "amount", Op: compliance.OpLte, Value: 1000},
		{Field: "currency", Op: compliance.OpPresent},
	})
	if err != nil {
		t.Fatalf("CreateCheckpoint: %v", err)
	}

	evaluated, err := svc.EvaluateCheckpoint(ctx, c.ID, map[string]any{"amount": 5000})
	if err != nil {
		t.Fatalf("EvaluateCheckpoint: %v", err)
	}
	if evaluated.Status != compliance.CheckpointFailed {
		t.Errorf("status = %s, want failed", evaluated.Status)
	}
	if len(evaluated.Violations) != 2 {
		t.Errorf("len(violations) = %d, want 2", len(evaluated.Violations))
	}

	events, err := lg.EventsByWorkflow(ctx, wfID, ledger.EventCheckpointFailed)
	if err != nil {
		t.Fatalf("EventsByWorkflow: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("len(checkpoint_failed events) = %d, want 1", len(events))
	}
}

func TestEvaluateCheckpoint_Twice(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	c, err := svc.CreateCheckpoint(ctx, "once", id.NewExecutionID(), []compliance.Rule{
		{Field: "amount", Op: compliance.OpPresent},
	})
	if err != nil {
		t.Fatalf("CreateCheckpoint: %v", err)
	}

	if _, err := svc.EvaluateCheckpoint(ctx, c.ID, map[string]any{"amount": 1}); err != nil {
		t.Fatalf("EvaluateCheckpoint: %v", err)
	}
	_, err = svc.EvaluateCheckpoint(ctx, c.ID, map[string]any{"amount": 1})
	if !errors.Is(err, accord.ErrInvalidTransition) {
		t.Errorf("second evaluation error = %v, want ErrInvalidTransition", err)
	}
}

func TestEvaluateAgainstLedger(t *testing.T) {
	svc, lg := newTestService()
	ctx := context.Background()
	wfID := id.NewExecutionID()

	if _, err := lg.Append(ctx, ledger.EventTaskCompleted, map[string]any{"amount": 750, "currency": "USD"},
		ledger.WithWorkflow(wfID)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	c, err := svc.CreateCheckpoint(ctx, "settlement-gate", wfID, []compliance.Rule{
		{Field: "amount", Op: compliance.OpLt, Value: 1000},
		{Field: "currency", Op: compliance.OpIn, Values: []any{"USD", "EUR"}},
	})
	if err != nil {
		t.Fatalf("CreateCheckpoint: %v", err)
	}

	evaluated, err := svc.EvaluateAgainstLedger(ctx, c.ID, ledger.EventTaskCompleted)
	if err != nil {
		t.Fatalf("EvaluateAgainstLedger: %v", err)
	}
	if evaluated.Status != compliance.CheckpointPassed {
		t.Errorf("status = %s, want passed (violations: %v)", evaluated.Status, evaluated.Violations)
	}
}

func TestEvaluateAgainstLedger_NoEventsFailsClosed(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	c, err := svc.CreateCheckpoint(ctx, "empty-history", id.NewExecutionID(), []compliance.Rule{
		{Field: "amount", Op: compliance.OpPresent},
	})
	if err != nil {
		t.Fatalf("CreateCheckpoint: %v", err)
	}

	evaluated, err := svc.EvaluateAgainstLedger(ctx, c.ID)
	if err != nil {
		t.Fatalf("EvaluateAgainstLedger: %v", err)
	}
	if evaluated.Status != compliance.CheckpointFailed {
		t.Errorf("status = %s, want failed", evaluated.Status)
	}
}

type checkpointEmitter struct {
	evaluated []*compliance.Checkpoint
}

func (e *checkpointEmitter) EmitCheckpointEvaluated(_ context.Context, c *compliance.Checkpoint) {
	e.evaluated = append(e.evaluated, c)
}

func TestEvaluateCheckpoint_NotifiesEmitter(t *testing.T) {
	em := &checkpointEmitter{}
	s := memory.New()
	svc := compliance.NewService(s, ledger.New(s), compliance.WithEmitter(em))
	ctx := context.Background()

	c, err := svc.CreateCheckpoint(ctx, "spend-limit", id.NewExecutionID(), []compliance.Rule{
		{Field: "amount", Op: compliance.OpLte, Value: 1000},
	})
	if err != nil {
		t.Fatalf("CreateCheckpoint: %v", err)
	}
	if _, err := svc.EvaluateCheckpoint(ctx, c.ID, map[string]any{"amount": 250}); err != nil {
		t.Fatalf("EvaluateCheckpoint: %v", err)
	}

	if len(em.evaluated) != 1 {
		t.Fatalf("emitter saw %d evaluations, want 1", len(em.evaluated))
	}
	if em.evaluated[0].Status != compliance.CheckpointPassed {
		t.Errorf("emitted status = %s, want passed", em.evaluated[0].Status)
	}
}

func TestGetCheckpoint_NotFound(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.GetCheckpoint(context.Background(), id.NewCheckpointID())
	if !errors.Is(err, accord.ErrCheckpointNotFound) {
		t.Errorf("error = %v, want ErrCheckpointNotFound", err)
	}
}
