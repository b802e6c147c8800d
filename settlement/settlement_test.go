package settlement_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/xraph/accord"
	"github.com/xraph/accord/id"
	"github.com/xraph/accord/ledger"
	"github.com/xraph/accord/settlement"
	"github.com/xraph/accord/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*settlement.Service, *memory.Store, *ledger.Ledger) {
	t.Helper()
	st := memory.New()
	lg := ledger.New(st, ledger.WithLogger(discardLogger()))
	return settlement.NewService(st, lg, settlement.WithLogger(discardLogger())), st, lg
}

func TestOnWorkflowCompletedCreatesSignal(t *testing.T) {
	svc, _, lg := newTestService(t)
	ctx := context.Background()

	execID := id.NewExecutionID()
	data := json.RawMessage(`{"invoice":{"total":42}}`)
	svc.OnWorkflowCompleted(ctx, execID, data)

	signals, err := svc.SignalsByExecution(ctx, execID)
	if err != nil {
		t.Fatalf("signals by execution: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("len(signals) = %d, want 1", len(signals))
	}
	if signals[0].Status != settlement.SignalPending {
		t.Errorf("Status = %q, want pending", signals[0].Status)
	}
	if string(signals[0].Data) != string(data) {
		t.Errorf("Data = %s, want %s", signals[0].Data, data)
	}

	events, err := lg.EventsByWorkflow(ctx, execID, ledger.EventSettlementTriggered)
	if err != nil {
		t.Fatalf("events by workflow: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("settlement_triggered events = %d, want 1", len(events))
	}

	var payload struct {
		SignalID string `json:"signal_id"`
	}
	if err := json.Unmarshal(events[0].Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.SignalID != signals[0].ID.String() {
		t.Errorf("event signal_id = %q, want %q", payload.SignalID, signals[0].ID)
	}
}

type signalEmitter struct {
	signals []*settlement.Signal
}

func (e *signalEmitter) EmitSettlementTriggered(_ context.Context, s *settlement.Signal) {
	e.signals = append(e.signals, s)
}

func TestOnWorkflowCompletedNotifiesEmitter(t *testing.T) {
	em := &signalEmitter{}
	st := memory.New()
	lg := ledger.New(st, ledger.WithLogger(discardLogger()))
	svc := settlement.NewService(st, lg,
		settlement.WithLogger(discardLogger()),
		settlement.WithEmitter(em),
	)

	execID := id.NewExecutionID()
	svc.OnWorkflowCompleted(context.Background(), execID, nil)

	if len(em.signals) != 1 {
		t.Fatalf("emitter saw %d signals, want 1", len(em.signals))
	}
	if em.signals[0].ExecutionID.String() != execID.String() {
		t.Errorf("emitted execution_id = %s, want %s", em.signals[0].ExecutionID, execID)
	}
}

func TestConsumeMarksSignalConsumed(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	execID := id.NewExecutionID()
	svc.OnWorkflowCompleted(ctx, execID, nil)

	signals, err := svc.SignalsByExecution(ctx, execID)
	if err != nil {
		t.Fatalf("signals by execution: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("len(signals) = %d, want 1", len(signals))
	}

	consumed, err := svc.Consume(ctx, signals[0].ID)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if consumed.Status != settlement.SignalConsumed {
		t.Errorf("Status = %q, want consumed", consumed.Status)
	}

	// A second consume is rejected.
	if _, err := svc.Consume(ctx, signals[0].ID); !errors.Is(err, accord.ErrInvalidTransition) {
		t.Fatalf("second consume: err = %v, want ErrInvalidTransition", err)
	}
}

func TestConsumeUnknownSignal(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Consume(context.Background(), id.NewSignalID())
	if !errors.Is(err, accord.ErrSignalNotFound) {
		t.Fatalf("err = %v, want ErrSignalNotFound", err)
	}
}
