package ext_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/accord"
	"github.com/xraph/accord/ext"
	"github.com/xraph/accord/id"
	"github.com/xraph/accord/settlement"
	"github.com/xraph/accord/workflow"
)

// recorder implements a subset of hooks and records the calls it
// receives.
type recorder struct {
	name  string
	calls []string
	err   error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnWorkflowStarted(context.Context, *workflow.Execution) error {
	r.calls = append(r.calls, "workflow_started")
	return r.err
}

func (r *recorder) OnTaskCompleted(context.Context, *workflow.Task, time.Duration) error {
	r.calls = append(r.calls, "task_completed")
	return r.err
}

func (r *recorder) OnSettlementTriggered(context.Context, *settlement.Signal) error {
	r.calls = append(r.calls, "settlement_triggered")
	return r.err
}

func (r *recorder) OnShutdown(context.Context) error {
	r.calls = append(r.calls, "shutdown")
	return r.err
}

func newExecution() *workflow.Execution {
	return &workflow.Execution{
		Entity: accord.NewEntity(),
		ID:     id.NewExecutionID(),
		Status: workflow.ExecutionRunning,
	}
}

func TestRegistry_EmitsOnlyImplementedHooks(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := ext.NewRegistry(logger)

	rec := &recorder{name: "rec"}
	reg.Register(rec)

	ctx := context.Background()
	reg.EmitWorkflowStarted(ctx, newExecution())
	reg.EmitTaskCompleted(ctx, &workflow.Task{}, time.Second)
	// rec does not implement TaskFailed; this must be a silent no-op.
	reg.EmitTaskFailed(ctx, &workflow.Task{}, errors.New("boom"))
	reg.EmitSettlementTriggered(ctx, &settlement.Signal{})
	reg.EmitShutdown(ctx)

	want := []string{"workflow_started", "task_completed", "settlement_triggered", "shutdown"}
	if len(rec.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", rec.calls, want)
	}
	for i := range want {
		if rec.calls[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, rec.calls[i], want[i])
		}
	}
}

func TestRegistry_RegistrationOrder(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := ext.NewRegistry(logger)

	var order []string
	first := &orderedExt{name: "first", order: &order}
	second := &orderedExt{name: "second", order: &order}
	reg.Register(first)
	reg.Register(second)

	reg.EmitWorkflowStarted(context.Background(), newExecution())

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("emit order = %v, want [first second]", order)
	}
}

type orderedExt struct {
	name  string
	order *[]string
}

func (o *orderedExt) Name() string { return o.name }

func (o *orderedExt) OnWorkflowStarted(context.Context, *workflow.Execution) error {
	*o.order = append(*o.order, o.name)
	return nil
}

func TestRegistry_HookErrorsDoNotPropagate(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := ext.NewRegistry(logger)

	failing := &recorder{name: "failing", err: errors.New("hook broke")}
	healthy := &recorder{name: "healthy"}
	reg.Register(failing)
	reg.Register(healthy)

	// Must not panic, and the healthy extension still gets the event.
	reg.EmitWorkflowStarted(context.Background(), newExecution())

	if len(healthy.calls) != 1 {
		t.Errorf("healthy extension calls = %v, want 1 call", healthy.calls)
	}
}

func TestRegistry_Extensions(t *testing.T) {
	reg := ext.NewRegistry(nil)
	reg.Register(&recorder{name: "a"})
	reg.Register(&recorder{name: "b"})

	if got := len(reg.Extensions()); got != 2 {
		t.Errorf("len(Extensions()) = %d, want 2", got)
	}
}
