package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/xraph/accord"
	"github.com/xraph/accord/backoff"
	"github.com/xraph/accord/engine"
	"github.com/xraph/accord/ext"
	"github.com/xraph/accord/ledger"
	"github.com/xraph/accord/store/memory"
	"github.com/xraph/accord/workflow"
)

// ledgerRecorder counts ledger hook notifications.
type ledgerRecorder struct {
	mu       sync.Mutex
	appended int
	sealed   int
}

func (r *ledgerRecorder) Name() string { return "ledger-recorder" }

func (r *ledgerRecorder) OnLedgerAppended(context.Context, *ledger.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appended++
	return nil
}

func (r *ledgerRecorder) OnBlockSealed(context.Context, *ledger.Block) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed++
	return nil
}

func (r *ledgerRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appended, r.sealed
}

func TestBuildWiresConfigSealerAndHooks(t *testing.T) {
	st := memory.New()
	reg := ext.NewRegistry(discardLogger())
	rec := &ledgerRecorder{}
	reg.Register(rec)

	o, err := accord.New(
		accord.WithStore(st),
		accord.WithLogger(discardLogger()),
		accord.WithConfig(accord.Config{
			Concurrency:          4,
			RetryPollInterval:    5 * time.Millisecond,
			TimeoutSweepInterval: 10 * time.Millisecond,
			ShutdownTimeout:      5 * time.Second,
			SealSchedule:         "@every 10ms",
		}),
	)
	if err != nil {
		t.Fatalf("accord.New: %v", err)
	}

	exec := newScriptedExecutor()
	eng, lg, err := engine.Build(o, st, reg,
		engine.WithExecutor(exec),
		engine.WithBackoff(backoff.NewConstant(time.Millisecond)),
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	def := createDefinition(t, eng,
		[]workflow.TaskSpec{{SpecID: "a", Name: "a", Type: workflow.TaskTypeAgent}},
		nil,
	)
	run, err := eng.StartWorkflow(context.Background(), def.ID, nil)
	if err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}
	waitForExecution(t, eng, run.ID, workflow.ExecutionCompleted)

	if appended, _ := rec.counts(); appended == 0 {
		t.Error("ledger append hook never notified")
	}

	// The sealer built from Config.SealSchedule eventually seals the
	// run's events into a block.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := lg.Store().LastBlock(context.Background()); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := lg.Store().LastBlock(context.Background()); err != nil {
		t.Fatalf("no block sealed: %v", err)
	}
	if _, sealed := rec.counts(); sealed == 0 {
		t.Error("block seal hook never notified")
	}

	if err := o.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestBuildRejectsBadSealSchedule(t *testing.T) {
	st := memory.New()
	o, err := accord.New(
		accord.WithStore(st),
		accord.WithLogger(discardLogger()),
		accord.WithSealSchedule("not a schedule"),
	)
	if err != nil {
		t.Fatalf("accord.New: %v", err)
	}

	if _, _, err := engine.Build(o, st, ext.NewRegistry(discardLogger())); err == nil {
		t.Error("expected error for malformed seal schedule")
	}
}
