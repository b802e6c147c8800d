package accord_test

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/accord"
)

// fakeRunner records the context its lifecycle calls receive.
type fakeRunner struct {
	started      bool
	stopDeadline time.Time
	hadDeadline  bool
}

func (f *fakeRunner) Start(context.Context) error {
	f.started = true
	return nil
}

func (f *fakeRunner) Stop(ctx context.Context) error {
	f.stopDeadline, f.hadDeadline = ctx.Deadline()
	return nil
}

func TestStopAppliesShutdownTimeout(t *testing.T) {
	o, err := accord.New(
		accord.WithConfig(accord.Config{ShutdownTimeout: 50 * time.Millisecond}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	runner := &fakeRunner{}
	o.SetEngine(runner)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	before := time.Now()
	if err := o.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if !runner.hadDeadline {
		t.Fatal("engine Stop received a context without a deadline")
	}
	if limit := before.Add(time.Second); runner.stopDeadline.After(limit) {
		t.Errorf("stop deadline %s too far out, want within ShutdownTimeout", runner.stopDeadline)
	}
}

func TestStopWithoutTimeoutPassesContextThrough(t *testing.T) {
	o, err := accord.New(accord.WithConfig(accord.Config{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	runner := &fakeRunner{}
	o.SetEngine(runner)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := o.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if runner.hadDeadline {
		t.Error("zero ShutdownTimeout must not impose a deadline")
	}
}
