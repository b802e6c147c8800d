package cron_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/accord"
	"github.com/xraph/accord/cron"
	"github.com/xraph/accord/id"
	"github.com/xraph/accord/workflow"
)

type recordingStarter struct {
	mu     sync.Mutex
	starts []id.DefinitionID
	inputs []json.RawMessage
}

func (r *recordingStarter) StartWorkflow(_ context.Context, definitionID id.DefinitionID, input json.RawMessage) (*workflow.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, definitionID)
	r.inputs = append(r.inputs, input)
	return &workflow.Execution{
		Entity:       accord.NewEntity(),
		ID:           id.NewExecutionID(),
		DefinitionID: definitionID,
		Status:       workflow.ExecutionRunning,
	}, nil
}

func (r *recordingStarter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.starts)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegisterRejectsBadExpression(t *testing.T) {
	s := cron.NewScheduler(&recordingStarter{}, cron.WithLogger(discardLogger()))

	if _, err := s.Register("bad", "not a schedule", id.NewDefinitionID(), nil); err == nil {
		t.Fatal("expected parse error for invalid expression")
	}
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	s := cron.NewScheduler(&recordingStarter{}, cron.WithLogger(discardLogger()))

	if _, err := s.Register("nightly", "@hourly", id.NewDefinitionID(), nil); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := s.Register("nightly", "@daily", id.NewDefinitionID(), nil); err == nil {
		t.Fatal("expected error for duplicate name")
	}
}

func TestEntriesSortedSnapshot(t *testing.T) {
	s := cron.NewScheduler(&recordingStarter{}, cron.WithLogger(discardLogger()))

	for _, name := range []string{"cleanup", "audit", "billing"} {
		if _, err := s.Register(name, "@hourly", id.NewDefinitionID(), nil); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	entries := s.Entries()
	if len(entries) != 3 {
		t.Fatalf("len(Entries) = %d, want 3", len(entries))
	}
	want := []string{"audit", "billing", "cleanup"}
	for i, entry := range entries {
		if entry.Name != want[i] {
			t.Errorf("Entries[%d].Name = %q, want %q", i, entry.Name, want[i])
		}
	}

	// Mutating the snapshot must not leak into scheduler state.
	entries[0].Enabled = false
	if got := s.Entries()[0]; !got.Enabled {
		t.Error("snapshot mutation leaked into scheduler state")
	}
}

func TestSchedulerFiresDueEntry(t *testing.T) {
	starter := &recordingStarter{}
	s := cron.NewScheduler(starter,
		cron.WithLogger(discardLogger()),
		cron.WithTickInterval(5*time.Millisecond),
	)

	defID := id.NewDefinitionID()
	input := json.RawMessage(`{"source":"cron"}`)
	if _, err := s.Register("fast", "@every 10ms", defID, input); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop(context.Background())

	deadline := time.Now().Add(5 * time.Second)
	for starter.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("scheduler never fired")
		}
		time.Sleep(2 * time.Millisecond)
	}

	starter.mu.Lock()
	defer starter.mu.Unlock()
	if starter.starts[0].String() != defID.String() {
		t.Errorf("fired definition = %s, want %s", starter.starts[0], defID)
	}
	if string(starter.inputs[0]) != `{"source":"cron"}` {
		t.Errorf("fired input = %s", starter.inputs[0])
	}
}

func TestDisabledEntryDoesNotFire(t *testing.T) {
	starter := &recordingStarter{}
	s := cron.NewScheduler(starter,
		cron.WithLogger(discardLogger()),
		cron.WithTickInterval(5*time.Millisecond),
	)

	if _, err := s.Register("paused", "@every 10ms", id.NewDefinitionID(), nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.SetEnabled("paused", false); err != nil {
		t.Fatalf("disable: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if got := starter.count(); got != 0 {
		t.Errorf("disabled entry fired %d times, want 0", got)
	}
}

func TestSetEnabledUnknownEntry(t *testing.T) {
	s := cron.NewScheduler(&recordingStarter{}, cron.WithLogger(discardLogger()))
	if err := s.SetEnabled("ghost", true); err == nil {
		t.Fatal("expected error for unknown entry")
	}
}
