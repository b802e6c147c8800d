package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/accord"
	"github.com/xraph/accord/id"
	"github.com/xraph/accord/ledger"
	"github.com/xraph/accord/store/memory"
	"github.com/xraph/accord/workflow"
)

func TestDefinitionRoundTrip(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	def := &workflow.Definition{
		Entity: accord.NewEntity(),
		ID:     id.NewDefinitionID(),
		Name:   "review-pipeline",
		Active: true,
		Tasks:  []workflow.TaskSpec{{SpecID: "a", Name: "A", Type: workflow.TaskTypeAgent}},
	}
	if err := s.CreateDefinition(ctx, def); err != nil {
		t.Fatalf("CreateDefinition: %v", err)
	}

	got, err := s.GetDefinition(ctx, def.ID)
	if err != nil {
		t.Fatalf("GetDefinition: %v", err)
	}
	if got.Name != "review-pipeline" || !got.Active {
		t.Errorf("got %q active=%v", got.Name, got.Active)
	}

	got.Active = false
	if err := s.UpdateDefinition(ctx, got); err != nil {
		t.Fatalf("UpdateDefinition: %v", err)
	}
	got2, err := s.GetDefinition(ctx, def.ID)
	if err != nil {
		t.Fatalf("GetDefinition after update: %v", err)
	}
	if got2.Active {
		t.Error("Active flag not persisted")
	}
}

func TestGetDefinitionNotFound(t *testing.T) {
	s := memory.New()

	_, err := s.GetDefinition(context.Background(), id.NewDefinitionID())
	if !errors.Is(err, accord.ErrDefinitionNotFound) {
		t.Errorf("err = %v, want ErrDefinitionNotFound", err)
	}
}

func TestReadsReturnCopies(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	task := workflow.NewTask(id.NewExecutionID(), workflow.TaskSpec{
		SpecID: "a", Name: "A", Type: workflow.TaskTypeAgent,
	})
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	got.Status = workflow.TaskFailed

	again, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask again: %v", err)
	}
	if again.Status != workflow.TaskPending {
		t.Errorf("mutating a returned task leaked into the store: %s", again.Status)
	}
}

func TestTasksByExecutionOrdering(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	execID := id.NewExecutionID()

	for _, specID := range []string{"c", "a", "b"} {
		task := workflow.NewTask(execID, workflow.TaskSpec{
			SpecID: specID, Name: specID, Type: workflow.TaskTypeAgent,
		})
		if err := s.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask %s: %v", specID, err)
		}
	}
	// A task on another execution must not appear.
	other := workflow.NewTask(id.NewExecutionID(), workflow.TaskSpec{
		SpecID: "z", Name: "z", Type: workflow.TaskTypeAgent,
	})
	if err := s.CreateTask(ctx, other); err != nil {
		t.Fatalf("CreateTask other: %v", err)
	}

	tasks, err := s.TasksByExecution(ctx, execID)
	if err != nil {
		t.Fatalf("TasksByExecution: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(tasks) != len(want) {
		t.Fatalf("got %d tasks, want %d", len(tasks), len(want))
	}
	for i, tk := range tasks {
		if tk.SpecID != want[i] {
			t.Errorf("tasks[%d] = %s, want %s", i, tk.SpecID, want[i])
		}
	}
}

func TestDueRetries(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	execID := id.NewExecutionID()
	now := time.Now().UTC()

	mk := func(specID string, status workflow.TaskStatus, retryAt *time.Time) {
		task := workflow.NewTask(execID, workflow.TaskSpec{
			SpecID: specID, Name: specID, Type: workflow.TaskTypeAgent,
		})
		task.Status = status
		task.NextRetryAt = retryAt
		if err := s.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask %s: %v", specID, err)
		}
	}

	past := now.Add(-time.Second)
	future := now.Add(time.Minute)
	mk("due", workflow.TaskQueued, &past)
	mk("later", workflow.TaskQueued, &future)
	mk("no-retry", workflow.TaskQueued, nil)
	mk("running", workflow.TaskRunning, &past)

	due, err := s.DueRetries(ctx, now)
	if err != nil {
		t.Fatalf("DueRetries: %v", err)
	}
	if len(due) != 1 || due[0].SpecID != "due" {
		t.Fatalf("due = %+v, want exactly the overdue queued task", due)
	}
}

func TestExpiredTasks(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	execID := id.NewExecutionID()
	now := time.Now().UTC()

	expired := workflow.NewTask(execID, workflow.TaskSpec{
		SpecID: "slow", Name: "slow", Type: workflow.TaskTypeAgent,
	})
	expired.Status = workflow.TaskRunning
	past := now.Add(-time.Second)
	expired.DeadlineAt = &past
	if err := s.CreateTask(ctx, expired); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	healthy := workflow.NewTask(execID, workflow.TaskSpec{
		SpecID: "ok", Name: "ok", Type: workflow.TaskTypeAgent,
	})
	healthy.Status = workflow.TaskRunning
	future := now.Add(time.Minute)
	healthy.DeadlineAt = &future
	if err := s.CreateTask(ctx, healthy); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	got, err := s.ExpiredTasks(ctx, now)
	if err != nil {
		t.Fatalf("ExpiredTasks: %v", err)
	}
	if len(got) != 1 || got[0].SpecID != "slow" {
		t.Fatalf("expired = %+v, want only the overdue task", got)
	}
}

func TestAppendEventRejectsDuplicateSequence(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	e1 := &ledger.Event{
		Entity:   accord.NewEntity(),
		ID:       id.NewEventID(),
		Sequence: 1,
		Type:     ledger.EventWorkflowStarted,
	}
	if err := s.AppendEvent(ctx, e1); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	e2 := &ledger.Event{
		Entity:   accord.NewEntity(),
		ID:       id.NewEventID(),
		Sequence: 1,
		Type:     ledger.EventTaskStarted,
	}
	if err := s.AppendEvent(ctx, e2); !errors.Is(err, accord.ErrDuplicateSequence) {
		t.Errorf("err = %v, want ErrDuplicateSequence", err)
	}

	latest, err := s.LatestSequence(ctx)
	if err != nil {
		t.Fatalf("LatestSequence: %v", err)
	}
	if latest != 1 {
		t.Errorf("latest = %d, want 1", latest)
	}
}

func TestLatestSequenceEmpty(t *testing.T) {
	s := memory.New()

	latest, err := s.LatestSequence(context.Background())
	if err != nil {
		t.Fatalf("LatestSequence: %v", err)
	}
	if latest != 0 {
		t.Errorf("latest = %d, want 0 for empty ledger", latest)
	}

	if _, err := s.LastEvent(context.Background()); !errors.Is(err, accord.ErrEventNotFound) {
		t.Errorf("LastEvent err = %v, want ErrEventNotFound", err)
	}
}

func TestEventsByWorkflowFiltering(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	wfID := id.NewExecutionID()

	append := func(seq int64, typ ledger.EventType, wf id.ExecutionID) {
		e := &ledger.Event{
			Entity:     accord.NewEntity(),
			ID:         id.NewEventID(),
			Sequence:   seq,
			Type:       typ,
			WorkflowID: wf,
		}
		if err := s.AppendEvent(ctx, e); err != nil {
			t.Fatalf("AppendEvent seq %d: %v", seq, err)
		}
	}

	append(1, ledger.EventWorkflowStarted, wfID)
	append(2, ledger.EventTaskStarted, wfID)
	append(3, ledger.EventWorkflowStarted, id.NewExecutionID())
	append(4, ledger.EventTaskCompleted, wfID)

	all, err := s.EventsByWorkflow(ctx, wfID, nil, ledger.ListOpts{})
	if err != nil {
		t.Fatalf("EventsByWorkflow: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d events, want 3", len(all))
	}

	typed, err := s.EventsByWorkflow(ctx, wfID, []ledger.EventType{ledger.EventTaskStarted}, ledger.ListOpts{})
	if err != nil {
		t.Fatalf("EventsByWorkflow typed: %v", err)
	}
	if len(typed) != 1 || typed[0].Type != ledger.EventTaskStarted {
		t.Fatalf("typed = %+v, want one task_started", typed)
	}

	limited, err := s.EventsByWorkflow(ctx, wfID, nil, ledger.ListOpts{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("EventsByWorkflow paged: %v", err)
	}
	if len(limited) != 2 || limited[0].Sequence != 2 {
		t.Fatalf("paged = %+v, want sequences 2 and 4", limited)
	}
}

func TestBlockRoundTrip(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	if _, err := s.LastBlock(ctx); !errors.Is(err, accord.ErrBlockNotFound) {
		t.Fatalf("LastBlock on empty store: %v, want ErrBlockNotFound", err)
	}

	b := &ledger.Block{
		Entity:   accord.NewEntity(),
		ID:       id.NewBlockID(),
		Number:   1,
		StartSeq: 1,
		EndSeq:   10,
	}
	if err := s.AppendBlock(ctx, b); err != nil {
		t.Fatalf("AppendBlock: %v", err)
	}

	got, err := s.GetBlock(ctx, 1)
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if got.EndSeq != 10 {
		t.Errorf("EndSeq = %d, want 10", got.EndSeq)
	}

	last, err := s.LastBlock(ctx)
	if err != nil {
		t.Fatalf("LastBlock: %v", err)
	}
	if last.Number != 1 {
		t.Errorf("last.Number = %d, want 1", last.Number)
	}
}
