package limit_test

import (
	"testing"

	"github.com/xraph/accord/id"
	"github.com/xraph/accord/limit"
	"github.com/xraph/accord/workflow"
)

func agentTask(execID id.ExecutionID) *workflow.Task {
	return workflow.NewTask(execID, workflow.TaskSpec{SpecID: "call", Type: workflow.TaskTypeAgent})
}

func TestManager_UnlimitedByDefault(t *testing.T) {
	m := limit.NewManager(nil)
	execID := id.NewExecutionID()

	for range 100 {
		if !m.Acquire(agentTask(execID)) {
			t.Fatal("unconfigured manager should never deny")
		}
	}
}

func TestManager_MaxConcurrency(t *testing.T) {
	m := limit.NewManager([]limit.Config{
		{TaskType: workflow.TaskTypeAgent, MaxConcurrency: 2},
	})
	execID := id.NewExecutionID()

	first := agentTask(execID)
	second := agentTask(execID)
	if !m.Acquire(first) || !m.Acquire(second) {
		t.Fatal("first two acquisitions should succeed")
	}
	if m.Acquire(agentTask(execID)) {
		t.Error("third acquisition should be denied at MaxConcurrency=2")
	}
	if got := m.ActiveCount(workflow.TaskTypeAgent); got != 2 {
		t.Errorf("ActiveCount = %d, want 2", got)
	}

	m.Release(first)
	if !m.Acquire(agentTask(execID)) {
		t.Error("acquisition should succeed after release")
	}
}

func TestManager_RateLimit(t *testing.T) {
	m := limit.NewManager([]limit.Config{
		{TaskType: workflow.TaskTypeAgent, RateLimit: 1, RateBurst: 2},
	})
	execID := id.NewExecutionID()

	// Burst of 2 allowed, third denied until tokens refill.
	if !m.Acquire(agentTask(execID)) || !m.Acquire(agentTask(execID)) {
		t.Fatal("burst acquisitions should succeed")
	}
	if m.Acquire(agentTask(execID)) {
		t.Error("acquisition past burst should be denied")
	}
}

func TestManager_PerExecutionConcurrency(t *testing.T) {
	m := limit.NewManager(nil, limit.WithPerExecutionConcurrency(1))
	execA := id.NewExecutionID()
	execB := id.NewExecutionID()

	taskA := agentTask(execA)
	if !m.Acquire(taskA) {
		t.Fatal("first task should acquire")
	}
	if m.Acquire(agentTask(execA)) {
		t.Error("second task in same execution should be denied")
	}
	if !m.Acquire(agentTask(execB)) {
		t.Error("task in a different execution should acquire")
	}

	m.Release(taskA)
	if !m.Acquire(agentTask(execA)) {
		t.Error("acquisition should succeed after release")
	}
}

func TestManager_SetConfigPreservesActive(t *testing.T) {
	m := limit.NewManager([]limit.Config{
		{TaskType: workflow.TaskTypeAgent, MaxConcurrency: 5},
	})
	execID := id.NewExecutionID()
	m.Acquire(agentTask(execID))

	m.SetConfig(limit.Config{TaskType: workflow.TaskTypeAgent, MaxConcurrency: 1})
	if got := m.ActiveCount(workflow.TaskTypeAgent); got != 1 {
		t.Errorf("ActiveCount after reconfigure = %d, want 1", got)
	}
	if m.Acquire(agentTask(execID)) {
		t.Error("acquisition should be denied under tightened limit")
	}
}

func TestManager_ReleaseNeverUnderflows(t *testing.T) {
	m := limit.NewManager([]limit.Config{
		{TaskType: workflow.TaskTypeAgent, MaxConcurrency: 1},
	})
	task := agentTask(id.NewExecutionID())

	m.Release(task) // release without acquire
	if got := m.ActiveCount(workflow.TaskTypeAgent); got != 0 {
		t.Errorf("ActiveCount = %d, want 0", got)
	}
}
