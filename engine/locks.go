package engine

import (
	"sync"

	"github.com/xraph/accord/id"
)

// locks hands out one mutex per workflow execution, lazily. Locks are
// never removed: an execution's lock is a few dozen bytes and executions
// are finite per process lifetime, so reclaiming them is not worth the
// unlock/delete race it would invite.
type locks struct {
	m sync.Map // id.ExecutionID -> *sync.Mutex
}

func (l *locks) forExecution(executionID id.ExecutionID) *sync.Mutex {
	if mu, ok := l.m.Load(executionID); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := l.m.LoadOrStore(executionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
