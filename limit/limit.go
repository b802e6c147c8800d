// Package limit throttles task dispatch. Agent calls are the expensive
// resource in this system, so dispatch rates and concurrency are capped
// per task type, with an optional per-execution concurrency ceiling so
// one large workflow cannot starve the rest.
package limit

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/xraph/accord/workflow"
)

// Config defines per-task-type behaviour such as rate limiting and
// concurrency.
type Config struct {
	// TaskType is the task type this config applies to.
	TaskType workflow.TaskType

	// MaxConcurrency limits how many tasks of this type may run
	// simultaneously. Zero means no type-specific limit (engine-wide
	// concurrency still applies).
	MaxConcurrency int

	// RateLimit is the maximum sustained dispatches per second for
	// this task type. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// typeState tracks runtime state for a single task type.
type typeState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

// Manager controls per-task-type and per-execution dispatch limits.
// It is safe for concurrent use.
type Manager struct {
	mu            sync.Mutex
	types         map[workflow.TaskType]*typeState
	perExecution  int
	executionLoad map[string]int
}

// Option configures a Manager.
type Option func(*Manager)

// WithPerExecutionConcurrency caps simultaneous running tasks per
// workflow execution. Zero means unlimited.
func WithPerExecutionConcurrency(n int) Option {
	return func(m *Manager) { m.perExecution = n }
}

// NewManager creates a Manager with the given task-type
// configurations. Types not listed have no limits.
func NewManager(configs []Config, opts ...Option) *Manager {
	m := &Manager{
		types:         make(map[workflow.TaskType]*typeState, len(configs)),
		executionLoad: make(map[string]int),
	}
	for _, cfg := range configs {
		m.types[cfg.TaskType] = newTypeState(cfg)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func newTypeState(cfg Config) *typeState {
	ts := &typeState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ts.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return ts
}

// Acquire checks rate limits and concurrency for the task. If dispatch
// is allowed it increments the active counters and returns true; the
// caller MUST call Release when the attempt finishes. A false return
// leaves the task QUEUED for a later dispatch pass.
func (m *Manager) Acquire(t *workflow.Task) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.types[t.Type]
	if ts != nil {
		if ts.limiter != nil && !ts.limiter.Allow() {
			return false
		}
		if ts.config.MaxConcurrency > 0 && ts.active >= ts.config.MaxConcurrency {
			return false
		}
	}

	execKey := t.ExecutionID.String()
	if m.perExecution > 0 && m.executionLoad[execKey] >= m.perExecution {
		return false
	}

	if ts != nil {
		ts.active++
	}
	m.executionLoad[execKey]++
	return true
}

// Release decrements the active counters for the task.
func (m *Manager) Release(t *workflow.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ts := m.types[t.Type]; ts != nil && ts.active > 0 {
		ts.active--
	}

	execKey := t.ExecutionID.String()
	if m.executionLoad[execKey] > 0 {
		m.executionLoad[execKey]--
	}
	if m.executionLoad[execKey] == 0 {
		delete(m.executionLoad, execKey)
	}
}

// SetConfig dynamically updates (or creates) a task-type configuration.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.types[cfg.TaskType]
	ts := newTypeState(cfg)

	// Preserve current active count if reconfiguring.
	if existing != nil {
		ts.active = existing.active
	}
	m.types[cfg.TaskType] = ts
}

// ActiveCount returns the current number of active tasks for a type.
func (m *Manager) ActiveCount(taskType workflow.TaskType) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ts := m.types[taskType]; ts != nil {
		return ts.active
	}
	return 0
}
