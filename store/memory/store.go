package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/accord"
	"github.com/xraph/accord/approval"
	"github.com/xraph/accord/compliance"
	"github.com/xraph/accord/id"
	"github.com/xraph/accord/ledger"
	"github.com/xraph/accord/settlement"
	"github.com/xraph/accord/workflow"
)

// Ensure Store implements store.Store at compile time. We can't import
// store here (import cycle), so we verify each subsystem.
var (
	_ workflow.Store   = (*Store)(nil)
	_ ledger.Store     = (*Store)(nil)
	_ compliance.Store = (*Store)(nil)
	_ approval.Store   = (*Store)(nil)
	_ settlement.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store. Safe for
// concurrent access. Intended for unit testing and development. Reads
// return copies so callers can mutate results without racing with the
// store; the ledger tables are append-only like every other backend.
type Store struct {
	mu sync.RWMutex

	definitions map[string]*workflow.Definition
	executions  map[string]*workflow.Execution
	tasks       map[string]*workflow.Task
	checkpoints map[string]*compliance.Checkpoint
	approvals   map[string]*approval.Approval
	signals     map[string]*settlement.Signal

	// events is ordered by sequence; bySequence guards against forks.
	events     []*ledger.Event
	bySequence map[int64]*ledger.Event
	blocks     map[int64]*ledger.Block
	lastBlock  int64
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		definitions: make(map[string]*workflow.Definition),
		executions:  make(map[string]*workflow.Execution),
		tasks:       make(map[string]*workflow.Task),
		checkpoints: make(map[string]*compliance.Checkpoint),
		approvals:   make(map[string]*approval.Approval),
		signals:     make(map[string]*settlement.Signal),
		bySequence:  make(map[int64]*ledger.Event),
		blocks:      make(map[int64]*ledger.Block),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Workflow Store — definitions
// ──────────────────────────────────────────────────

// CreateDefinition persists a new definition.
func (m *Store) CreateDefinition(_ context.Context, d *workflow.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *d
	m.definitions[d.ID.String()] = &cp
	return nil
}

// GetDefinition retrieves a definition by ID.
func (m *Store) GetDefinition(_ context.Context, definitionID id.DefinitionID) (*workflow.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.definitions[definitionID.String()]
	if !ok {
		return nil, accord.ErrDefinitionNotFound
	}
	cp := *d
	return &cp, nil
}

// UpdateDefinition persists the definition's current state.
func (m *Store) UpdateDefinition(_ context.Context, d *workflow.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := d.ID.String()
	if _, ok := m.definitions[key]; !ok {
		return accord.ErrDefinitionNotFound
	}
	cp := *d
	cp.UpdatedAt = time.Now().UTC()
	m.definitions[key] = &cp
	return nil
}

// ListDefinitions returns all definitions ordered by creation time.
func (m *Store) ListDefinitions(_ context.Context) ([]*workflow.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*workflow.Definition, 0, len(m.definitions))
	for _, d := range m.definitions {
		cp := *d
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}

// ──────────────────────────────────────────────────
// Workflow Store — executions
// ──────────────────────────────────────────────────

// CreateExecution persists a new execution.
func (m *Store) CreateExecution(_ context.Context, e *workflow.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *e
	m.executions[e.ID.String()] = &cp
	return nil
}

// GetExecution retrieves an execution by ID.
func (m *Store) GetExecution(_ context.Context, executionID id.ExecutionID) (*workflow.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.executions[executionID.String()]
	if !ok {
		return nil, accord.ErrExecutionNotFound
	}
	cp := *e
	return &cp, nil
}

// UpdateExecution persists the execution's current state.
func (m *Store) UpdateExecution(_ context.Context, e *workflow.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := e.ID.String()
	if _, ok := m.executions[key]; !ok {
		return accord.ErrExecutionNotFound
	}
	cp := *e
	cp.UpdatedAt = time.Now().UTC()
	m.executions[key] = &cp
	return nil
}

// ListExecutions returns executions filtered by status.
func (m *Store) ListExecutions(_ context.Context, statuses ...workflow.ExecutionStatus) ([]*workflow.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	match := func(s workflow.ExecutionStatus) bool {
		if len(statuses) == 0 {
			return true
		}
		for _, want := range statuses {
			if s == want {
				return true
			}
		}
		return false
	}

	result := make([]*workflow.Execution, 0, len(m.executions))
	for _, e := range m.executions {
		if !match(e.Status) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}

// ──────────────────────────────────────────────────
// Workflow Store — tasks
// ──────────────────────────────────────────────────

// CreateTask persists a new task.
func (m *Store) CreateTask(_ context.Context, t *workflow.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *t
	m.tasks[t.ID.String()] = &cp
	return nil
}

// GetTask retrieves a task by ID.
func (m *Store) GetTask(_ context.Context, taskID id.TaskID) (*workflow.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return nil, accord.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

// UpdateTask persists the task's current state.
func (m *Store) UpdateTask(_ context.Context, t *workflow.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := t.ID.String()
	if _, ok := m.tasks[key]; !ok {
		return accord.ErrTaskNotFound
	}
	cp := *t
	cp.UpdatedAt = time.Now().UTC()
	m.tasks[key] = &cp
	return nil
}

// TasksByExecution returns an execution's tasks ordered by SpecID.
func (m *Store) TasksByExecution(_ context.Context, executionID id.ExecutionID) ([]*workflow.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*workflow.Task
	for _, t := range m.tasks {
		if t.ExecutionID != executionID {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].SpecID < result[k].SpecID
	})
	return result, nil
}

// DueRetries returns QUEUED tasks whose retry delay has elapsed.
func (m *Store) DueRetries(_ context.Context, now time.Time) ([]*workflow.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var due []*workflow.Task
	for _, t := range m.tasks {
		if t.Status != workflow.TaskQueued || t.NextRetryAt == nil {
			continue
		}
		if t.NextRetryAt.After(now) {
			continue
		}
		cp := *t
		due = append(due, &cp)
	}
	sort.Slice(due, func(i, k int) bool {
		return due[i].NextRetryAt.Before(*due[k].NextRetryAt)
	})
	return due, nil
}

// ExpiredTasks returns RUNNING tasks past their deadline.
func (m *Store) ExpiredTasks(_ context.Context, now time.Time) ([]*workflow.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var expired []*workflow.Task
	for _, t := range m.tasks {
		if t.Status != workflow.TaskRunning || t.DeadlineAt == nil {
			continue
		}
		if t.DeadlineAt.After(now) {
			continue
		}
		cp := *t
		expired = append(expired, &cp)
	}
	sort.Slice(expired, func(i, k int) bool {
		return expired[i].DeadlineAt.Before(*expired[k].DeadlineAt)
	})
	return expired, nil
}

// ──────────────────────────────────────────────────
// Ledger Store
// ──────────────────────────────────────────────────

// AppendEvent persists a new event. A sequence number that already
// exists is rejected so a racing writer cannot fork the chain.
func (m *Store) AppendEvent(_ context.Context, e *ledger.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bySequence[e.Sequence]; exists {
		return accord.ErrDuplicateSequence
	}
	cp := *e
	m.bySequence[e.Sequence] = &cp
	m.events = append(m.events, &cp)
	return nil
}

// GetEvent retrieves an event by ID.
func (m *Store) GetEvent(_ context.Context, eventID id.EventID) (*ledger.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.events {
		if e.ID == eventID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, accord.ErrEventNotFound
}

// LastEvent returns the event with the highest sequence number.
func (m *Store) LastEvent(_ context.Context) (*ledger.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.events) == 0 {
		return nil, accord.ErrEventNotFound
	}
	cp := *m.events[len(m.events)-1]
	return &cp, nil
}

// LatestSequence returns the highest assigned sequence number, or 0.
func (m *Store) LatestSequence(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.events) == 0 {
		return 0, nil
	}
	return m.events[len(m.events)-1].Sequence, nil
}

// EventsByWorkflow returns events correlated with a workflow execution,
// ordered by sequence ascending.
func (m *Store) EventsByWorkflow(_ context.Context, workflowID id.ExecutionID, types []ledger.EventType, opts ledger.ListOpts) ([]*ledger.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	match := func(t ledger.EventType) bool {
		if len(types) == 0 {
			return true
		}
		for _, want := range types {
			if t == want {
				return true
			}
		}
		return false
	}

	var result []*ledger.Event
	for _, e := range m.events {
		if e.WorkflowID != workflowID || !match(e.Type) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// EventChain returns events with from <= sequence <= to.
func (m *Store) EventChain(_ context.Context, from, to int64) ([]*ledger.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*ledger.Event
	for _, e := range m.events {
		if e.Sequence < from || e.Sequence > to {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}

// AppendBlock persists a new verification block.
func (m *Store) AppendBlock(_ context.Context, b *ledger.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *b
	m.blocks[b.Number] = &cp
	if b.Number > m.lastBlock {
		m.lastBlock = b.Number
	}
	return nil
}

// GetBlock retrieves a block by block number.
func (m *Store) GetBlock(_ context.Context, number int64) (*ledger.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.blocks[number]
	if !ok {
		return nil, accord.ErrBlockNotFound
	}
	cp := *b
	return &cp, nil
}

// LastBlock returns the block with the highest number.
func (m *Store) LastBlock(_ context.Context) (*ledger.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.lastBlock == 0 {
		return nil, accord.ErrBlockNotFound
	}
	cp := *m.blocks[m.lastBlock]
	return &cp, nil
}

// ──────────────────────────────────────────────────
// Compliance Store
// ──────────────────────────────────────────────────

// CreateCheckpoint persists a new checkpoint.
func (m *Store) CreateCheckpoint(_ context.Context, c *compliance.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *c
	m.checkpoints[c.ID.String()] = &cp
	return nil
}

// GetCheckpoint retrieves a checkpoint by ID.
func (m *Store) GetCheckpoint(_ context.Context, checkpointID id.CheckpointID) (*compliance.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.checkpoints[checkpointID.String()]
	if !ok {
		return nil, accord.ErrCheckpointNotFound
	}
	cp := *c
	return &cp, nil
}

// UpdateCheckpoint persists the checkpoint's current state.
func (m *Store) UpdateCheckpoint(_ context.Context, c *compliance.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := c.ID.String()
	if _, ok := m.checkpoints[key]; !ok {
		return accord.ErrCheckpointNotFound
	}
	cp := *c
	cp.UpdatedAt = time.Now().UTC()
	m.checkpoints[key] = &cp
	return nil
}

// CheckpointsByWorkflow returns a workflow's checkpoints ordered by
// creation time.
func (m *Store) CheckpointsByWorkflow(_ context.Context, workflowID id.ExecutionID) ([]*compliance.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*compliance.Checkpoint
	for _, c := range m.checkpoints {
		if c.WorkflowID != workflowID {
			continue
		}
		cp := *c
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}

// ──────────────────────────────────────────────────
// Approval Store
// ──────────────────────────────────────────────────

// CreateApproval persists a new approval request.
func (m *Store) CreateApproval(_ context.Context, a *approval.Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	m.approvals[a.ID.String()] = &cp
	return nil
}

// GetApproval retrieves an approval by ID.
func (m *Store) GetApproval(_ context.Context, approvalID id.ApprovalID) (*approval.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.approvals[approvalID.String()]
	if !ok {
		return nil, accord.ErrApprovalNotFound
	}
	cp := *a
	return &cp, nil
}

// UpdateApproval persists the approval's current state.
func (m *Store) UpdateApproval(_ context.Context, a *approval.Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := a.ID.String()
	if _, ok := m.approvals[key]; !ok {
		return accord.ErrApprovalNotFound
	}
	cp := *a
	cp.UpdatedAt = time.Now().UTC()
	m.approvals[key] = &cp
	return nil
}

// PendingApprovals returns all undecided approvals ordered by creation
// time.
func (m *Store) PendingApprovals(_ context.Context) ([]*approval.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*approval.Approval
	for _, a := range m.approvals {
		if a.Status != approval.StatusPending {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}

// ApprovalsByExecution returns a workflow's approvals ordered by
// creation time.
func (m *Store) ApprovalsByExecution(_ context.Context, executionID id.ExecutionID) ([]*approval.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*approval.Approval
	for _, a := range m.approvals {
		if a.ExecutionID != executionID {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}

// ──────────────────────────────────────────────────
// Settlement Store
// ──────────────────────────────────────────────────

// CreateSignal persists a new settlement signal.
func (m *Store) CreateSignal(_ context.Context, s *settlement.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.signals[s.ID.String()] = &cp
	return nil
}

// GetSignal retrieves a signal by ID.
func (m *Store) GetSignal(_ context.Context, signalID id.SignalID) (*settlement.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.signals[signalID.String()]
	if !ok {
		return nil, accord.ErrSignalNotFound
	}
	cp := *s
	return &cp, nil
}

// UpdateSignal persists the signal's current state.
func (m *Store) UpdateSignal(_ context.Context, s *settlement.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := s.ID.String()
	if _, ok := m.signals[key]; !ok {
		return accord.ErrSignalNotFound
	}
	cp := *s
	cp.UpdatedAt = time.Now().UTC()
	m.signals[key] = &cp
	return nil
}

// SignalsByExecution returns a workflow's signals ordered by creation
// time.
func (m *Store) SignalsByExecution(_ context.Context, executionID id.ExecutionID) ([]*settlement.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*settlement.Signal
	for _, s := range m.signals {
		if s.ExecutionID != executionID {
			continue
		}
		cp := *s
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}
