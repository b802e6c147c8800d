package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/accord/id"
	"github.com/xraph/accord/workflow"
)

// Starter starts a workflow execution. engine.Engine satisfies it;
// keeping the dependency an interface breaks the import cycle.
type Starter interface {
	StartWorkflow(ctx context.Context, definitionID id.DefinitionID, input json.RawMessage) (*workflow.Execution, error)
}

// Entry binds a cron expression to a workflow definition.
type Entry struct {
	Name         string          `json:"name"`
	Schedule     string          `json:"schedule"`
	DefinitionID id.DefinitionID `json:"definition_id"`
	Input        json.RawMessage `json:"input,omitempty"`
	Enabled      bool            `json:"enabled"`
	LastRunAt    *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt    *time.Time      `json:"next_run_at,omitempty"`
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithLogger sets the scheduler's logger.
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = logger }
}

// Scheduler fires registered entries on a tick loop, starting a new
// workflow execution for each due entry.
type Scheduler struct {
	starter Starter
	logger  *slog.Logger

	tickInterval time.Duration

	mu        sync.Mutex
	entries   map[string]*Entry
	schedules map[string]cronlib.Schedule

	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(starter Starter, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		starter:      starter,
		logger:       slog.Default(),
		tickInterval: time.Second,
		entries:      make(map[string]*Entry),
		schedules:    make(map[string]cronlib.Schedule),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a named entry. The expression is validated up front and
// the entry starts enabled with its first run computed from now.
func (s *Scheduler) Register(name, expr string, definitionID id.DefinitionID, input json.RawMessage) (*Entry, error) {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, fmt.Errorf("cron: parse schedule %q: %w", expr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[name]; exists {
		return nil, fmt.Errorf("cron: entry %q already registered", name)
	}

	next := sched.Next(time.Now().UTC())
	entry := &Entry{
		Name:         name,
		Schedule:     expr,
		DefinitionID: definitionID,
		Input:        input,
		Enabled:      true,
		NextRunAt:    &next,
	}
	s.entries[name] = entry
	s.schedules[name] = sched

	s.logger.Info("cron entry registered",
		slog.String("name", name),
		slog.String("schedule", expr),
		slog.Time("next_run_at", next),
	)
	return s.snapshot(entry), nil
}

// Unregister removes an entry by name.
func (s *Scheduler) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, name)
	delete(s.schedules, name)
}

// SetEnabled enables or disables an entry without losing its schedule.
func (s *Scheduler) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("cron: entry %q not found", name)
	}
	entry.Enabled = enabled
	return nil
}

// Entries returns a snapshot of all entries, sorted by name.
func (s *Scheduler) Entries() []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]*Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		result = append(result, s.snapshot(entry))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Start launches the tick goroutine.
func (s *Scheduler) Start(_ context.Context) error {
	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("cron scheduler started",
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the scheduler to stop and waits for the tick goroutine.
func (s *Scheduler) Stop(_ context.Context) error {
	s.stopped.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.logger.Info("cron scheduler stopped")
	return nil
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	now := time.Now().UTC()

	s.mu.Lock()
	var due []*Entry
	for name, entry := range s.entries {
		if !entry.Enabled {
			continue
		}
		if entry.NextRunAt == nil || entry.NextRunAt.After(now) {
			continue
		}
		entry.LastRunAt = &now
		next := s.schedules[name].Next(now)
		entry.NextRunAt = &next
		due = append(due, s.snapshot(entry))
	}
	s.mu.Unlock()

	for _, entry := range due {
		s.fire(entry)
	}
}

func (s *Scheduler) fire(entry *Entry) {
	ctx := context.Background()
	exec, err := s.starter.StartWorkflow(ctx, entry.DefinitionID, entry.Input)
	if err != nil {
		s.logger.Error("cron start workflow failed",
			slog.String("name", entry.Name),
			slog.String("definition_id", entry.DefinitionID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Info("cron fired",
		slog.String("name", entry.Name),
		slog.String("execution_id", exec.ID.String()),
	)
}

// snapshot copies an entry so callers cannot mutate scheduler state.
func (s *Scheduler) snapshot(entry *Entry) *Entry {
	cp := *entry
	return &cp
}
