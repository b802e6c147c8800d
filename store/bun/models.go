package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/accord"
	"github.com/xraph/accord/approval"
	"github.com/xraph/accord/compliance"
	"github.com/xraph/accord/id"
	"github.com/xraph/accord/ledger"
	"github.com/xraph/accord/settlement"
	"github.com/xraph/accord/workflow"
)

// ── Definition model ──────────────────────────────────────────────

type definitionModel struct {
	bun.BaseModel `bun:"table:accord_definitions"`

	ID        string          `bun:"id,pk"`
	Name      string          `bun:"name,notnull"`
	Active    bool            `bun:"active,notnull,default:true"`
	Tasks     json.RawMessage `bun:"tasks,notnull,type:jsonb"`
	Edges     json.RawMessage `bun:"edges,notnull,type:jsonb"`
	CreatedAt time.Time       `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time       `bun:"updated_at,notnull,default:current_timestamp"`
}

func toDefinitionModel(d *workflow.Definition) (*definitionModel, error) {
	tasks, err := json.Marshal(d.Tasks)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: marshal tasks: %w", err)
	}
	edges, err := json.Marshal(d.Edges)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: marshal edges: %w", err)
	}
	return &definitionModel{
		ID:        d.ID.String(),
		Name:      d.Name,
		Active:    d.Active,
		Tasks:     tasks,
		Edges:     edges,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

func fromDefinitionModel(m *definitionModel) (*workflow.Definition, error) {
	parsedID, err := id.ParseDefinitionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: parse definition id %q: %w", m.ID, err)
	}
	d := &workflow.Definition{
		Entity: accord.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:     parsedID,
		Name:   m.Name,
		Active: m.Active,
	}
	if err := json.Unmarshal(m.Tasks, &d.Tasks); err != nil {
		return nil, fmt.Errorf("accord/bun: unmarshal tasks: %w", err)
	}
	if err := json.Unmarshal(m.Edges, &d.Edges); err != nil {
		return nil, fmt.Errorf("accord/bun: unmarshal edges: %w", err)
	}
	return d, nil
}

// ── Execution model ───────────────────────────────────────────────

type executionModel struct {
	bun.BaseModel `bun:"table:accord_executions"`

	ID             string          `bun:"id,pk"`
	DefinitionID   string          `bun:"definition_id,notnull"`
	Status         string          `bun:"status,notnull,default:'pending'"`
	Input          json.RawMessage `bun:"input,type:jsonb"`
	Output         json.RawMessage `bun:"output,type:jsonb"`
	Error          string          `bun:"error"`
	TotalTasks     int             `bun:"total_tasks,notnull,default:0"`
	CompletedTasks int             `bun:"completed_tasks,notnull,default:0"`
	FailedTasks    int             `bun:"failed_tasks,notnull,default:0"`
	StartedAt      *time.Time      `bun:"started_at"`
	CompletedAt    *time.Time      `bun:"completed_at"`
	CreatedAt      time.Time       `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt      time.Time       `bun:"updated_at,notnull,default:current_timestamp"`
}

func toExecutionModel(e *workflow.Execution) *executionModel {
	return &executionModel{
		ID:             e.ID.String(),
		DefinitionID:   e.DefinitionID.String(),
		Status:         string(e.Status),
		Input:          e.Input,
		Output:         e.Output,
		Error:          e.Error,
		TotalTasks:     e.TotalTasks,
		CompletedTasks: e.CompletedTasks,
		FailedTasks:    e.FailedTasks,
		StartedAt:      e.StartedAt,
		CompletedAt:    e.CompletedAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func fromExecutionModel(m *executionModel) (*workflow.Execution, error) {
	parsedID, err := id.ParseExecutionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: parse execution id %q: %w", m.ID, err)
	}
	defID, err := id.ParseDefinitionID(m.DefinitionID)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: parse definition id %q: %w", m.DefinitionID, err)
	}
	return &workflow.Execution{
		Entity:         accord.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             parsedID,
		DefinitionID:   defID,
		Status:         workflow.ExecutionStatus(m.Status),
		Input:          m.Input,
		Output:         m.Output,
		Error:          m.Error,
		TotalTasks:     m.TotalTasks,
		CompletedTasks: m.CompletedTasks,
		FailedTasks:    m.FailedTasks,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
	}, nil
}

// ── Task model ────────────────────────────────────────────────────

type taskModel struct {
	bun.BaseModel `bun:"table:accord_tasks"`

	ID           string          `bun:"id,pk"`
	ExecutionID  string          `bun:"execution_id,notnull"`
	SpecID       string          `bun:"spec_id,notnull"`
	Type         string          `bun:"type,notnull"`
	Status       string          `bun:"status,notnull,default:'pending'"`
	Config       json.RawMessage `bun:"config,type:jsonb"`
	Output       json.RawMessage `bun:"output,type:jsonb"`
	ErrorMessage string          `bun:"error_message"`
	AttemptCount int             `bun:"attempt_count,notnull,default:0"`
	MaxRetries   int             `bun:"max_retries,notnull,default:0"`
	TimeoutNS    int64           `bun:"timeout_ns,notnull,default:0"`
	NextRetryAt  *time.Time      `bun:"next_retry_at"`
	DeadlineAt   *time.Time      `bun:"deadline_at"`
	StartedAt    *time.Time      `bun:"started_at"`
	CompletedAt  *time.Time      `bun:"completed_at"`
	CreatedAt    time.Time       `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time       `bun:"updated_at,notnull,default:current_timestamp"`
}

func toTaskModel(t *workflow.Task) *taskModel {
	return &taskModel{
		ID:           t.ID.String(),
		ExecutionID:  t.ExecutionID.String(),
		SpecID:       t.SpecID,
		Type:         string(t.Type),
		Status:       string(t.Status),
		Config:       t.Config,
		Output:       t.Output,
		ErrorMessage: t.ErrorMessage,
		AttemptCount: t.AttemptCount,
		MaxRetries:   t.MaxRetries,
		TimeoutNS:    t.Timeout.Nanoseconds(),
		NextRetryAt:  t.NextRetryAt,
		DeadlineAt:   t.DeadlineAt,
		StartedAt:    t.StartedAt,
		CompletedAt:  t.CompletedAt,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func fromTaskModel(m *taskModel) (*workflow.Task, error) {
	parsedID, err := id.ParseTaskID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: parse task id %q: %w", m.ID, err)
	}
	execID, err := id.ParseExecutionID(m.ExecutionID)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: parse execution id %q: %w", m.ExecutionID, err)
	}
	return &workflow.Task{
		Entity:       accord.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:           parsedID,
		ExecutionID:  execID,
		SpecID:       m.SpecID,
		Type:         workflow.TaskType(m.Type),
		Status:       workflow.TaskStatus(m.Status),
		Config:       m.Config,
		Output:       m.Output,
		ErrorMessage: m.ErrorMessage,
		AttemptCount: m.AttemptCount,
		MaxRetries:   m.MaxRetries,
		Timeout:      time.Duration(m.TimeoutNS),
		NextRetryAt:  m.NextRetryAt,
		DeadlineAt:   m.DeadlineAt,
		StartedAt:    m.StartedAt,
		CompletedAt:  m.CompletedAt,
	}, nil
}

// ── Event model ───────────────────────────────────────────────────

type eventModel struct {
	bun.BaseModel `bun:"table:accord_events"`

	ID         string          `bun:"id,pk"`
	Sequence   int64           `bun:"sequence,notnull,unique"`
	Type       string          `bun:"type,notnull"`
	WorkflowID string          `bun:"workflow_id"`
	TaskID     string          `bun:"task_id"`
	ActorType  string          `bun:"actor_type"`
	ActorID    string          `bun:"actor_id"`
	Payload    json.RawMessage `bun:"payload,type:jsonb"`
	PrevHash   string          `bun:"previous_hash,notnull"`
	Hash       string          `bun:"hash,notnull"`
	Timestamp  time.Time       `bun:"timestamp,notnull"`
	CreatedAt  time.Time       `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt  time.Time       `bun:"updated_at,notnull,default:current_timestamp"`
}

func toEventModel(e *ledger.Event) *eventModel {
	m := &eventModel{
		ID:        e.ID.String(),
		Sequence:  e.Sequence,
		Type:      string(e.Type),
		ActorType: e.ActorType,
		ActorID:   e.ActorID,
		Payload:   e.Payload,
		PrevHash:  e.PrevHash,
		Hash:      e.Hash,
		Timestamp: e.Timestamp,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	if !e.WorkflowID.IsNil() {
		m.WorkflowID = e.WorkflowID.String()
	}
	if !e.TaskID.IsNil() {
		m.TaskID = e.TaskID.String()
	}
	return m
}

func fromEventModel(m *eventModel) (*ledger.Event, error) {
	parsedID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: parse event id %q: %w", m.ID, err)
	}
	e := &ledger.Event{
		Entity:    accord.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:        parsedID,
		Sequence:  m.Sequence,
		Type:      ledger.EventType(m.Type),
		ActorType: m.ActorType,
		ActorID:   m.ActorID,
		Payload:   m.Payload,
		PrevHash:  m.PrevHash,
		Hash:      m.Hash,
		Timestamp: m.Timestamp,
	}
	if m.WorkflowID != "" {
		if e.WorkflowID, err = id.ParseExecutionID(m.WorkflowID); err != nil {
			return nil, fmt.Errorf("accord/bun: parse workflow id %q: %w", m.WorkflowID, err)
		}
	}
	if m.TaskID != "" {
		if e.TaskID, err = id.ParseTaskID(m.TaskID); err != nil {
			return nil, fmt.Errorf("accord/bun: parse task id %q: %w", m.TaskID, err)
		}
	}
	return e, nil
}

// ── Block model ───────────────────────────────────────────────────

type blockModel struct {
	bun.BaseModel `bun:"table:accord_blocks"`

	ID            string    `bun:"id,pk"`
	Number        int64     `bun:"number,notnull,unique"`
	StartSeq      int64     `bun:"start_seq,notnull"`
	EndSeq        int64     `bun:"end_seq,notnull"`
	EventCount    int       `bun:"event_count,notnull"`
	MerkleRoot    string    `bun:"merkle_root,notnull"`
	PrevBlockHash string    `bun:"previous_block_hash,notnull"`
	Hash          string    `bun:"hash,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func toBlockModel(b *ledger.Block) *blockModel {
	return &blockModel{
		ID:            b.ID.String(),
		Number:        b.Number,
		StartSeq:      b.StartSeq,
		EndSeq:        b.EndSeq,
		EventCount:    b.EventCount,
		MerkleRoot:    b.MerkleRoot,
		PrevBlockHash: b.PrevBlockHash,
		Hash:          b.Hash,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

func fromBlockModel(m *blockModel) (*ledger.Block, error) {
	parsedID, err := id.ParseBlockID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: parse block id %q: %w", m.ID, err)
	}
	return &ledger.Block{
		Entity:        accord.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:            parsedID,
		Number:        m.Number,
		StartSeq:      m.StartSeq,
		EndSeq:        m.EndSeq,
		EventCount:    m.EventCount,
		MerkleRoot:    m.MerkleRoot,
		PrevBlockHash: m.PrevBlockHash,
		Hash:          m.Hash,
	}, nil
}

// ── Checkpoint model ──────────────────────────────────────────────

type checkpointModel struct {
	bun.BaseModel `bun:"table:accord_checkpoints"`

	ID          string          `bun:"id,pk"`
	Name        string          `bun:"name,notnull"`
	WorkflowID  string          `bun:"workflow_id,notnull"`
	Rules       json.RawMessage `bun:"rules,notnull,type:jsonb"`
	Status      string          `bun:"status,notnull,default:'pending'"`
	Violations  json.RawMessage `bun:"violations,type:jsonb"`
	RuleErrors  json.RawMessage `bun:"rule_errors,type:jsonb"`
	EvaluatedAt *time.Time      `bun:"evaluated_at"`
	CreatedAt   time.Time       `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time       `bun:"updated_at,notnull,default:current_timestamp"`
}

func toCheckpointModel(c *compliance.Checkpoint) (*checkpointModel, error) {
	rules, err := json.Marshal(c.Rules)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: marshal rules: %w", err)
	}
	m := &checkpointModel{
		ID:          c.ID.String(),
		Name:        c.Name,
		WorkflowID:  c.WorkflowID.String(),
		Rules:       rules,
		Status:      string(c.Status),
		EvaluatedAt: c.EvaluatedAt,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
	if len(c.Violations) > 0 {
		if m.Violations, err = json.Marshal(c.Violations); err != nil {
			return nil, fmt.Errorf("accord/bun: marshal violations: %w", err)
		}
	}
	if len(c.RuleErrors) > 0 {
		if m.RuleErrors, err = json.Marshal(c.RuleErrors); err != nil {
			return nil, fmt.Errorf("accord/bun: marshal rule errors: %w", err)
		}
	}
	return m, nil
}

func fromCheckpointModel(m *checkpointModel) (*compliance.Checkpoint, error) {
	parsedID, err := id.ParseCheckpointID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: parse checkpoint id %q: %w", m.ID, err)
	}
	wfID, err := id.ParseExecutionID(m.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: parse workflow id %q: %w", m.WorkflowID, err)
	}
	c := &compliance.Checkpoint{
		Entity:      accord.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:          parsedID,
		Name:        m.Name,
		WorkflowID:  wfID,
		Status:      compliance.CheckpointStatus(m.Status),
		EvaluatedAt: m.EvaluatedAt,
	}
	if err := json.Unmarshal(m.Rules, &c.Rules); err != nil {
		return nil, fmt.Errorf("accord/bun: unmarshal rules: %w", err)
	}
	if len(m.Violations) > 0 {
		if err := json.Unmarshal(m.Violations, &c.Violations); err != nil {
			return nil, fmt.Errorf("accord/bun: unmarshal violations: %w", err)
		}
	}
	if len(m.RuleErrors) > 0 {
		if err := json.Unmarshal(m.RuleErrors, &c.RuleErrors); err != nil {
			return nil, fmt.Errorf("accord/bun: unmarshal rule errors: %w", err)
		}
	}
	return c, nil
}

// ── Approval model ────────────────────────────────────────────────

type approvalModel struct {
	bun.BaseModel `bun:"table:accord_approvals"`

	ID          string          `bun:"id,pk"`
	ExecutionID string          `bun:"execution_id,notnull"`
	TaskID      string          `bun:"task_id,notnull"`
	Status      string          `bun:"status,notnull,default:'pending'"`
	Prompt      string          `bun:"prompt"`
	DecidedBy   string          `bun:"decided_by"`
	Reason      string          `bun:"reason"`
	Payload     json.RawMessage `bun:"payload,type:jsonb"`
	DecidedAt   *time.Time      `bun:"decided_at"`
	CreatedAt   time.Time       `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time       `bun:"updated_at,notnull,default:current_timestamp"`
}

func toApprovalModel(a *approval.Approval) *approvalModel {
	return &approvalModel{
		ID:          a.ID.String(),
		ExecutionID: a.ExecutionID.String(),
		TaskID:      a.TaskID.String(),
		Status:      string(a.Status),
		Prompt:      a.Prompt,
		DecidedBy:   a.DecidedBy,
		Reason:      a.Reason,
		Payload:     a.Payload,
		DecidedAt:   a.DecidedAt,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func fromApprovalModel(m *approvalModel) (*approval.Approval, error) {
	parsedID, err := id.ParseApprovalID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: parse approval id %q: %w", m.ID, err)
	}
	execID, err := id.ParseExecutionID(m.ExecutionID)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: parse execution id %q: %w", m.ExecutionID, err)
	}
	taskID, err := id.ParseTaskID(m.TaskID)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: parse task id %q: %w", m.TaskID, err)
	}
	return &approval.Approval{
		Entity:      accord.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:          parsedID,
		ExecutionID: execID,
		TaskID:      taskID,
		Status:      approval.Status(m.Status),
		Prompt:      m.Prompt,
		DecidedBy:   m.DecidedBy,
		Reason:      m.Reason,
		Payload:     m.Payload,
		DecidedAt:   m.DecidedAt,
	}, nil
}

// ── Signal model ──────────────────────────────────────────────────

type signalModel struct {
	bun.BaseModel `bun:"table:accord_signals"`

	ID          string          `bun:"id,pk"`
	ExecutionID string          `bun:"execution_id,notnull"`
	Status      string          `bun:"status,notnull,default:'pending'"`
	Data        json.RawMessage `bun:"data,type:jsonb"`
	CreatedAt   time.Time       `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time       `bun:"updated_at,notnull,default:current_timestamp"`
}

func toSignalModel(s *settlement.Signal) *signalModel {
	return &signalModel{
		ID:          s.ID.String(),
		ExecutionID: s.ExecutionID.String(),
		Status:      string(s.Status),
		Data:        s.Data,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func fromSignalModel(m *signalModel) (*settlement.Signal, error) {
	parsedID, err := id.ParseSignalID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: parse signal id %q: %w", m.ID, err)
	}
	execID, err := id.ParseExecutionID(m.ExecutionID)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: parse execution id %q: %w", m.ExecutionID, err)
	}
	return &settlement.Signal{
		Entity:      accord.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:          parsedID,
		ExecutionID: execID,
		Status:      settlement.SignalStatus(m.Status),
		Data:        m.Data,
	}, nil
}
