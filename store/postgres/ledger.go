package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/accord"
	"github.com/xraph/accord/id"
	"github.com/xraph/accord/ledger"
)

const eventColumns = `id, sequence, type, workflow_id, task_id, actor_type,
	actor_id, payload, previous_hash, hash, timestamp, created_at, updated_at`

// AppendEvent persists a new event. The UNIQUE constraint on sequence
// surfaces as accord.ErrDuplicateSequence so a racing writer cannot
// fork the chain.
func (s *Store) AppendEvent(ctx context.Context, e *ledger.Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accord_events (
			id, sequence, type, workflow_id, task_id, actor_type, actor_id,
			payload, previous_hash, hash, timestamp, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID.String(), e.Sequence, string(e.Type),
		optionalID(e.WorkflowID), optionalID(e.TaskID), e.ActorType, e.ActorID,
		nullableJSON(e.Payload), e.PrevHash, e.Hash, e.Timestamp,
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return accord.ErrDuplicateSequence
		}
		return fmt.Errorf("accord/postgres: append event: %w", err)
	}
	return nil
}

// GetEvent retrieves an event by ID.
func (s *Store) GetEvent(ctx context.Context, eventID id.EventID) (*ledger.Event, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM accord_events WHERE id = $1`,
		eventID.String(),
	)
	e, err := scanEvent(row)
	if err != nil {
		if isNoRows(err) {
			return nil, accord.ErrEventNotFound
		}
		return nil, fmt.Errorf("accord/postgres: get event: %w", err)
	}
	return e, nil
}

// LastEvent returns the event with the highest sequence number.
func (s *Store) LastEvent(ctx context.Context) (*ledger.Event, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT ` + eventColumns + ` FROM accord_events ORDER BY sequence DESC LIMIT 1`,
	)
	e, err := scanEvent(row)
	if err != nil {
		if isNoRows(err) {
			return nil, accord.ErrEventNotFound
		}
		return nil, fmt.Errorf("accord/postgres: last event: %w", err)
	}
	return e, nil
}

// LatestSequence returns the highest assigned sequence number, or 0.
func (s *Store) LatestSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM accord_events`,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("accord/postgres: latest sequence: %w", err)
	}
	return seq, nil
}

// EventsByWorkflow returns events correlated with a workflow execution,
// ordered by sequence ascending.
func (s *Store) EventsByWorkflow(ctx context.Context, workflowID id.ExecutionID, types []ledger.EventType, opts ledger.ListOpts) ([]*ledger.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM accord_events WHERE workflow_id = $1`
	args := []any{workflowID.String()}

	if len(types) > 0 {
		raw := make([]string, len(types))
		for i, t := range types {
			raw[i] = string(t)
		}
		args = append(args, raw)
		query += ` AND type = ANY($` + strconv.Itoa(len(args)) + `)`
	}
	query += ` ORDER BY sequence ASC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("accord/postgres: events by workflow: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// EventChain returns events with from <= sequence <= to, ordered by
// sequence ascending.
func (s *Store) EventChain(ctx context.Context, from, to int64) ([]*ledger.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM accord_events
		 WHERE sequence >= $1 AND sequence <= $2 ORDER BY sequence ASC`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("accord/postgres: event chain: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]*ledger.Event, error) {
	var result []*ledger.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("accord/postgres: scan event: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func scanEvent(row pgx.Row) (*ledger.Event, error) {
	var (
		e                     ledger.Event
		rawID, rawWF, rawTask string
		eventType             string
		payload               []byte
	)
	if err := row.Scan(&rawID, &e.Sequence, &eventType, &rawWF, &rawTask,
		&e.ActorType, &e.ActorID, &payload, &e.PrevHash, &e.Hash, &e.Timestamp,
		&e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if e.ID, err = id.ParseEventID(rawID); err != nil {
		return nil, err
	}
	if e.WorkflowID, err = parseOptionalID(rawWF, id.ParseExecutionID); err != nil {
		return nil, err
	}
	if e.TaskID, err = parseOptionalID(rawTask, id.ParseTaskID); err != nil {
		return nil, err
	}
	e.Type = ledger.EventType(eventType)
	e.Payload = json.RawMessage(payload)
	return &e, nil
}

const blockColumns = `id, number, start_seq, end_seq, event_count,
	merkle_root, previous_block_hash, hash, created_at, updated_at`

// AppendBlock persists a new verification block.
func (s *Store) AppendBlock(ctx context.Context, b *ledger.Block) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accord_blocks (
			id, number, start_seq, end_seq, event_count,
			merkle_root, previous_block_hash, hash, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID.String(), b.Number, b.StartSeq, b.EndSeq, b.EventCount,
		b.MerkleRoot, b.PrevBlockHash, b.Hash, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("accord/postgres: append block: %w", err)
	}
	return nil
}

// GetBlock retrieves a block by block number.
func (s *Store) GetBlock(ctx context.Context, number int64) (*ledger.Block, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+blockColumns+` FROM accord_blocks WHERE number = $1`,
		number,
	)
	b, err := scanBlock(row)
	if err != nil {
		if isNoRows(err) {
			return nil, accord.ErrBlockNotFound
		}
		return nil, fmt.Errorf("accord/postgres: get block: %w", err)
	}
	return b, nil
}

// LastBlock returns the block with the highest number.
func (s *Store) LastBlock(ctx context.Context) (*ledger.Block, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT ` + blockColumns + ` FROM accord_blocks ORDER BY number DESC LIMIT 1`,
	)
	b, err := scanBlock(row)
	if err != nil {
		if isNoRows(err) {
			return nil, accord.ErrBlockNotFound
		}
		return nil, fmt.Errorf("accord/postgres: last block: %w", err)
	}
	return b, nil
}

func scanBlock(row pgx.Row) (*ledger.Block, error) {
	var (
		b     ledger.Block
		rawID string
	)
	if err := row.Scan(&rawID, &b.Number, &b.StartSeq, &b.EndSeq, &b.EventCount,
		&b.MerkleRoot, &b.PrevBlockHash, &b.Hash, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	parsed, err := id.ParseBlockID(rawID)
	if err != nil {
		return nil, err
	}
	b.ID = parsed
	return &b, nil
}

// optionalID renders a possibly-nil ID as its string form, empty when
// unset.
func optionalID(v id.ID) string {
	if v.IsNil() {
		return ""
	}
	return v.String()
}

func parseOptionalID(s string, parse func(string) (id.ID, error)) (id.ID, error) {
	if s == "" {
		return id.Nil, nil
	}
	return parse(s)
}
