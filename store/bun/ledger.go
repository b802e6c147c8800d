package bunstore

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/xraph/accord"
	"github.com/xraph/accord/id"
	"github.com/xraph/accord/ledger"
)

// AppendEvent persists a new event. The unique index on sequence
// surfaces as accord.ErrDuplicateSequence so a racing writer cannot
// fork the chain.
func (s *Store) AppendEvent(ctx context.Context, e *ledger.Event) error {
	if _, err := s.db.NewInsert().Model(toEventModel(e)).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return accord.ErrDuplicateSequence
		}
		return fmt.Errorf("accord/bun: append event: %w", err)
	}
	return nil
}

// GetEvent retrieves an event by ID.
func (s *Store) GetEvent(ctx context.Context, eventID id.EventID) (*ledger.Event, error) {
	m := new(eventModel)
	err := s.db.NewSelect().Model(m).Where("id = ?", eventID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, accord.ErrEventNotFound
		}
		return nil, fmt.Errorf("accord/bun: get event: %w", err)
	}
	return fromEventModel(m)
}

// LastEvent returns the event with the highest sequence number.
func (s *Store) LastEvent(ctx context.Context) (*ledger.Event, error) {
	m := new(eventModel)
	err := s.db.NewSelect().Model(m).Order("sequence DESC").Limit(1).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, accord.ErrEventNotFound
		}
		return nil, fmt.Errorf("accord/bun: last event: %w", err)
	}
	return fromEventModel(m)
}

// LatestSequence returns the highest assigned sequence number, or 0.
func (s *Store) LatestSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.NewSelect().
		Model((*eventModel)(nil)).
		ColumnExpr("COALESCE(MAX(sequence), 0)").
		Scan(ctx, &seq)
	if err != nil {
		return 0, fmt.Errorf("accord/bun: latest sequence: %w", err)
	}
	return seq, nil
}

// EventsByWorkflow returns events correlated with a workflow execution,
// ordered by sequence ascending.
func (s *Store) EventsByWorkflow(ctx context.Context, workflowID id.ExecutionID, types []ledger.EventType, opts ledger.ListOpts) ([]*ledger.Event, error) {
	var models []eventModel
	q := s.db.NewSelect().
		Model(&models).
		Where("workflow_id = ?", workflowID.String())
	if len(types) > 0 {
		raw := make([]string, len(types))
		for i, t := range types {
			raw[i] = string(t)
		}
		q = q.Where("type IN (?)", bun.In(raw))
	}
	q = q.Order("sequence ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("accord/bun: events by workflow: %w", err)
	}
	return collectEventModels(models)
}

// EventChain returns events with from <= sequence <= to, ordered by
// sequence ascending.
func (s *Store) EventChain(ctx context.Context, from, to int64) ([]*ledger.Event, error) {
	var models []eventModel
	err := s.db.NewSelect().
		Model(&models).
		Where("sequence >= ?", from).
		Where("sequence <= ?", to).
		Order("sequence ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("accord/bun: event chain: %w", err)
	}
	return collectEventModels(models)
}

func collectEventModels(models []eventModel) ([]*ledger.Event, error) {
	result := make([]*ledger.Event, 0, len(models))
	for i := range models {
		e, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}

// AppendBlock persists a new verification block.
func (s *Store) AppendBlock(ctx context.Context, b *ledger.Block) error {
	if _, err := s.db.NewInsert().Model(toBlockModel(b)).Exec(ctx); err != nil {
		return fmt.Errorf("accord/bun: append block: %w", err)
	}
	return nil
}

// GetBlock retrieves a block by block number.
func (s *Store) GetBlock(ctx context.Context, number int64) (*ledger.Block, error) {
	m := new(blockModel)
	err := s.db.NewSelect().Model(m).Where("number = ?", number).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, accord.ErrBlockNotFound
		}
		return nil, fmt.Errorf("accord/bun: get block: %w", err)
	}
	return fromBlockModel(m)
}

// LastBlock returns the block with the highest number.
func (s *Store) LastBlock(ctx context.Context) (*ledger.Block, error) {
	m := new(blockModel)
	err := s.db.NewSelect().Model(m).Order("number DESC").Limit(1).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, accord.ErrBlockNotFound
		}
		return nil, fmt.Errorf("accord/bun: last block: %w", err)
	}
	return fromBlockModel(m)
}
