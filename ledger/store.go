package ledger

import (
	"context"

	"github.com/xraph/accord/id"
)

// ListOpts controls pagination for event list queries.
type ListOpts struct {
	// Limit is the maximum number of events to return. Zero means no limit.
	Limit int
	// Offset is the number of events to skip.
	Offset int
}

// Store defines the persistence contract for the trust ledger. The ledger
// is append-only: implementations must never update or delete an event or
// block row, and AppendEvent must reject a sequence number that already
// exists (accord.ErrDuplicateSequence) so a racing writer cannot fork the
// chain.
type Store interface {
	// AppendEvent persists a new event. The event arrives fully formed:
	// sequence, hashes, and timestamp are assigned by the Ledger.
	AppendEvent(ctx context.Context, e *Event) error

	// GetEvent retrieves an event by ID.
	GetEvent(ctx context.Context, eventID id.EventID) (*Event, error)

	// LastEvent returns the event with the highest sequence number, or
	// accord.ErrEventNotFound if the ledger is empty.
	LastEvent(ctx context.Context) (*Event, error)

	// LatestSequence returns the highest assigned sequence number, or 0
	// for an empty ledger.
	LatestSequence(ctx context.Context) (int64, error)

	// EventsByWorkflow returns events correlated with the given workflow
	// execution, ordered by sequence number ascending. An empty types
	// slice matches all event types.
	EventsByWorkflow(ctx context.Context, workflowID id.ExecutionID, types []EventType, opts ListOpts) ([]*Event, error)

	// EventChain returns events with from <= sequence <= to, ordered by
	// sequence number ascending.
	EventChain(ctx context.Context, from, to int64) ([]*Event, error)

	// AppendBlock persists a new verification block.
	AppendBlock(ctx context.Context, b *Block) error

	// GetBlock retrieves a block by block number, or
	// accord.ErrBlockNotFound.
	GetBlock(ctx context.Context, number int64) (*Block, error)

	// LastBlock returns the block with the highest number, or
	// accord.ErrBlockNotFound if no block has been sealed yet.
	LastBlock(ctx context.Context) (*Block, error)
}
