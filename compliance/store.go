package compliance

import (
	"context"

	"github.com/xraph/accord/id"
)

// Store defines the persistence contract for compliance checkpoints.
type Store interface {
	// CreateCheckpoint persists a new checkpoint.
	CreateCheckpoint(ctx context.Context, c *Checkpoint) error

	// GetCheckpoint retrieves a checkpoint by ID, or
	// accord.ErrCheckpointNotFound.
	GetCheckpoint(ctx context.Context, checkpointID id.CheckpointID) (*Checkpoint, error)

	// UpdateCheckpoint persists the checkpoint's current state.
	UpdateCheckpoint(ctx context.Context, c *Checkpoint) error

	// CheckpointsByWorkflow returns all checkpoints bound to a workflow
	// execution, ordered by creation time ascending.
	CheckpointsByWorkflow(ctx context.Context, workflowID id.ExecutionID) ([]*Checkpoint, error)
}
