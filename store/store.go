// Package store defines the aggregate persistence interface. Each subsystem
// (workflow, ledger, compliance, approval, settlement) defines its own store
// interface; the composite Store composes them all. Backends: Postgres, Bun,
// and Memory.
package store

import (
	"context"

	"github.com/xraph/accord/approval"
	"github.com/xraph/accord/compliance"
	"github.com/xraph/accord/ledger"
	"github.com/xraph/accord/settlement"
	"github.com/xraph/accord/workflow"
)

// Store is the aggregate persistence interface. A single backend
// implements every subsystem store, so a workflow, its ledger events,
// and its approvals live in the same database.
type Store interface {
	workflow.Store
	ledger.Store
	compliance.Store
	approval.Store
	settlement.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
