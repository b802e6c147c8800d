// Package bunstore implements store.Store on PostgreSQL through the Bun
// ORM. It shares the schema of the pgx backend, so either can run
// against the same database.
package bunstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/xraph/accord/approval"
	"github.com/xraph/accord/compliance"
	"github.com/xraph/accord/ledger"
	"github.com/xraph/accord/settlement"
	"github.com/xraph/accord/workflow"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ workflow.Store   = (*Store)(nil)
	_ ledger.Store     = (*Store)(nil)
	_ compliance.Store = (*Store)(nil)
	_ approval.Store   = (*Store)(nil)
	_ settlement.Store = (*Store)(nil)
)

// Store is a Bun ORM implementation of store.Store using PostgreSQL
// dialect. The caller owns the *bun.DB lifecycle; Store never closes it.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new Bun store. The caller owns the db lifecycle — the
// Store will not close it on Close().
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Migrate creates all tables from the registered models.
func (s *Store) Migrate(ctx context.Context) error {
	models := []any{
		(*definitionModel)(nil),
		(*executionModel)(nil),
		(*taskModel)(nil),
		(*eventModel)(nil),
		(*blockModel)(nil),
		(*checkpointModel)(nil),
		(*approvalModel)(nil),
		(*signalModel)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("accord/bun: create table for %T: %w", model, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op: the caller owns the *bun.DB.
func (s *Store) Close() error {
	return nil
}
