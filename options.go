package accord

import (
	"context"
	"log/slog"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// Storer is the minimal store interface held by the Orchestrator.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used in subsystem layers that don't create import
// cycles. Implementations satisfy store.Store which embeds all
// subsystem stores.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// engineRunner is an internal interface for engine lifecycle.
type engineRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Orchestrator is the central handle for workflow coordination. It holds
// configuration, the structured logger, and the persistence backend.
//
// Create one with New() and functional options, then wire the subsystems
// together with engine.Build(). The Orchestrator holds the engine through
// an internal interface to avoid import cycles.
type Orchestrator struct {
	config Config
	logger *slog.Logger
	store  Storer
	engine engineRunner

	started bool
}

// New creates a new Orchestrator with the given options.
func New(opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Logger returns the orchestrator's logger.
func (o *Orchestrator) Logger() *slog.Logger { return o.logger }

// Store returns the orchestrator's store.
func (o *Orchestrator) Store() Storer { return o.store }

// Config returns a copy of the orchestrator's configuration.
func (o *Orchestrator) Config() Config { return o.config }

// SetEngine sets the engine runner (called by the engine package).
func (o *Orchestrator) SetEngine(e engineRunner) { o.engine = e }

// Start begins background processing (retry polling, timeout sweeps,
// ledger sealing).
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.engine == nil {
		return ErrNoStore
	}
	if err := o.engine.Start(ctx); err != nil {
		return err
	}
	o.started = true
	return nil
}

// Stop gracefully shuts down the orchestrator, waiting at most
// Config.ShutdownTimeout for background loops to drain.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if o.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.ShutdownTimeout)
		defer cancel()
	}
	if o.engine != nil && o.started {
		if err := o.engine.Stop(ctx); err != nil {
			o.logger.Error("engine stop error", "error", err)
		}
	}
	if o.store != nil {
		return o.store.Close()
	}
	return nil
}

// WithConcurrency sets the maximum number of concurrent task dispatches.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) error {
		o.config.Concurrency = n
		return nil
	}
}

// WithLogger sets the structured logger for the orchestrator.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) error {
		o.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the orchestrator.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds all subsystem store interfaces.
func WithStore(s Storer) Option {
	return func(o *Orchestrator) error {
		o.store = s
		return nil
	}
}

// WithConfig replaces the entire configuration.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) error {
		o.config = cfg
		return nil
	}
}

// WithSealSchedule sets the cron expression for periodic ledger sealing.
func WithSealSchedule(expr string) Option {
	return func(o *Orchestrator) error {
		o.config.SealSchedule = expr
		return nil
	}
}
