package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/accord"
	"github.com/xraph/accord/backoff"
	"github.com/xraph/accord/ext"
	"github.com/xraph/accord/ledger"
	"github.com/xraph/accord/middleware"
	"github.com/xraph/accord/workflow"
)

// Limiter throttles task dispatch. The engine calls Acquire before
// handing a task to the executor and Release when the attempt ends; a
// false return leaves the task QUEUED for the next dispatch pass.
type Limiter interface {
	Acquire(t *workflow.Task) bool
	Release(t *workflow.Task)
}

// Engine drives workflow executions. See the package documentation for
// the concurrency model.
type Engine struct {
	store      workflow.Store
	ledger     *ledger.Ledger
	extensions *ext.Registry
	logger     *slog.Logger

	executor   TaskExecutor
	policy     PolicyChecker
	settlement SettlementTrigger
	approvals  ApprovalRequester
	limiter    Limiter

	backoff backoff.Strategy
	chain   middleware.Middleware

	retryPollInterval    time.Duration
	timeoutSweepInterval time.Duration
	defaultMaxRetries    int
	defaultTaskTimeout   time.Duration

	// sem caps engine-wide concurrent dispatches when configured; the
	// per-type limiter applies on top of it.
	sem chan struct{}

	locks locks

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithExecutor sets the external task executor.
func WithExecutor(e TaskExecutor) Option {
	return func(eng *Engine) { eng.executor = e }
}

// WithPolicyChecker sets the governance policy collaborator.
func WithPolicyChecker(p PolicyChecker) Option {
	return func(eng *Engine) { eng.policy = p }
}

// WithSettlementTrigger sets the settlement collaborator notified on
// workflow completion.
func WithSettlementTrigger(s SettlementTrigger) Option {
	return func(eng *Engine) { eng.settlement = s }
}

// WithApprovalRequester sets the approval collaborator used for
// human_approval tasks.
func WithApprovalRequester(a ApprovalRequester) Option {
	return func(eng *Engine) { eng.approvals = a }
}

// WithLimiter sets the dispatch limiter.
func WithLimiter(l Limiter) Option {
	return func(eng *Engine) { eng.limiter = l }
}

// WithBackoff sets the retry backoff strategy.
func WithBackoff(s backoff.Strategy) Option {
	return func(eng *Engine) { eng.backoff = s }
}

// WithMiddleware sets the middleware chain wrapped around every
// executor invocation. Defaults to Recover + Logging + Timeout.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(eng *Engine) { eng.chain = middleware.Chain(mws...) }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithRetryPollInterval sets how often the engine polls for due
// retries.
func WithRetryPollInterval(d time.Duration) Option {
	return func(eng *Engine) { eng.retryPollInterval = d }
}

// WithTimeoutSweepInterval sets how often the engine sweeps for
// expired RUNNING tasks.
func WithTimeoutSweepInterval(d time.Duration) Option {
	return func(eng *Engine) { eng.timeoutSweepInterval = d }
}

// WithConfig applies orchestrator-level configuration: poll intervals,
// the engine-wide dispatch concurrency cap, and the retry/timeout
// defaults stamped onto task specs that declare neither.
func WithConfig(cfg accord.Config) Option {
	return func(eng *Engine) {
		if cfg.RetryPollInterval > 0 {
			eng.retryPollInterval = cfg.RetryPollInterval
		}
		if cfg.TimeoutSweepInterval > 0 {
			eng.timeoutSweepInterval = cfg.TimeoutSweepInterval
		}
		eng.defaultMaxRetries = cfg.DefaultMaxRetries
		eng.defaultTaskTimeout = cfg.DefaultTaskTimeout
		if cfg.Concurrency > 0 {
			eng.sem = make(chan struct{}, cfg.Concurrency)
		}
	}
}

// New creates an Engine over the given store, ledger, and extension
// registry.
func New(store workflow.Store, lg *ledger.Ledger, extensions *ext.Registry, opts ...Option) *Engine {
	logger := slog.Default()
	eng := &Engine{
		store:                store,
		ledger:               lg,
		extensions:           extensions,
		logger:               logger,
		backoff:              backoff.DefaultStrategy(),
		retryPollInterval:    500 * time.Millisecond,
		timeoutSweepInterval: 5 * time.Second,
		stopCh:               make(chan struct{}),
	}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.chain == nil {
		eng.chain = middleware.Chain(
			middleware.Recover(eng.logger),
			middleware.Logging(eng.logger),
			middleware.Timeout(eng.logger),
		)
	}
	return eng
}

// Start launches the retry poller and timeout sweeper. It returns
// immediately. A stopped engine may be started again.
func (eng *Engine) Start(_ context.Context) error {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	if eng.running {
		return nil
	}
	eng.running = true
	eng.stopCh = make(chan struct{})

	eng.logger.Info("engine starting",
		slog.Duration("retry_poll", eng.retryPollInterval),
		slog.Duration("timeout_sweep", eng.timeoutSweepInterval),
	)

	eng.wg.Add(1)
	go eng.retryLoop(eng.stopCh)

	eng.wg.Add(1)
	go eng.timeoutLoop(eng.stopCh)

	return nil
}

// Stop signals the background loops to stop and waits for them. If the
// context expires first, Stop returns without waiting further;
// in-flight executor calls finish on their own and their results are
// applied through the normal completion path.
func (eng *Engine) Stop(ctx context.Context) error {
	eng.mu.Lock()
	if !eng.running {
		eng.mu.Unlock()
		return nil
	}
	eng.running = false
	stopCh := eng.stopCh
	eng.mu.Unlock()

	close(stopCh)

	done := make(chan struct{})
	go func() {
		eng.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		eng.logger.Info("engine stopped")
	case <-ctx.Done():
		eng.logger.Warn("engine shutdown timed out")
	}
	eng.extensions.EmitShutdown(ctx)
	return nil
}

// retryLoop re-dispatches QUEUED tasks whose backoff delay has elapsed.
func (eng *Engine) retryLoop(stop <-chan struct{}) {
	defer eng.wg.Done()

	ticker := time.NewTicker(eng.retryPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			eng.dispatchDueRetries(context.Background())
		}
	}
}

func (eng *Engine) dispatchDueRetries(ctx context.Context) {
	due, err := eng.store.DueRetries(ctx, time.Now().UTC())
	if err != nil {
		eng.logger.Error("retry poll failed", slog.String("error", err.Error()))
		return
	}
	for _, t := range due {
		if err := eng.dispatchTask(ctx, t.ExecutionID, t.ID); err != nil {
			eng.logger.Error("retry dispatch failed",
				slog.String("task_id", t.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// timeoutLoop fails RUNNING tasks that outlived their declared
// deadline; retry policy applies as for any other failure.
func (eng *Engine) timeoutLoop(stop <-chan struct{}) {
	defer eng.wg.Done()

	ticker := time.NewTicker(eng.timeoutSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			eng.sweepExpired(context.Background())
		}
	}
}

func (eng *Engine) sweepExpired(ctx context.Context) {
	expired, err := eng.store.ExpiredTasks(ctx, time.Now().UTC())
	if err != nil {
		eng.logger.Error("timeout sweep failed", slog.String("error", err.Error()))
		return
	}
	for _, t := range expired {
		if err := eng.failTask(ctx, t.ID, errTaskTimeout, true); err != nil {
			eng.logger.Error("timeout handling failed",
				slog.String("task_id", t.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}
