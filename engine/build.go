package engine

import (
	"context"

	"github.com/xraph/accord"
	"github.com/xraph/accord/ext"
	"github.com/xraph/accord/ledger"
	"github.com/xraph/accord/store"
)

// Build wires the orchestrator's subsystems: a ledger over the store
// (extension hooks attached), an engine configured from the
// orchestrator's Config, and — when Config.SealSchedule is set — a
// sealer sharing the engine's lifecycle. The assembled runner is
// registered on the orchestrator so Orchestrator.Start and Stop drive
// everything.
//
// Options passed here take precedence over the config-derived defaults.
func Build(o *accord.Orchestrator, st store.Store, extensions *ext.Registry, opts ...Option) (*Engine, *ledger.Ledger, error) {
	cfg := o.Config()

	lg := ledger.New(st,
		ledger.WithLogger(o.Logger()),
		ledger.WithEmitter(extensions),
	)

	base := []Option{
		WithLogger(o.Logger()),
		WithConfig(cfg),
	}
	eng := New(st, lg, extensions, append(base, opts...)...)

	runners := []lifecycle{eng}
	if cfg.SealSchedule != "" {
		sealer, err := ledger.NewSealer(lg, cfg.SealSchedule,
			ledger.WithSealerLogger(o.Logger()))
		if err != nil {
			return nil, nil, err
		}
		runners = append(runners, sealer)
	}

	o.SetEngine(runnerGroup(runners))
	return eng, lg, nil
}

type lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// runnerGroup starts its members in order and stops them in reverse.
type runnerGroup []lifecycle

func (g runnerGroup) Start(ctx context.Context) error {
	for _, r := range g {
		if err := r.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (g runnerGroup) Stop(ctx context.Context) error {
	var firstErr error
	for i := len(g) - 1; i >= 0; i-- {
		if err := g[i].Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
