package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/accord"
)

// sealParser supports standard 5-field cron and descriptors like "@every 5m".
var sealParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression for the sealer schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return sealParser.Parse(expr)
}

// Sealer periodically seals unblocked ledger events into Merkle blocks
// and re-verifies the sealed range, surfacing any violations through the
// log for operator investigation. It never repairs the chain.
type Sealer struct {
	ledger   *Ledger
	verifier *Verifier
	schedule cronlib.Schedule
	logger   *slog.Logger

	tickInterval time.Duration
	nextRun      time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// SealerOption configures a Sealer.
type SealerOption func(*Sealer)

// WithTickInterval sets how often the sealer checks whether the schedule
// is due.
func WithTickInterval(d time.Duration) SealerOption {
	return func(s *Sealer) { s.tickInterval = d }
}

// WithSealerLogger sets the structured logger.
func WithSealerLogger(l *slog.Logger) SealerOption {
	return func(s *Sealer) { s.logger = l }
}

// NewSealer creates a Sealer firing on the given cron expression.
func NewSealer(lg *Ledger, expr string, opts ...SealerOption) (*Sealer, error) {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	s := &Sealer{
		ledger:       lg,
		verifier:     NewVerifier(lg.Store()),
		schedule:     sched,
		logger:       slog.Default(),
		tickInterval: time.Second,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.nextRun = s.schedule.Next(time.Now())
	return s, nil
}

// Start launches the seal loop. It returns immediately.
func (s *Sealer) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true

	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop signals the loop to stop and waits for it to finish.
func (s *Sealer) Stop(_ context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	return nil
}

func (s *Sealer) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			if now.Before(s.nextRun) {
				continue
			}
			s.nextRun = s.schedule.Next(now)
			s.sealOnce(context.Background())
		}
	}
}

// sealOnce seals all events appended since the last block and verifies
// the newly sealed range.
func (s *Sealer) sealOnce(ctx context.Context) {
	latest, err := s.ledger.LatestSequence(ctx)
	if err != nil {
		s.logger.Error("sealer: latest sequence", slog.String("error", err.Error()))
		return
	}

	from := int64(1)
	last, err := s.ledger.Store().LastBlock(ctx)
	switch {
	case err == nil:
		from = last.EndSeq + 1
	case errors.Is(err, accord.ErrBlockNotFound):
		// No blocks yet; seal from the beginning.
	default:
		s.logger.Error("sealer: last block", slog.String("error", err.Error()))
		return
	}

	if latest < from {
		return // nothing new to seal
	}

	b, err := s.ledger.SealBlock(ctx, from, latest)
	if err != nil {
		s.logger.Error("sealer: seal block", slog.String("error", err.Error()))
		return
	}

	valid, violations, err := s.verifier.VerifyRange(ctx, b.StartSeq, b.EndSeq)
	if err != nil {
		s.logger.Error("sealer: verify sealed range", slog.String("error", err.Error()))
		return
	}
	if !valid {
		for _, viol := range violations {
			s.logger.Error("ledger integrity violation",
				slog.Int64("sequence", viol.Sequence),
				slog.String("kind", string(viol.Kind)),
				slog.String("detail", viol.Detail),
			)
		}
	}
}
