// Package ledger implements the append-only, hash-chained trust ledger.
//
// Every entry links to its predecessor: entry N stores the hash of entry
// N-1 as previous_hash, and its own hash covers that link. Tampering with
// any stored field of any entry is therefore detectable by Verifier.
// The chain begins at a well-known genesis constant (GenesisHash, 64 hex
// zeros); no genesis row is materialized, so LatestSequence of an empty
// ledger is 0 and the first append is assigned sequence 1.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/accord"
	"github.com/xraph/accord/id"
)

// Ledger is the append service for the trust ledger. It serializes
// sequence-number assignment and hash computation in a single critical
// section so no two entries ever share a sequence number or link against
// a stale predecessor hash. All read operations go straight to the store
// and may run concurrently with appends.
//
// Pass the one Ledger instance explicitly to every component that records
// events; there is no package-level singleton.
// Emitter receives ledger lifecycle notifications. *ext.Registry
// satisfies it; the indirection exists because ext imports this
// package.
type Emitter interface {
	EmitLedgerAppended(ctx context.Context, e *Event)
	EmitBlockSealed(ctx context.Context, b *Block)
}

type Ledger struct {
	store   Store
	logger  *slog.Logger
	emitter Emitter

	// mu guards the chain head. lastSeq/lastHash are loaded lazily from
	// the store on first append and maintained in memory afterwards.
	mu       sync.Mutex
	loaded   bool
	lastSeq  int64
	lastHash string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(lg *Ledger) { lg.logger = l }
}

// WithEmitter sets the emitter notified after every append and seal.
func WithEmitter(em Emitter) Option {
	return func(lg *Ledger) { lg.emitter = em }
}

// New creates a Ledger backed by the given store.
func New(store Store, opts ...Option) *Ledger {
	lg := &Ledger{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(lg)
	}
	return lg
}

// Store returns the underlying ledger store.
func (l *Ledger) Store() Store { return l.store }

// Append records a new event. payload may be any JSON-marshalable value;
// it is canonicalized (deterministic key order) before hashing so two
// payloads with equal content but different serialization order produce
// identical hashes.
//
// Safe for concurrent callers.
func (l *Ledger) Append(ctx context.Context, eventType EventType, payload any, opts ...AppendOption) (*Event, error) {
	canonicalPayload, err := Canonicalize(payload)
	if err != nil {
		return nil, err
	}

	e, err := l.appendLocked(ctx, eventType, canonicalPayload, opts)
	if err != nil {
		return nil, err
	}

	l.logger.Info("ledger event recorded",
		slog.String("event_id", e.ID.String()),
		slog.String("event_type", string(e.Type)),
		slog.Int64("sequence", e.Sequence),
		slog.String("workflow_id", e.WorkflowID.String()),
	)
	// Emitted outside the critical section so a hook may read the
	// ledger (or even append) without deadlocking.
	if l.emitter != nil {
		l.emitter.EmitLedgerAppended(ctx, e)
	}

	return e, nil
}

func (l *Ledger) appendLocked(ctx context.Context, eventType EventType, canonicalPayload []byte, opts []AppendOption) (*Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.loaded {
		if loadErr := l.loadHead(ctx); loadErr != nil {
			return nil, loadErr
		}
	}

	// Timestamps are truncated to microseconds so the hash survives a
	// round trip through stores with microsecond column precision.
	now := time.Now().UTC().Truncate(time.Microsecond)

	e := &Event{
		Entity:    accord.NewEntity(),
		ID:        id.NewEventID(),
		Sequence:  l.lastSeq + 1,
		Type:      eventType,
		Payload:   canonicalPayload,
		PrevHash:  l.lastHash,
		Timestamp: now,
	}
	for _, opt := range opts {
		opt(e)
	}

	hash, err := ComputeHash(e)
	if err != nil {
		return nil, err
	}
	e.Hash = hash

	if err := l.store.AppendEvent(ctx, e); err != nil {
		return nil, err
	}

	l.lastSeq = e.Sequence
	l.lastHash = e.Hash

	return e, nil
}

// loadHead initializes the cached chain head from the store.
// Caller holds mu.
func (l *Ledger) loadHead(ctx context.Context) error {
	last, err := l.store.LastEvent(ctx)
	switch {
	case err == nil:
		l.lastSeq = last.Sequence
		l.lastHash = last.Hash
	case isNotFound(err):
		l.lastSeq = 0
		l.lastHash = GenesisHash
	default:
		return err
	}
	l.loaded = true
	return nil
}

// GetEvent retrieves a single event by ID.
func (l *Ledger) GetEvent(ctx context.Context, eventID id.EventID) (*Event, error) {
	return l.store.GetEvent(ctx, eventID)
}

// EventsByWorkflow returns the events correlated with a workflow
// execution, in sequence order, optionally filtered by type.
func (l *Ledger) EventsByWorkflow(ctx context.Context, workflowID id.ExecutionID, types ...EventType) ([]*Event, error) {
	return l.store.EventsByWorkflow(ctx, workflowID, types, ListOpts{})
}

// EventChain returns the events with from <= sequence <= to in order.
func (l *Ledger) EventChain(ctx context.Context, from, to int64) ([]*Event, error) {
	return l.store.EventChain(ctx, from, to)
}

// LatestSequence returns the highest assigned sequence number (0 for an
// empty ledger).
func (l *Ledger) LatestSequence(ctx context.Context) (int64, error) {
	return l.store.LatestSequence(ctx)
}

func isNotFound(err error) bool {
	return errors.Is(err, accord.ErrEventNotFound)
}
