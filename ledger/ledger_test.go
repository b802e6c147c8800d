package ledger_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/xraph/accord/id"
	"github.com/xraph/accord/ledger"
	"github.com/xraph/accord/store/memory"
)

func newTestLedger() (*ledger.Ledger, *memory.Store) {
	s := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return ledger.New(s, ledger.WithLogger(logger)), s
}

func TestAppend_AssignsGaplessSequences(t *testing.T) {
	lg, _ := newTestLedger()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		e, err := lg.Append(ctx, ledger.EventTaskStarted, map[string]any{"n": i})
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		if e.Sequence != int64(i) {
			t.Errorf("sequence = %d, want %d", e.Sequence, i)
		}
	}

	latest, err := lg.LatestSequence(ctx)
	if err != nil {
		t.Fatalf("LatestSequence: %v", err)
	}
	if latest != 5 {
		t.Errorf("LatestSequence = %d, want 5", latest)
	}
}

func TestAppend_FirstEventLinksToGenesis(t *testing.T) {
	lg, _ := newTestLedger()

	e, err := lg.Append(context.Background(), ledger.EventWorkflowStarted, map[string]any{"name": "wf"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if e.PrevHash != ledger.GenesisHash {
		t.Errorf("first event prev_hash = %q, want genesis", e.PrevHash)
	}
	if e.Hash == "" || e.Hash == ledger.GenesisHash {
		t.Errorf("first event hash = %q, want non-genesis digest", e.Hash)
	}
}

func TestAppend_ChainsToPredecessor(t *testing.T) {
	lg, _ := newTestLedger()
	ctx := context.Background()

	first, err := lg.Append(ctx, ledger.EventTaskStarted, nil)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	second, err := lg.Append(ctx, ledger.EventTaskCompleted, nil)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if second.PrevHash != first.Hash {
		t.Errorf("second prev_hash = %q, want %q", second.PrevHash, first.Hash)
	}
}

func TestAppend_ConcurrentCallersNeverCollide(t *testing.T) {
	lg, _ := newTestLedger()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := lg.Append(ctx, ledger.EventTaskStarted, map[string]any{"i": i}); err != nil {
				t.Errorf("Append: %v", err)
			}
		}()
	}
	wg.Wait()

	latest, err := lg.LatestSequence(ctx)
	if err != nil {
		t.Fatalf("LatestSequence: %v", err)
	}
	if latest != n {
		t.Errorf("LatestSequence = %d, want %d", latest, n)
	}

	// The resulting chain must verify cleanly: no duplicate sequence,
	// no stale previous_hash.
	valid, violations, err := ledger.NewVerifier(lg.Store()).VerifyRange(ctx, 1, n)
	if err != nil {
		t.Fatalf("VerifyRange: %v", err)
	}
	if !valid {
		t.Errorf("expected valid chain, got %d violations", len(violations))
	}
}

func TestEventsByWorkflow_FiltersAndOrders(t *testing.T) {
	lg, _ := newTestLedger()
	ctx := context.Background()

	wfA := id.NewExecutionID()
	wfB := id.NewExecutionID()

	if _, err := lg.Append(ctx, ledger.EventWorkflowStarted, nil, ledger.WithWorkflow(wfA)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := lg.Append(ctx, ledger.EventWorkflowStarted, nil, ledger.WithWorkflow(wfB)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := lg.Append(ctx, ledger.EventTaskStarted, nil, ledger.WithWorkflow(wfA)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := lg.Append(ctx, ledger.EventWorkflowCompleted, nil, ledger.WithWorkflow(wfA)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	all, err := lg.EventsByWorkflow(ctx, wfA)
	if err != nil {
		t.Fatalf("EventsByWorkflow: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Sequence <= all[i-1].Sequence {
			t.Errorf("events out of sequence order at %d", i)
		}
	}

	completed, err := lg.EventsByWorkflow(ctx, wfA, ledger.EventWorkflowCompleted)
	if err != nil {
		t.Fatalf("EventsByWorkflow filtered: %v", err)
	}
	if len(completed) != 1 {
		t.Errorf("len(completed) = %d, want 1", len(completed))
	}
}

func TestEventChain_RangeBounds(t *testing.T) {
	lg, _ := newTestLedger()
	ctx := context.Background()

	for range 6 {
		if _, err := lg.Append(ctx, ledger.EventTaskStarted, nil); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	chain, err := lg.EventChain(ctx, 2, 4)
	if err != nil {
		t.Fatalf("EventChain: %v", err)
	}
	if len(chain) != 3 {
		t.Fatalf("len(chain) = %d, want 3", len(chain))
	}
	if chain[0].Sequence != 2 || chain[2].Sequence != 4 {
		t.Errorf("chain bounds = [%d, %d], want [2, 4]", chain[0].Sequence, chain[2].Sequence)
	}
}

// countingEmitter records what the ledger hands to its emitter.
type countingEmitter struct {
	mu     sync.Mutex
	events []*ledger.Event
	blocks []*ledger.Block
}

func (c *countingEmitter) EmitLedgerAppended(_ context.Context, e *ledger.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *countingEmitter) EmitBlockSealed(_ context.Context, b *ledger.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks = append(c.blocks, b)
}

func TestAppend_NotifiesEmitter(t *testing.T) {
	em := &countingEmitter{}
	s := memory.New()
	lg := ledger.New(s, ledger.WithEmitter(em))
	ctx := context.Background()

	e, err := lg.Append(ctx, ledger.EventWorkflowStarted, map[string]any{"name": "wf"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	em.mu.Lock()
	defer em.mu.Unlock()
	if len(em.events) != 1 {
		t.Fatalf("emitter saw %d events, want 1", len(em.events))
	}
	if em.events[0].Sequence != e.Sequence || em.events[0].Hash != e.Hash {
		t.Errorf("emitted event = seq %d hash %s, want seq %d hash %s",
			em.events[0].Sequence, em.events[0].Hash, e.Sequence, e.Hash)
	}
}

func TestSealBlock_NotifiesEmitter(t *testing.T) {
	em := &countingEmitter{}
	s := memory.New()
	lg := ledger.New(s, ledger.WithEmitter(em))
	ctx := context.Background()

	for range 3 {
		if _, err := lg.Append(ctx, ledger.EventTaskStarted, nil); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	b, err := lg.SealBlock(ctx, 1, 3)
	if err != nil {
		t.Fatalf("SealBlock: %v", err)
	}

	em.mu.Lock()
	defer em.mu.Unlock()
	if len(em.blocks) != 1 {
		t.Fatalf("emitter saw %d blocks, want 1", len(em.blocks))
	}
	if em.blocks[0].Number != b.Number || em.blocks[0].MerkleRoot != b.MerkleRoot {
		t.Errorf("emitted block %d root %s, want %d root %s",
			em.blocks[0].Number, em.blocks[0].MerkleRoot, b.Number, b.MerkleRoot)
	}
}

func TestAppend_ActorAttribution(t *testing.T) {
	lg, _ := newTestLedger()

	e, err := lg.Append(context.Background(), ledger.EventApprovalGranted, nil,
		ledger.WithActor("user", "reviewer-7"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if e.ActorType != "user" || e.ActorID != "reviewer-7" {
		t.Errorf("actor = %s/%s, want user/reviewer-7", e.ActorType, e.ActorID)
	}
}
