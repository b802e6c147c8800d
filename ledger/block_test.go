package ledger_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/xraph/accord/ledger"
)

func TestMerkleRoot_Shapes(t *testing.T) {
	h := func(s string) string { return ledger.HashBytes([]byte(s)) }

	single := ledger.MerkleRoot([]string{h("a")})
	if single != h("a") {
		t.Errorf("single-leaf root = %s, want the leaf itself", single)
	}

	pair := ledger.MerkleRoot([]string{h("a"), h("b")})
	if pair != ledger.HashBytes([]byte(h("a")+h("b"))) {
		t.Error("two-leaf root does not hash the concatenated pair")
	}

	// Odd leaf counts pair the trailing node with itself.
	odd := ledger.MerkleRoot([]string{h("a"), h("b"), h("c")})
	right := ledger.HashBytes([]byte(h("c") + h("c")))
	if odd != ledger.HashBytes([]byte(pair+right)) {
		t.Error("three-leaf root does not self-pair the odd node")
	}

	if ledger.MerkleRoot(nil) != ledger.HashBytes(nil) {
		t.Error("empty root should be the hash of no bytes")
	}
}

func TestMerkleRoot_OrderSensitive(t *testing.T) {
	h := func(s string) string { return ledger.HashBytes([]byte(s)) }
	if ledger.MerkleRoot([]string{h("a"), h("b")}) == ledger.MerkleRoot([]string{h("b"), h("a")}) {
		t.Error("root should depend on leaf order")
	}
}

func TestSealBlock_FirstBlock(t *testing.T) {
	lg, _ := buildChain(t, 4)
	ctx := context.Background()

	b, err := lg.SealBlock(ctx, 1, 4)
	if err != nil {
		t.Fatalf("SealBlock: %v", err)
	}
	if b.Number != 1 {
		t.Errorf("block number = %d, want 1", b.Number)
	}
	if b.PrevBlockHash != ledger.GenesisHash {
		t.Errorf("first block prev hash = %q, want genesis", b.PrevBlockHash)
	}
	if b.StartSeq != 1 || b.EndSeq != 4 || b.EventCount != 4 {
		t.Errorf("block range = [%d, %d] count %d, want [1, 4] count 4", b.StartSeq, b.EndSeq, b.EventCount)
	}
}

func TestSealBlock_ChainsToPrevious(t *testing.T) {
	lg, _ := buildChain(t, 6)
	ctx := context.Background()

	first, err := lg.SealBlock(ctx, 1, 3)
	if err != nil {
		t.Fatalf("SealBlock: %v", err)
	}
	second, err := lg.SealBlock(ctx, 4, 6)
	if err != nil {
		t.Fatalf("SealBlock: %v", err)
	}

	if second.Number != first.Number+1 {
		t.Errorf("second block number = %d, want %d", second.Number, first.Number+1)
	}
	if second.PrevBlockHash != first.Hash {
		t.Errorf("second block prev hash = %q, want %q", second.PrevBlockHash, first.Hash)
	}
}

func TestSealBlock_EmptyRangeFails(t *testing.T) {
	lg, _ := buildChain(t, 2)
	if _, err := lg.SealBlock(context.Background(), 10, 20); err == nil {
		t.Error("expected error sealing an empty range")
	}
}

func TestVerifyBlock_CleanAndTampered(t *testing.T) {
	lg, s := buildChain(t, 5)
	ctx := context.Background()

	if _, err := lg.SealBlock(ctx, 1, 5); err != nil {
		t.Fatalf("SealBlock: %v", err)
	}

	v := ledger.NewVerifier(s)
	valid, violations, err := v.VerifyBlock(ctx, 1)
	if err != nil {
		t.Fatalf("VerifyBlock: %v", err)
	}
	if !valid {
		t.Fatalf("clean block failed verification: %v", violations)
	}

	// Corrupt an event hash under the sealed block; the Merkle root no
	// longer matches.
	s.events[3].Payload = json.RawMessage(`{"step":999}`)
	s.events[3].Hash, err = ledger.ComputeHash(s.events[3])
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}

	valid, violations, err = v.VerifyBlock(ctx, 1)
	if err != nil {
		t.Fatalf("VerifyBlock: %v", err)
	}
	if valid {
		t.Error("expected tampered block to fail verification")
	}
	if len(violations) == 0 {
		t.Error("expected at least one violation")
	}
}

func TestNewSealer_ValidatesSchedule(t *testing.T) {
	lg, _ := buildChain(t, 1)

	if _, err := ledger.NewSealer(lg, "not a cron expr"); err == nil {
		t.Error("expected error for malformed schedule")
	}
	if _, err := ledger.NewSealer(lg, "*/5 * * * *"); err != nil {
		t.Errorf("NewSealer rejected valid schedule: %v", err)
	}
	if _, err := ledger.NewSealer(lg, "@hourly"); err != nil {
		t.Errorf("NewSealer rejected descriptor schedule: %v", err)
	}
}

func TestSealer_StartStopIdempotent(t *testing.T) {
	lg, _ := buildChain(t, 1)

	s, err := ledger.NewSealer(lg, "@every 1h", ledger.WithTickInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Errorf("second Start: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}
