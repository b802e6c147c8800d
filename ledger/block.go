package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/accord"
	"github.com/xraph/accord/id"
)

// Block is a sealed verification block over a contiguous range of events.
// Blocks carry a Merkle root of the event hashes in range and chain to the
// previous block, giving operators cheap batch verification on top of the
// per-event chain. Like events, blocks are never mutated or deleted.
type Block struct {
	accord.Entity

	ID            id.BlockID `json:"id"`
	Number        int64      `json:"number"`
	StartSeq      int64      `json:"start_seq"`
	EndSeq        int64      `json:"end_seq"`
	EventCount    int        `json:"event_count"`
	MerkleRoot    string     `json:"merkle_root"`
	PrevBlockHash string     `json:"previous_block_hash"`
	Hash          string     `json:"hash"`
}

// blockEnvelope is hashed (canonical JSON) to produce Block.Hash.
type blockEnvelope struct {
	Number        int64  `json:"number"`
	StartSeq      int64  `json:"start_seq"`
	EndSeq        int64  `json:"end_seq"`
	MerkleRoot    string `json:"merkle_root"`
	PrevBlockHash string `json:"previous_block_hash"`
}

func computeBlockHash(b *Block) (string, error) {
	canonical, err := Canonicalize(blockEnvelope{
		Number:        b.Number,
		StartSeq:      b.StartSeq,
		EndSeq:        b.EndSeq,
		MerkleRoot:    b.MerkleRoot,
		PrevBlockHash: b.PrevBlockHash,
	})
	if err != nil {
		return "", err
	}
	return HashBytes(canonical), nil
}

// MerkleRoot folds a list of event hashes into a single root. An odd node
// at any level is paired with itself, the usual convention.
func MerkleRoot(hashes []string) string {
	if len(hashes) == 0 {
		return HashBytes(nil)
	}

	level := make([]string, len(hashes))
	copy(level, hashes)

	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, HashBytes([]byte(left+right)))
		}
		level = next
	}

	return level[0]
}

// SealBlock builds and persists a verification block over the events with
// from <= sequence <= to. Sealing is serialized with appends so block
// numbering stays linear.
func (l *Ledger) SealBlock(ctx context.Context, from, to int64) (*Block, error) {
	events, err := l.store.EventChain(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("ledger: no events in range [%d, %d]", from, to)
	}

	hashes := make([]string, len(events))
	for i, e := range events {
		hashes[i] = e.Hash
	}

	b, err := l.sealLocked(ctx, events, hashes)
	if err != nil {
		return nil, err
	}

	l.logger.Info("ledger block sealed",
		slog.Int64("block", b.Number),
		slog.Int64("start_seq", b.StartSeq),
		slog.Int64("end_seq", b.EndSeq),
		slog.Int("event_count", b.EventCount),
	)
	if l.emitter != nil {
		l.emitter.EmitBlockSealed(ctx, b)
	}

	return b, nil
}

func (l *Ledger) sealLocked(ctx context.Context, events []*Event, hashes []string) (*Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prevHash := GenesisHash
	number := int64(1)
	last, err := l.store.LastBlock(ctx)
	switch {
	case err == nil:
		prevHash = last.Hash
		number = last.Number + 1
	case errors.Is(err, accord.ErrBlockNotFound):
		// First block.
	default:
		return nil, err
	}

	b := &Block{
		Entity:        accord.NewEntity(),
		ID:            id.NewBlockID(),
		Number:        number,
		StartSeq:      events[0].Sequence,
		EndSeq:        events[len(events)-1].Sequence,
		EventCount:    len(events),
		MerkleRoot:    MerkleRoot(hashes),
		PrevBlockHash: prevHash,
	}

	hash, err := computeBlockHash(b)
	if err != nil {
		return nil, err
	}
	b.Hash = hash

	if err := l.store.AppendBlock(ctx, b); err != nil {
		return nil, err
	}

	return b, nil
}

// VerifyBlock recomputes a block's Merkle root and hash from the stored
// events and block fields.
func (v *Verifier) VerifyBlock(ctx context.Context, number int64) (bool, []Violation, error) {
	b, err := v.store.GetBlock(ctx, number)
	if err != nil {
		return false, nil, err
	}

	events, err := v.store.EventChain(ctx, b.StartSeq, b.EndSeq)
	if err != nil {
		return false, nil, err
	}

	hashes := make([]string, len(events))
	for i, e := range events {
		hashes[i] = e.Hash
	}

	var violations []Violation

	if root := MerkleRoot(hashes); root != b.MerkleRoot {
		violations = append(violations, Violation{
			Sequence: b.StartSeq,
			Kind:     ViolationHashMismatch,
			Expected: root,
			Actual:   b.MerkleRoot,
			Detail:   fmt.Sprintf("merkle root mismatch for block %d", number),
		})
	}

	recomputed, err := computeBlockHash(b)
	if err != nil {
		return false, nil, err
	}
	if recomputed != b.Hash {
		violations = append(violations, Violation{
			Sequence: b.StartSeq,
			Kind:     ViolationHashMismatch,
			Expected: recomputed,
			Actual:   b.Hash,
			Detail:   fmt.Sprintf("block hash mismatch for block %d", number),
		})
	}

	return len(violations) == 0, violations, nil
}
