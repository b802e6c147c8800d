package ledger

import (
	"context"
	"fmt"
)

// ViolationKind classifies a chain-integrity failure.
type ViolationKind string

const (
	// ViolationHashMismatch means an entry's stored hash does not match
	// the hash recomputed from its stored fields.
	ViolationHashMismatch ViolationKind = "hash_mismatch"
	// ViolationChainBreak means an entry's previous_hash does not match
	// its predecessor's stored hash.
	ViolationChainBreak ViolationKind = "chain_break"
	// ViolationSequenceGap means the range is missing a sequence number.
	ViolationSequenceGap ViolationKind = "sequence_gap"
)

// Violation describes one integrity failure found during verification.
// Violations are surfaced for operator investigation and never
// auto-corrected.
type Violation struct {
	Sequence int64         `json:"sequence"`
	Kind     ViolationKind `json:"kind"`
	Expected string        `json:"expected,omitempty"`
	Actual   string        `json:"actual,omitempty"`
	Detail   string        `json:"detail,omitempty"`
}

func (v Violation) String() string {
	return fmt.Sprintf("seq %d: %s (%s)", v.Sequence, v.Kind, v.Detail)
}

// Verifier walks ranges of ledger entries and validates link integrity.
// All operations are read-only and safe to run concurrently with appends.
type Verifier struct {
	store Store
}

// NewVerifier creates a Verifier over the given store.
func NewVerifier(store Store) *Verifier {
	return &Verifier{store: store}
}

// VerifyRange recomputes each entry's expected hash from its stored
// fields and checks it against (a) the entry's stored hash and (b) the
// following entry's previous_hash. It reports every index where either
// check fails rather than stopping at the first break, so operators get
// the full corruption picture in one pass.
//
// The returned error covers store access failures only; integrity
// failures are reported through the violations slice.
func (v *Verifier) VerifyRange(ctx context.Context, from, to int64) (bool, []Violation, error) {
	if from < 1 || to < from {
		return false, nil, fmt.Errorf("ledger: invalid verify range [%d, %d]", from, to)
	}

	events, err := v.store.EventChain(ctx, from, to)
	if err != nil {
		return false, nil, err
	}
	if len(events) == 0 {
		return true, nil, nil
	}

	var violations []Violation

	// Establish the expected predecessor hash for the first entry in
	// the range: the genesis constant at sequence 1, otherwise the
	// stored hash of the entry just before the range.
	expectedPrev := GenesisHash
	if events[0].Sequence > 1 {
		before, chainErr := v.store.EventChain(ctx, events[0].Sequence-1, events[0].Sequence-1)
		if chainErr != nil {
			return false, nil, chainErr
		}
		if len(before) == 1 {
			expectedPrev = before[0].Hash
		} else {
			expectedPrev = events[0].PrevHash // predecessor missing; only intra-range links checkable
		}
	}

	wantSeq := events[0].Sequence
	for _, e := range events {
		if e.Sequence != wantSeq {
			violations = append(violations, Violation{
				Sequence: e.Sequence,
				Kind:     ViolationSequenceGap,
				Expected: fmt.Sprintf("%d", wantSeq),
				Actual:   fmt.Sprintf("%d", e.Sequence),
				Detail:   "missing sequence number in range",
			})
			wantSeq = e.Sequence
			// After a gap the previous-hash link cannot be checked
			// against the expected predecessor; fall through with the
			// entry's own claim so later links are still validated.
			expectedPrev = e.PrevHash
		}

		if e.PrevHash != expectedPrev {
			violations = append(violations, Violation{
				Sequence: e.Sequence,
				Kind:     ViolationChainBreak,
				Expected: expectedPrev,
				Actual:   e.PrevHash,
				Detail:   "previous_hash does not match predecessor",
			})
		}

		recomputed, hashErr := ComputeHash(e)
		if hashErr != nil {
			return false, nil, hashErr
		}
		if recomputed != e.Hash {
			violations = append(violations, Violation{
				Sequence: e.Sequence,
				Kind:     ViolationHashMismatch,
				Expected: recomputed,
				Actual:   e.Hash,
				Detail:   "stored hash does not match recomputed hash",
			})
		}

		expectedPrev = e.Hash
		wantSeq++
	}

	return len(violations) == 0, violations, nil
}

// VerifyEvent checks a single event's hash integrity.
func (v *Verifier) VerifyEvent(e *Event) (bool, error) {
	recomputed, err := ComputeHash(e)
	if err != nil {
		return false, err
	}
	return recomputed == e.Hash, nil
}
