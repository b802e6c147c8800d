package ledger_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/xraph/accord/id"
	"github.com/xraph/accord/ledger"
)

func TestCanonicalizeJSON_KeyOrderIndependent(t *testing.T) {
	a, err := ledger.CanonicalizeJSON([]byte(`{"b": 2, "a": 1}`))
	if err != nil {
		t.Fatalf("CanonicalizeJSON: %v", err)
	}
	b, err := ledger.CanonicalizeJSON([]byte(`{"a": 1, "b": 2}`))
	if err != nil {
		t.Fatalf("CanonicalizeJSON: %v", err)
	}

	if string(a) != string(b) {
		t.Errorf("canonical forms differ: %s vs %s", a, b)
	}
	if string(a) != `{"a":1,"b":2}` {
		t.Errorf("canonical form = %s, want {\"a\":1,\"b\":2}", a)
	}
}

func TestCanonicalizeJSON_NestedAndTypes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"nested objects", `{"z": {"y": 2, "x": 1}, "a": [3, {"c": true, "b": null}]}`, `{"a":[3,{"b":null,"c":true}],"z":{"x":1,"y":2}}`},
		{"number literals preserved", `{"f": 1.50, "i": 10, "e": 1e3}`, `{"e":1e3,"f":1.50,"i":10}`},
		{"string escapes", `{"s": "a\"b"}`, `{"s":"a\"b"}`},
		{"empty object", `{}`, `{}`},
		{"bare null", `null`, `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ledger.CanonicalizeJSON([]byte(tt.in))
			if err != nil {
				t.Fatalf("CanonicalizeJSON: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("canonical = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCanonicalizeJSON_EmptyInputIsNull(t *testing.T) {
	got, err := ledger.CanonicalizeJSON(nil)
	if err != nil {
		t.Fatalf("CanonicalizeJSON: %v", err)
	}
	if string(got) != "null" {
		t.Errorf("canonical = %s, want null", got)
	}
}

func TestCanonicalizeJSON_RejectsMalformed(t *testing.T) {
	if _, err := ledger.CanonicalizeJSON([]byte(`{"a":`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestComputeHash_PayloadKeyOrderIndependent(t *testing.T) {
	base := ledger.Event{
		ID:         id.NewEventID(),
		Sequence:   7,
		Type:       ledger.EventTaskCompleted,
		WorkflowID: id.NewExecutionID(),
		ActorType:  "system",
		PrevHash:   ledger.GenesisHash,
		Timestamp:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	e1 := base
	e1.Payload = json.RawMessage(`{"b":2,"a":1}`)
	e2 := base
	e2.Payload = json.RawMessage(`{"a":1,"b":2}`)

	h1, err := ledger.ComputeHash(&e1)
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	h2, err := ledger.ComputeHash(&e2)
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}

	if h1 != h2 {
		t.Errorf("hashes differ for equal payloads: %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(h1))
	}
}

func TestComputeHash_SensitiveToEveryField(t *testing.T) {
	base := func() *ledger.Event {
		return &ledger.Event{
			Sequence:   3,
			Type:       ledger.EventTaskStarted,
			WorkflowID: id.ExecutionID{},
			ActorType:  "system",
			Payload:    json.RawMessage(`{"n":1}`),
			PrevHash:   ledger.GenesisHash,
			Timestamp:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		}
	}

	ref, err := ledger.ComputeHash(base())
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}

	mutations := map[string]func(*ledger.Event){
		"sequence":   func(e *ledger.Event) { e.Sequence = 4 },
		"type":       func(e *ledger.Event) { e.Type = ledger.EventTaskFailed },
		"actor":      func(e *ledger.Event) { e.ActorID = "intruder" },
		"payload":    func(e *ledger.Event) { e.Payload = json.RawMessage(`{"n":2}`) },
		"prev_hash":  func(e *ledger.Event) { e.PrevHash = ledger.HashBytes([]byte("x")) },
		"timestamp":  func(e *ledger.Event) { e.Timestamp = e.Timestamp.Add(time.Microsecond) },
		"workflow":   func(e *ledger.Event) { e.WorkflowID = id.NewExecutionID() },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			e := base()
			mutate(e)
			h, err := ledger.ComputeHash(e)
			if err != nil {
				t.Fatalf("ComputeHash: %v", err)
			}
			if h == ref {
				t.Errorf("hash unchanged after mutating %s", name)
			}
		})
	}
}

func TestGenesisHash_Shape(t *testing.T) {
	if len(ledger.GenesisHash) != 64 {
		t.Fatalf("genesis hash length = %d, want 64", len(ledger.GenesisHash))
	}
	for _, c := range ledger.GenesisHash {
		if c != '0' {
			t.Fatalf("genesis hash contains non-zero character %q", c)
		}
	}
}

func TestHashBytes_Deterministic(t *testing.T) {
	if ledger.HashBytes([]byte("abc")) != ledger.HashBytes([]byte("abc")) {
		t.Error("HashBytes not deterministic")
	}
	if ledger.HashBytes([]byte("abc")) == ledger.HashBytes([]byte("abd")) {
		t.Error("HashBytes collided on different input")
	}
}
