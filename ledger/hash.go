package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// GenesisHash is the well-known previous_hash of the first ledger entry:
// an all-zero SHA-256 digest in hex. An empty ledger is not a failure
// condition; the first append simply links to this constant.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Canonicalize renders v as canonical JSON: object keys sorted
// lexicographically at every depth, no insignificant whitespace, numeric
// literals preserved verbatim. Two semantically equal payloads serialize
// to identical bytes regardless of original key order.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("ledger: marshal payload: %w", err)
	}
	return CanonicalizeJSON(raw)
}

// CanonicalizeJSON re-encodes raw JSON in canonical form. Numbers are
// carried as json.Number so their literal representation survives the
// round trip.
func CanonicalizeJSON(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return []byte("null"), nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("ledger: decode payload: %w", err)
	}

	var sb strings.Builder
	if err := writeCanonical(&sb, v); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

func writeCanonical(sb *strings.Builder, v any) error {
	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		if val {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case json.Number:
		sb.WriteString(val.String())
	case string:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("ledger: encode string: %w", err)
		}
		sb.Write(encoded)
	case []any:
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := writeCanonical(sb, item); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			encodedKey, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("ledger: encode key: %w", err)
			}
			sb.Write(encodedKey)
			sb.WriteByte(':')
			if err := writeCanonical(sb, val[k]); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
	default:
		return fmt.Errorf("ledger: unsupported JSON value of type %T", v)
	}
	return nil
}

// HashBytes returns the hex-encoded SHA-256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// hashEnvelope is the exact structure whose canonical JSON is hashed for
// every event. Field order here is irrelevant; Canonicalize sorts keys.
type hashEnvelope struct {
	Sequence   int64           `json:"sequence"`
	Type       EventType       `json:"type"`
	WorkflowID string          `json:"workflow_id"`
	TaskID     string          `json:"task_id"`
	ActorType  string          `json:"actor_type"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
	PrevHash   string          `json:"previous_hash"`
	Timestamp  string          `json:"timestamp"`
}

// ComputeHash recomputes an event's hash from its stored fields. The
// event's Payload must already be in canonical form (Append guarantees
// this); it is re-canonicalized here anyway so verification does not
// depend on storage preserving byte order.
func ComputeHash(e *Event) (string, error) {
	canonicalPayload, err := CanonicalizeJSON(e.Payload)
	if err != nil {
		return "", err
	}

	envelope := hashEnvelope{
		Sequence:   e.Sequence,
		Type:       e.Type,
		WorkflowID: e.WorkflowID.String(),
		TaskID:     e.TaskID.String(),
		ActorType:  e.ActorType,
		ActorID:    e.ActorID,
		Payload:    canonicalPayload,
		PrevHash:   e.PrevHash,
		Timestamp:  e.Timestamp.UTC().Format(time.RFC3339Nano),
	}

	canonical, err := Canonicalize(envelope)
	if err != nil {
		return "", err
	}
	return HashBytes(canonical), nil
}
