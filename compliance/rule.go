package compliance

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Op is a rule operator. The set is closed on purpose: evaluation
// switches over it exhaustively, and anything outside the set is a
// configuration error, not a silent pass.
type Op string

const (
	OpEq      Op = "eq"
	OpNe      Op = "ne"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpIn      Op = "in"
	OpPresent Op = "present"
)

// Valid reports whether the operator is one of the known set.
func (o Op) Valid() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpPresent:
		return true
	}
	return false
}

// Rule is one declarative predicate over a payload field.
//
// Field addresses a payload key, with "." descending into nested
// objects ("amount", "payment.currency"). Value carries the operand for
// comparison operators; Values carries the candidate set for OpIn;
// OpPresent needs neither.
type Rule struct {
	Field  string `json:"field"`
	Op     Op     `json:"op"`
	Value  any    `json:"value,omitempty"`
	Values []any  `json:"values,omitempty"`
}

func (r Rule) String() string {
	switch r.Op {
	case OpIn:
		return fmt.Sprintf("%s %s %v", r.Field, r.Op, r.Values)
	case OpPresent:
		return fmt.Sprintf("%s %s", r.Field, r.Op)
	default:
		return fmt.Sprintf("%s %s %v", r.Field, r.Op, r.Value)
	}
}

// ValidateRules rejects structurally malformed rules before a checkpoint
// is created, so evaluation-time configuration errors are limited to
// payload-shape surprises.
func ValidateRules(rules []Rule) error {
	if len(rules) == 0 {
		return fmt.Errorf("compliance: rule set is empty")
	}
	for i, r := range rules {
		if r.Field == "" {
			return fmt.Errorf("compliance: rule %d has no field", i)
		}
		if !r.Op.Valid() {
			return fmt.Errorf("compliance: rule %d has unknown operator %q", i, r.Op)
		}
		switch r.Op {
		case OpIn:
			if len(r.Values) == 0 {
				return fmt.Errorf("compliance: rule %d (%s in) has no candidate values", i, r.Field)
			}
		case OpPresent:
			// No operand.
		default:
			if r.Value == nil {
				return fmt.Errorf("compliance: rule %d (%s %s) has no operand", i, r.Field, r.Op)
			}
		}
	}
	return nil
}

// lookupField resolves a dotted field path in a decoded JSON payload.
func lookupField(payload map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = payload
	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// asNumber coerces JSON scalar representations to float64 for ordering
// comparisons. Payloads decoded with UseNumber carry json.Number; rule
// operands written in Go carry native ints and floats.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// equalValues compares a payload value with a rule operand, tolerating
// the numeric-representation mismatch between decoded JSON and Go
// literals.
func equalValues(payloadVal, operand any) bool {
	if pf, ok := asNumber(payloadVal); ok {
		if of, ok := asNumber(operand); ok {
			return pf == of
		}
		return false
	}
	return payloadVal == operand
}
