package compliance

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RuleViolation is one failed rule, with the payload value that failed
// it (when the field resolved at all).
type RuleViolation struct {
	Rule   Rule   `json:"rule"`
	Actual any    `json:"actual,omitempty"`
	Reason string `json:"reason"`
}

func (v RuleViolation) String() string {
	return fmt.Sprintf("%s: %s", v.Rule, v.Reason)
}

// RuleError is a configuration problem with a rule discovered during
// evaluation. It fails the checkpoint like a violation does, but is
// surfaced separately so operators fix the rule rather than the payload.
type RuleError struct {
	Rule   Rule   `json:"rule"`
	Reason string `json:"reason"`
}

func (e RuleError) Error() string {
	return fmt.Sprintf("compliance: rule %s: %s", e.Rule, e.Reason)
}

// Outcome is the full result of evaluating a rule set against a payload.
type Outcome struct {
	Passed     bool            `json:"passed"`
	Violations []RuleViolation `json:"violations,omitempty"`
	RuleErrors []RuleError     `json:"rule_errors,omitempty"`
}

// Evaluate checks every rule against the payload and reports all
// failures, not just the first. The outcome passes only when every rule
// evaluates cleanly and holds: missing fields, type mismatches, and
// malformed rules all fail closed.
func Evaluate(rules []Rule, payload map[string]any) Outcome {
	out := Outcome{Passed: true}

	for _, r := range rules {
		if !r.Op.Valid() {
			out.Passed = false
			out.RuleErrors = append(out.RuleErrors, RuleError{Rule: r, Reason: fmt.Sprintf("unknown operator %q", r.Op)})
			continue
		}

		val, found := lookupField(payload, r.Field)

		if r.Op == OpPresent {
			if !found {
				out.Passed = false
				out.Violations = append(out.Violations, RuleViolation{Rule: r, Reason: "field is absent"})
			}
			continue
		}

		if !found {
			out.Passed = false
			out.Violations = append(out.Violations, RuleViolation{Rule: r, Reason: "field is absent"})
			continue
		}

		holds, ruleErr := applyOp(r, val)
		if ruleErr != nil {
			out.Passed = false
			out.RuleErrors = append(out.RuleErrors, *ruleErr)
			continue
		}
		if !holds {
			out.Passed = false
			out.Violations = append(out.Violations, RuleViolation{
				Rule:   r,
				Actual: val,
				Reason: fmt.Sprintf("value %v does not satisfy %s %v", val, r.Op, operand(r)),
			})
		}
	}

	return out
}

// EvaluateJSON decodes a raw payload (ledger event payloads arrive as
// canonical JSON) and evaluates the rule set against it. A payload that
// is not a JSON object fails every rule.
func EvaluateJSON(rules []Rule, raw json.RawMessage) Outcome {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		payload = nil
	}
	return Evaluate(rules, payload)
}

func operand(r Rule) any {
	if r.Op == OpIn {
		return r.Values
	}
	return r.Value
}

func applyOp(r Rule, val any) (bool, *RuleError) {
	switch r.Op {
	case OpEq:
		return equalValues(val, r.Value), nil
	case OpNe:
		return !equalValues(val, r.Value), nil
	case OpGt, OpGte, OpLt, OpLte:
		pf, ok := asNumber(val)
		if !ok {
			return false, nil // non-numeric payload value fails the ordering predicate
		}
		of, ok := asNumber(r.Value)
		if !ok {
			return false, &RuleError{Rule: r, Reason: fmt.Sprintf("operand %v is not numeric", r.Value)}
		}
		switch r.Op {
		case OpGt:
			return pf > of, nil
		case OpGte:
			return pf >= of, nil
		case OpLt:
			return pf < of, nil
		default:
			return pf <= of, nil
		}
	case OpIn:
		for _, candidate := range r.Values {
			if equalValues(val, candidate) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, &RuleError{Rule: r, Reason: fmt.Sprintf("unknown operator %q", r.Op)}
	}
}
