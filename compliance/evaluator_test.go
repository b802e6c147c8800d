package compliance_test

import (
	"encoding/json"
	"testing"

	"github.com/xraph/accord/compliance"
)

func TestEvaluate_Operators(t *testing.T) {
	payload := map[string]any{
		"amount":   json.Number("1500"),
		"currency": "USD",
		"region":   "eu-west",
		"payment": map[string]any{
			"approved": true,
			"tier":     json.Number("2"),
		},
	}

	tests := []struct {
		name string
		rule compliance.Rule
		want bool
	}{
		{"eq string match", compliance.Rule{Field: "currency", Op: compliance.OpEq, Value: "USD"}, true},
		{"eq string mismatch", compliance.Rule{Field: "currency", Op: compliance.OpEq, Value: "EUR"}, false},
		{"eq numeric cross-type", compliance.Rule{Field: "amount", Op: compliance.OpEq, Value: 1500}, true},
		{"ne", compliance.Rule{Field: "currency", Op: compliance.OpNe, Value: "EUR"}, true},
		{"gt holds", compliance.Rule{Field: "amount", Op: compliance.OpGt, Value: 1000}, true},
		{"gt fails at boundary", compliance.Rule{Field: "amount", Op: compliance.OpGt, Value: 1500}, false},
		{"gte boundary", compliance.Rule{Field: "amount", Op: compliance.OpGte, Value: 1500}, true},
		{"lt fails", compliance.Rule{Field: "amount", Op: compliance.OpLt, Value: 1000}, false},
		{"lte boundary", compliance.Rule{Field: "amount", Op: compliance.OpLte, Value: 1500}, true},
		{"in member", compliance.Rule{Field: "region", Op: compliance.OpIn, Values: []any{"us-east", "eu-west"}}, true},
		{"in non-member", compliance.Rule{Field: "region", Op: compliance.OpIn, Values: []any{"us-east"}}, false},
		{"in numeric member", compliance.Rule{Field: "payment.tier", Op: compliance.OpIn, Values: []any{1, 2, 3}}, true},
		{"present", compliance.Rule{Field: "currency", Op: compliance.OpPresent}, true},
		{"nested field", compliance.Rule{Field: "payment.approved", Op: compliance.OpEq, Value: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := compliance.Evaluate([]compliance.Rule{tt.rule}, payload)
			if out.Passed != tt.want {
				t.Errorf("Passed = %v, want %v (violations: %v, errors: %v)", out.Passed, tt.want, out.Violations, out.RuleErrors)
			}
		})
	}
}

func TestEvaluate_FailClosed(t *testing.T) {
	payload := map[string]any{"amount": json.Number("100"), "label": "x"}

	tests := []struct {
		name      string
		rule      compliance.Rule
		wantError bool // reported via RuleErrors rather than Violations
	}{
		{"missing field", compliance.Rule{Field: "nope", Op: compliance.OpEq, Value: 1}, false},
		{"missing nested field", compliance.Rule{Field: "payment.currency", Op: compliance.OpPresent}, false},
		{"unknown operator", compliance.Rule{Field: "amount", Op: "matches"}, true},
		{"non-numeric payload for ordering", compliance.Rule{Field: "label", Op: compliance.OpGt, Value: 5}, false},
		{"non-numeric operand for ordering", compliance.Rule{Field: "amount", Op: compliance.OpGt, Value: "high"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := compliance.Evaluate([]compliance.Rule{tt.rule}, payload)
			if out.Passed {
				t.Fatal("expected fail-closed evaluation to fail")
			}
			if tt.wantError && len(out.RuleErrors) == 0 {
				t.Error("expected a rule error")
			}
			if !tt.wantError && len(out.Violations) == 0 {
				t.Error("expected a violation")
			}
		})
	}
}

func TestEvaluate_CollectsAllFailures(t *testing.T) {
	payload := map[string]any{"amount": json.Number("10")}

	out := compliance.Evaluate([]compliance.Rule{
		{Field: "amount", Op: compliance.OpGt, Value: 100},
		{Field: "currency", Op: compliance.OpPresent},
		{Field: "amount", Op: "bogus"},
		{Field: "amount", Op: compliance.OpLte, Value: 100},
	}, payload)

	if out.Passed {
		t.Fatal("expected failure")
	}
	if len(out.Violations) != 2 {
		t.Errorf("len(violations) = %d, want 2", len(out.Violations))
	}
	if len(out.RuleErrors) != 1 {
		t.Errorf("len(rule_errors) = %d, want 1", len(out.RuleErrors))
	}
}

func TestEvaluate_AllRulesHold(t *testing.T) {
	payload := map[string]any{"amount": json.Number("50"), "currency": "USD"}

	out := compliance.Evaluate([]compliance.Rule{
		{Field: "amount", Op: compliance.OpLte, Value: 100},
		{Field: "currency", Op: compliance.OpIn, Values: []any{"USD", "EUR"}},
	}, payload)

	if !out.Passed {
		t.Errorf("expected pass, got violations %v errors %v", out.Violations, out.RuleErrors)
	}
}

func TestEvaluateJSON_DecodesNumbersLiterally(t *testing.T) {
	raw := json.RawMessage(`{"amount":1500.00,"currency":"USD"}`)

	out := compliance.EvaluateJSON([]compliance.Rule{
		{Field: "amount", Op: compliance.OpGte, Value: 1500},
		{Field: "currency", Op: compliance.OpEq, Value: "USD"},
	}, raw)

	if !out.Passed {
		t.Errorf("expected pass, got %v / %v", out.Violations, out.RuleErrors)
	}
}

func TestEvaluateJSON_NonObjectPayloadFails(t *testing.T) {
	out := compliance.EvaluateJSON([]compliance.Rule{
		{Field: "amount", Op: compliance.OpPresent},
	}, json.RawMessage(`[1,2,3]`))

	if out.Passed {
		t.Error("expected non-object payload to fail closed")
	}
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name    string
		rules   []compliance.Rule
		wantErr bool
	}{
		{"valid set", []compliance.Rule{{Field: "a", Op: compliance.OpEq, Value: 1}}, false},
		{"empty set", nil, true},
		{"missing field", []compliance.Rule{{Op: compliance.OpEq, Value: 1}}, true},
		{"unknown op", []compliance.Rule{{Field: "a", Op: "regex"}}, true},
		{"in without values", []compliance.Rule{{Field: "a", Op: compliance.OpIn}}, true},
		{"comparison without operand", []compliance.Rule{{Field: "a", Op: compliance.OpGt}}, true},
		{"present needs no operand", []compliance.Rule{{Field: "a", Op: compliance.OpPresent}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := compliance.ValidateRules(tt.rules)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRules() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
