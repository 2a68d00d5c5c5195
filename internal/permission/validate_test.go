package permission

import "testing"

func TestValidateConditions(t *testing.T) {
	tests := []struct {
		name     string
		conds    []Condition
		wantRule string
	}{
		{"empty list", nil, ""},
		{"plain equality", []Condition{{Operator: OpEq, LHS: "environment", RHS: "dev"}}, ""},
		{"path with prefix", []Condition{{Operator: OpEq, LHS: "secretPath", RHS: "/app"}}, ""},
		{"path with surrounding spaces", []Condition{{Operator: OpEq, LHS: "secretPath", RHS: "  /app"}}, ""},
		{"path without prefix", []Condition{{Operator: OpEq, LHS: "secretPath", RHS: "app"}}, "path_prefix"},
		{"path not equal without prefix", []Condition{{Operator: OpNe, LHS: "secretPath", RHS: "app"}}, "path_prefix"},
		{"glob skips prefix check", []Condition{{Operator: OpGlob, LHS: "secretPath", RHS: "**/db"}}, ""},
		{"in with every element prefixed", []Condition{{Operator: OpIn, LHS: "secretPath", RHS: "/a,/b"}}, ""},
		{"in with spaced elements", []Condition{{Operator: OpIn, LHS: "secretPath", RHS: "/a, /b"}}, ""},
		{"in with first element unprefixed", []Condition{{Operator: OpIn, LHS: "secretPath", RHS: "a,/b"}}, "path_prefix"},
		{"in with last element unprefixed", []Condition{{Operator: OpIn, LHS: "secretPath", RHS: "/a,b"}}, "path_prefix"},
		{"non-path field ignores prefix", []Condition{{Operator: OpIn, LHS: "environment", RHS: "dev,prod"}}, ""},
		{"empty value", []Condition{{Operator: OpEq, LHS: "environment", RHS: ""}}, "required"},
		{"unknown operator", []Condition{{Operator: "$gt", LHS: "environment", RHS: "dev"}}, "unknown_operator"},
		{
			"duplicate field and operator",
			[]Condition{
				{Operator: OpEq, LHS: "environment", RHS: "dev"},
				{Operator: OpEq, LHS: "environment", RHS: "prod"},
			},
			"duplicate_operator",
		},
		{
			"same field with different operators",
			[]Condition{
				{Operator: OpEq, LHS: "environment", RHS: "dev"},
				{Operator: OpNe, LHS: "environment", RHS: "prod"},
			},
			"",
		},
		{
			"same operator on different fields",
			[]Condition{
				{Operator: OpEq, LHS: "environment", RHS: "dev"},
				{Operator: OpEq, LHS: "secretPath", RHS: "/"},
			},
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateConditions(tt.conds)
			if tt.wantRule == "" {
				if len(errs) != 0 {
					t.Fatalf("expected no errors, got %v", errs)
				}
				return
			}
			if len(errs) == 0 {
				t.Fatalf("expected %s error, got none", tt.wantRule)
			}
			found := false
			for _, e := range errs {
				if e.Rule == tt.wantRule {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected rule %s, got %v", tt.wantRule, errs)
			}
		})
	}
}

func TestValidateConditions_Messages(t *testing.T) {
	errs := ValidateConditions([]Condition{
		{Operator: OpEq, LHS: "environment", RHS: "dev"},
		{Operator: OpEq, LHS: "environment", RHS: "prod"},
	})
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
	}
	if errs[0].Message != MsgDuplicateOperator {
		t.Fatalf("unexpected message: %s", errs[0].Message)
	}

	errs = ValidateConditions([]Condition{{Operator: OpIn, LHS: "secretPath", RHS: "a,/b"}})
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
	}
	if errs[0].Message != MsgInvalidSecretPath {
		t.Fatalf("unexpected message: %s", errs[0].Message)
	}
	if errs[0].Field != "conditions.0.rhs" {
		t.Fatalf("expected field conditions.0.rhs, got %s", errs[0].Field)
	}
}
