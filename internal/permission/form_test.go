package permission

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestForm_UnmarshalJSON(t *testing.T) {
	raw := `{
		"secrets": [{"readValue": true, "edit": false, "inverted": true,
			"conditions": [{"operator": "$eq", "lhs": "environment", "rhs": "dev"}]}],
		"member": [{"read": true, "create": null}]
	}`
	var form Form
	if err := json.Unmarshal([]byte(raw), &form); err != nil {
		t.Fatalf("unmarshal form: %v", err)
	}

	secrets := form[SubjectSecrets]
	if len(secrets) != 1 {
		t.Fatalf("expected 1 secret entry, got %d", len(secrets))
	}
	if !secrets[0].Inverted {
		t.Fatal("expected inverted entry")
	}
	if !secrets[0].Flags[SecretActionReadValue] {
		t.Fatal("expected readValue flag")
	}
	if len(secrets[0].Conditions) != 1 || secrets[0].Conditions[0].RHS != "dev" {
		t.Fatalf("unexpected conditions: %+v", secrets[0].Conditions)
	}

	member := form[SubjectMember][0]
	if _, ok := member.Flags[ActionCreate]; ok {
		t.Fatal("null flags must be treated as absent")
	}
	if member.Conditions != nil {
		t.Fatal("member entries carry no conditions")
	}
}

func TestForm_UnmarshalJSON_RejectsNonBooleanFlag(t *testing.T) {
	var form Form
	err := json.Unmarshal([]byte(`{"member": [{"read": "yes"}]}`), &form)
	if err == nil {
		t.Fatal("expected error for non-boolean flag")
	}
	if !strings.Contains(err.Error(), "permissions.member.0") {
		t.Fatalf("expected error to locate the entry, got: %v", err)
	}
}

func TestForm_UnmarshalJSON_EmptyConditionsOnMember(t *testing.T) {
	var form Form
	if err := json.Unmarshal([]byte(`{"member":[{"read":true,"conditions":[]}]}`), &form); err != nil {
		t.Fatalf("unmarshal form: %v", err)
	}
	if errs := form.Validate(); len(errs) != 0 {
		t.Fatalf("expected valid form, got %v", errs)
	}
	rules := FormToRules(form)
	want := []Rule{{Subject: SubjectMember, Action: []string{ActionRead}}}
	if diff := cmp.Diff(want, rules, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("rules mismatch (-want +got):\n%s", diff)
	}
}

func TestForm_MarshalJSON(t *testing.T) {
	form := Form{
		SubjectSecrets: {{Flags: map[string]bool{ActionRead: true}}},
		SubjectMember:  {{Flags: map[string]bool{ActionRead: true}}},
	}
	b, err := json.Marshal(form)
	if err != nil {
		t.Fatalf("marshal form: %v", err)
	}

	var out map[string][]map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("decode marshalled form: %v", err)
	}
	secret := out["secrets"][0]
	if conds, ok := secret["conditions"].([]any); !ok || len(conds) != 0 {
		t.Fatalf("expected empty conditions list on secrets, got %v", secret["conditions"])
	}
	if inv, ok := secret["inverted"].(bool); !ok || inv {
		t.Fatalf("expected inverted=false on secrets, got %v", secret["inverted"])
	}
	member := out["member"][0]
	if _, ok := member["conditions"]; ok {
		t.Fatal("member entries must not carry conditions")
	}
	if _, ok := member["inverted"]; ok {
		t.Fatal("member entries must not carry inverted")
	}
}

func TestForm_Validate(t *testing.T) {
	tests := []struct {
		name     string
		form     Form
		wantRule string
	}{
		{
			name: "valid form",
			form: Form{
				SubjectSecrets: {{
					Flags:      map[string]bool{SecretActionDescribe: true},
					Conditions: []Condition{{Operator: OpIn, LHS: "secretPath", RHS: "/a,/b"}},
				}},
				SubjectMember: {{Flags: map[string]bool{ActionRead: true}}},
			},
		},
		{
			name:     "unknown subject",
			form:     Form{"bogus": {{Flags: map[string]bool{ActionRead: true}}}},
			wantRule: "unknown_subject",
		},
		{
			name:     "unknown action",
			form:     Form{SubjectProject: {{Flags: map[string]bool{ActionRead: true}}}},
			wantRule: "unknown_action",
		},
		{
			name: "conditions on non-conditional subject",
			form: Form{SubjectMember: {{
				Flags:      map[string]bool{ActionRead: true},
				Conditions: []Condition{{Operator: OpEq, LHS: "environment", RHS: "dev"}},
			}}},
			wantRule: "not_conditional",
		},
		{
			name: "empty conditions on non-conditional subject",
			form: Form{SubjectMember: {{
				Flags:      map[string]bool{ActionRead: true},
				Conditions: []Condition{},
			}}},
		},
		{
			name: "inverted on non-conditional subject",
			form: Form{SubjectMember: {{
				Flags:    map[string]bool{ActionRead: true},
				Inverted: true,
			}}},
			wantRule: "not_conditional",
		},
		{
			name: "bad secret path",
			form: Form{SubjectSecretFolders: {{
				Flags:      map[string]bool{ActionCreate: true},
				Conditions: []Condition{{Operator: OpIn, LHS: "secretPath", RHS: "a,/b"}},
			}}},
			wantRule: "path_prefix",
		},
		{
			name: "duplicate operator",
			form: Form{SubjectIdentity: {{
				Flags: map[string]bool{ActionRead: true},
				Conditions: []Condition{
					{Operator: OpEq, LHS: "identityId", RHS: "a"},
					{Operator: OpEq, LHS: "identityId", RHS: "b"},
				},
			}}},
			wantRule: "duplicate_operator",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.form.Validate()
			if tt.wantRule == "" {
				if len(errs) != 0 {
					t.Fatalf("expected valid form, got %v", errs)
				}
				return
			}
			if len(errs) == 0 || errs[0].Rule != tt.wantRule {
				t.Fatalf("expected %s, got %v", tt.wantRule, errs)
			}
			if !strings.HasPrefix(errs[0].Field, "permissions.") {
				t.Fatalf("expected field to be scoped to permissions, got %s", errs[0].Field)
			}
		})
	}
}

func TestTaxonomy(t *testing.T) {
	tax := Taxonomy()
	if len(tax) != 32 {
		t.Fatalf("expected 32 subjects, got %d", len(tax))
	}
	if tax[0].Subject != SubjectSecrets || tax[0].Title != "Secrets" {
		t.Fatalf("expected secrets first, got %+v", tax[0])
	}
	if !tax[0].Actions[0].Legacy {
		t.Fatal("expected legacy marker on secret read")
	}

	seen := map[Subject]bool{}
	for _, e := range tax {
		if seen[e.Subject] {
			t.Fatalf("duplicate subject %s", e.Subject)
		}
		seen[e.Subject] = true

		spec := Lookup(e.Subject)
		if spec == nil {
			t.Fatalf("subject %s missing from lookup", e.Subject)
		}
		for _, a := range e.Actions {
			if !spec.HasFlag(a.Value) {
				t.Fatalf("display action %s of %s is not a form flag", a.Value, e.Subject)
			}
		}
	}

	// callers must not be able to mutate the table
	tax[0].Actions[0].Label = "changed"
	if Taxonomy()[0].Actions[0].Label != "Read" {
		t.Fatal("taxonomy returned a shared slice")
	}
}

func TestIsConditional(t *testing.T) {
	for _, sub := range []Subject{SubjectSecrets, SubjectSecretFolders, SubjectSecretImports, SubjectDynamicSecrets, SubjectIdentity} {
		if !IsConditional(sub) {
			t.Fatalf("expected %s to be conditional", sub)
		}
	}
	for _, sub := range []Subject{SubjectMember, SubjectCmek, SubjectKmip, "unknown"} {
		if IsConditional(sub) {
			t.Fatalf("expected %s not to be conditional", sub)
		}
	}
}
