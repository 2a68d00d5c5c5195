package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/go-cmp/cmp"

	"secrets-backend/internal/apperror"
	"secrets-backend/internal/permission"
	"secrets-backend/internal/role"
)

func testApp(t *testing.T, roles ...*role.Role) *fiber.App {
	t.Helper()
	reg := role.NewRegistry()
	reg.Load(roles)
	app := fiber.New(fiber.Config{ErrorHandler: apperror.Handler})
	RegisterRoutes(app, NewHandler(reg))
	return app
}

func do(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		var raw []byte
		switch b := body.(type) {
		case string:
			raw = []byte(b)
		default:
			raw, _ = json.Marshal(b)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, path, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	out, _ := io.ReadAll(resp.Body)
	return resp, out
}

func TestSubjects(t *testing.T) {
	app := testApp(t)
	resp, body := do(t, app, "GET", "/api/permissions/subjects", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var out struct {
		Data []permission.TaxonomyEntry `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(permission.Taxonomy(), out.Data); diff != "" {
		t.Fatalf("taxonomy mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateConditions(t *testing.T) {
	app := testApp(t)

	resp, body := do(t, app, "POST", "/api/permissions/conditions/validate",
		`{"conditions": [{"operator": "$in", "lhs": "secretPath", "rhs": "/a,/b"}]}`)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	resp, body = do(t, app, "POST", "/api/permissions/conditions/validate",
		`{"conditions": [{"operator": "$eq", "lhs": "secretPath", "rhs": "app"}]}`)
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422, got %d: %s", resp.StatusCode, body)
	}
	var out apperror.ErrorResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Error.Details) != 1 || out.Error.Details[0].Message != permission.MsgInvalidSecretPath {
		t.Fatalf("unexpected details: %+v", out.Error.Details)
	}

	resp, _ = do(t, app, "POST", "/api/permissions/conditions/validate", `{not json`)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400 for malformed body, got %d", resp.StatusCode)
	}
}

func TestToFormAndBack(t *testing.T) {
	app := testApp(t)

	rules := `{"permissions": [
		{"subject": "secrets", "action": ["describeSecret", "readValue"], "conditions": {"environment": "dev"}},
		{"subject": "member", "action": ["read"]},
		{"subject": "member", "action": ["create"]}
	]}`
	resp, body := do(t, app, "POST", "/api/permissions/to-form", rules)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var formOut struct {
		Data permission.Form `json:"data"`
	}
	if err := json.Unmarshal(body, &formOut); err != nil {
		t.Fatalf("decode form: %v", err)
	}
	if len(formOut.Data[permission.SubjectMember]) != 1 {
		t.Fatalf("expected merged member entry, got %+v", formOut.Data[permission.SubjectMember])
	}

	resp, body = do(t, app, "POST", "/api/permissions/to-rules", fiber.Map{"permissions": formOut.Data})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var rulesOut struct {
		Data []permission.Rule `json:"data"`
	}
	if err := json.Unmarshal(body, &rulesOut); err != nil {
		t.Fatalf("decode rules: %v", err)
	}
	want := []permission.Rule{
		{
			Subject:    permission.SubjectSecrets,
			Action:     []string{permission.SecretActionDescribe, permission.SecretActionReadValue},
			Conditions: permission.Conditions{"environment": {permission.OpEq: permission.StringOperand("dev")}},
		},
		{Subject: permission.SubjectMember, Action: []string{permission.ActionRead, permission.ActionCreate}},
	}
	if diff := cmp.Diff(want, rulesOut.Data); diff != "" {
		t.Fatalf("rules mismatch (-want +got):\n%s", diff)
	}
}

func TestToRules_RejectsInvalidForm(t *testing.T) {
	app := testApp(t)
	resp, body := do(t, app, "POST", "/api/permissions/to-rules",
		`{"permissions": {"secrets": [{"readValue": true, "conditions": [{"operator": "$eq", "lhs": "secretPath", "rhs": "nope"}]}]}}`)
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422, got %d: %s", resp.StatusCode, body)
	}
	var out apperror.ErrorResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Error.Details[0].Field != "permissions.secrets.0.conditions.0.rhs" {
		t.Fatalf("unexpected field: %s", out.Error.Details[0].Field)
	}
}

func TestRoleReads(t *testing.T) {
	viewer := &role.Role{
		ID:          "r1",
		Slug:        "viewer",
		Name:        "Viewer",
		Permissions: []permission.Rule{{Subject: permission.SubjectMember, Action: []string{permission.ActionRead}}},
	}
	app := testApp(t, viewer)

	resp, body := do(t, app, "GET", "/api/roles", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var list struct {
		Data []role.Role `json:"data"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].Slug != "viewer" {
		t.Fatalf("unexpected roles: %+v", list.Data)
	}

	resp, body = do(t, app, "GET", "/api/roles/viewer/form", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var form struct {
		Data role.Form `json:"data"`
	}
	if err := json.Unmarshal(body, &form); err != nil {
		t.Fatalf("decode form: %v", err)
	}
	if form.Data.Name != "Viewer" || !form.Data.Permissions[permission.SubjectMember][0].Flags[permission.ActionRead] {
		t.Fatalf("unexpected form: %+v", form.Data)
	}

	resp, _ = do(t, app, "GET", "/api/roles/missing", nil)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
