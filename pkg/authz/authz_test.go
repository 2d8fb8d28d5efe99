package authz

import (
	"os"
	"path/filepath"
	"testing"
)

func TestModeFromEnv_Default(t *testing.T) {
	t.Setenv("AUTHZ_MODE", "")
	m, err := ModeFromEnv()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if m != ModeEnforce {
		t.Fatalf("mode=%q", m)
	}
}

func TestModeFromEnv_DisabledRequiresUnsafe(t *testing.T) {
	t.Setenv("AUTHZ_MODE", "disabled")
	t.Setenv("AUTHZ_UNSAFE_ALLOW_DISABLED", "")
	if _, err := ModeFromEnv(); err == nil {
		t.Fatal("expected error")
	}
	t.Setenv("AUTHZ_UNSAFE_ALLOW_DISABLED", "1")
	m, err := ModeFromEnv()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if m != ModeDisabled {
		t.Fatalf("mode=%q", m)
	}
}

func TestModeFromEnv_Invalid(t *testing.T) {
	t.Setenv("AUTHZ_MODE", "nope")
	if _, err := ModeFromEnv(); err == nil {
		t.Fatal("expected error")
	}
}

func writeAccessFixture(t *testing.T) (modelPath string, policyPath string) {
	t.Helper()
	dir := t.TempDir()
	modelPath = filepath.Join(dir, "model.conf")
	policyPath = filepath.Join(dir, "policy.csv")

	model := `
[request_definition]
r = sub, dom, obj, act

[policy_definition]
p = sub, dom, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (r.dom == p.dom || p.dom == "*") && r.obj == p.obj && (r.act == p.act || p.act == "*")
`
	policy := `
p, role:tenant-admin, *, roster.reconcile, *
p, role:tenant-viewer, *, roster.reconcile, read
`
	if err := os.WriteFile(modelPath, []byte(model), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(policyPath, []byte(policy), 0o600); err != nil {
		t.Fatal(err)
	}
	return modelPath, policyPath
}

func TestAuthorize_EnforceAndShadow(t *testing.T) {
	modelPath, policyPath := writeAccessFixture(t)

	a, err := NewAuthorizer(modelPath, policyPath, ModeEnforce)
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	allowed, enforced, err := a.Authorize(SubjectFromRoleSlug("tenant-viewer"), "t1", ObjectRosterReconcile, ActionRead)
	if err != nil || !allowed || !enforced {
		t.Fatalf("allowed=%v enforced=%v err=%v", allowed, enforced, err)
	}

	allowed, enforced, err = a.Authorize(SubjectFromRoleSlug("tenant-viewer"), "t1", ObjectRosterReconcile, ActionAdmin)
	if err != nil || allowed || !enforced {
		t.Fatalf("allowed=%v enforced=%v err=%v", allowed, enforced, err)
	}

	shadow, err := NewAuthorizer(modelPath, policyPath, ModeShadow)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	allowed, enforced, err = shadow.Authorize(SubjectFromRoleSlug("anonymous"), "t1", ObjectRosterReconcile, ActionAdmin)
	if err != nil || allowed || enforced {
		t.Fatalf("allowed=%v enforced=%v err=%v", allowed, enforced, err)
	}
}

func TestSubjectFromRoleSlug_Empty(t *testing.T) {
	if got := SubjectFromRoleSlug("  "); got != "role:anonymous" {
		t.Fatalf("subject=%q", got)
	}
}
