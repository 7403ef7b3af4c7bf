package main

import (
	"strings"
	"testing"
)

func TestPolicyLifecycle(t *testing.T) {
	dir := useTestConfig(t, "sqlite")
	v1 := writeFile(t, dir, "v1.yaml", policyV1)
	v2 := writeFile(t, dir, "v2.yaml", policyV2)

	put := func(path, wantVersion string) {
		t.Helper()
		cmd, out, _ := testCommand()
		if err := runPolicyPut(cmd, []string{"root", path}); err != nil {
			t.Fatalf("put %s: %v", path, err)
		}
		if !strings.Contains(out.String(), "version "+wantVersion) {
			t.Errorf("put output = %q, want version %s", out.String(), wantVersion)
		}
	}
	get := func() string {
		t.Helper()
		policyFlags.output = "yaml"
		cmd, out, _ := testCommand()
		if err := runPolicyGet(cmd, []string{"root"}); err != nil {
			t.Fatalf("get: %v", err)
		}
		return out.String()
	}

	put(v1, "1")
	put(v2, "2")

	if got := get(); !strings.Contains(got, "name: v2") {
		t.Errorf("active document = %q, want v2", got)
	}

	policyFlags.output = "text"
	cmd, out, _ := testCommand()
	if err := runPolicyVersions(cmd, []string{"root"}); err != nil {
		t.Fatalf("versions: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "VERSION") {
		t.Fatalf("versions table = %q, want header and 2 rows", out.String())
	}

	cmd, _, _ = testCommand()
	if err := runPolicyDeactivate(cmd, []string{"root", "2"}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if got := get(); !strings.Contains(got, "name: v1") {
		t.Errorf("document after rollback = %q, want v1", got)
	}
}

func TestPolicyCommandErrors(t *testing.T) {
	dir := useTestConfig(t, "sqlite")
	bad := writeFile(t, dir, "bad.yaml", "type: Nope\n")

	tests := []struct {
		name string
		run  func() error
	}{
		{name: "put invalid document", run: func() error {
			cmd, _, _ := testCommand()
			return runPolicyPut(cmd, []string{"root", bad})
		}},
		{name: "get missing document", run: func() error {
			policyFlags.output = "yaml"
			cmd, _, _ := testCommand()
			return runPolicyGet(cmd, []string{"absent"})
		}},
		{name: "versions of missing document", run: func() error {
			policyFlags.output = "text"
			cmd, _, _ := testCommand()
			return runPolicyVersions(cmd, []string{"absent"})
		}},
		{name: "deactivate non-numeric version", run: func() error {
			cmd, _, _ := testCommand()
			return runPolicyDeactivate(cmd, []string{"root", "latest"})
		}},
		{name: "deactivate unknown version", run: func() error {
			cmd, _, _ := testCommand()
			return runPolicyDeactivate(cmd, []string{"root", "9"})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestAdminCommandsRefuseMemoryStore(t *testing.T) {
	useTestConfig(t, "memory")
	policyFlags.output = "yaml"
	cmd, _, _ := testCommand()

	err := runPolicyGet(cmd, []string{"root"})
	if err == nil || !strings.Contains(err.Error(), "does not persist") {
		t.Fatalf("error = %v, want memory store refusal", err)
	}
}

func TestPolicyPutRaw(t *testing.T) {
	dir := useTestConfig(t, "sqlite")
	creds := writeFile(t, dir, "backend.yaml", "api_key: sk-backend-0123456789\n")
	list := writeFile(t, dir, "list.yaml", "- a\n- b\n")
	policyFlags.raw = true
	t.Cleanup(func() { policyFlags.raw = false })

	cmd, _, _ := testCommand()
	if err := runPolicyPut(cmd, []string{"openai", creds}); err != nil {
		t.Fatalf("put --raw: %v", err)
	}

	policyFlags.output = "json"
	cmd, out, _ := testCommand()
	if err := runPolicyGet(cmd, []string{"openai"}); err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.Contains(out.String(), `"api_key": "sk-backend-0123456789"`) {
		t.Errorf("stored document = %q", out.String())
	}

	cmd, _, _ = testCommand()
	if err := runPolicyPut(cmd, []string{"openai", list}); err == nil {
		t.Error("a non-object document should be rejected")
	}
}
