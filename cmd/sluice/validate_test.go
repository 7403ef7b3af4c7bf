package main

import (
	"encoding/json"
	"strings"
	"testing"

	"mercator-hq/sluice/pkg/cli"
)

func TestRunValidate(t *testing.T) {
	dir := t.TempDir()
	valid := writeFile(t, dir, "valid.yaml", policyV2)
	invalid := writeFile(t, dir, "invalid.yaml", "type: SerialPolicy\nconfig:\n  policies:\n    - type: NoSuchPolicy\n")
	malformed := writeFile(t, dir, "malformed.json", "{not json")

	tests := []struct {
		name     string
		files    []string
		wantExit int
		wantOut  string
		wantErr  string
	}{
		{name: "valid", files: []string{valid}, wantExit: cli.ExitOK, wantOut: "✓"},
		{name: "unknown tag", files: []string{invalid}, wantExit: cli.ExitInvalid, wantErr: "policies[0]"},
		{name: "malformed json", files: []string{malformed}, wantExit: cli.ExitInvalid, wantErr: "malformed.json"},
		{name: "missing file", files: []string{dir + "/absent.yaml"}, wantExit: cli.ExitInvalid},
		{name: "one bad file fails the run", files: []string{valid, invalid}, wantExit: cli.ExitInvalid, wantOut: "✓"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validateFlags.output = "text"
			cmd, out, errOut := testCommand()

			err := runValidate(cmd, tt.files)
			if got := cli.ExitCode(err); got != tt.wantExit {
				t.Fatalf("exit code = %d, want %d (err %v)", got, tt.wantExit, err)
			}
			if tt.wantOut != "" && !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("stdout = %q, want it to contain %q", out.String(), tt.wantOut)
			}
			if tt.wantErr != "" && !strings.Contains(errOut.String(), tt.wantErr) {
				t.Errorf("stderr = %q, want it to contain %q", errOut.String(), tt.wantErr)
			}
		})
	}
}

func TestRunValidatePrintsCanonicalJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "policy.yaml", policyV2)
	validateFlags.output = "json"
	t.Cleanup(func() { validateFlags.output = "text" })
	cmd, out, _ := testCommand()

	if err := runValidate(cmd, []string{path}); err != nil {
		t.Fatalf("runValidate() error = %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if doc["type"] != "SerialPolicy" {
		t.Errorf("type = %v, want SerialPolicy", doc["type"])
	}
	config, _ := doc["config"].(map[string]any)
	members, _ := config["policies"].([]any)
	if len(members) != 2 {
		t.Fatalf("policies = %v, want 2 members", config["policies"])
	}
	reject, _ := members[1].(map[string]any)
	if _, ok := reject["config"]; !ok {
		t.Errorf("member %v is not in canonical form", reject)
	}
}

func TestRunValidateRejectsUnknownFormat(t *testing.T) {
	validateFlags.output = "xml"
	t.Cleanup(func() { validateFlags.output = "text" })
	cmd, _, _ := testCommand()

	if err := runValidate(cmd, []string{"policy.yaml"}); err == nil {
		t.Fatal("expected an error for an unknown output format")
	}
}

func TestExamplePolicyLoads(t *testing.T) {
	validateFlags.output = "text"
	cmd, out, _ := testCommand()

	if err := runValidate(cmd, []string{"../../examples/policy.yaml"}); err != nil {
		t.Fatalf("example policy failed to load: %v", err)
	}
	if !strings.Contains(out.String(), ": root") {
		t.Errorf("output = %q, want root policy name", out.String())
	}
}
