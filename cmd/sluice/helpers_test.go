package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

const policyV1 = `type: SerialPolicy
config:
  name: v1
  policies:
    - type: AuthenticateCaller
`

const policyV2 = `type: SerialPolicy
config:
  name: v2
  policies:
    - type: AuthenticateCaller
    - type: Reject
      config:
        reason: maintenance
`

// useTestConfig writes a configuration backed by a temporary SQLite store
// and points the --config flag at it.
func useTestConfig(t *testing.T, storeBackend string) string {
	t.Helper()
	dir := t.TempDir()
	policyPath := writeFile(t, dir, "policy.yaml", policyV1)
	path := writeFile(t, dir, "config.yaml", fmt.Sprintf(`gateway:
  listen_address: "127.0.0.1:0"
backend:
  base_url: "http://127.0.0.1:1/v1"
policy:
  mode: file
  file_path: %q
store:
  backend: %s
  sqlite:
    path: %q
telemetry:
  logging:
    level: error
`, policyPath, storeBackend, filepath.Join(dir, "sluice.db")))

	prev := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = prev })
	return dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// testCommand returns a command whose output is captured.
func testCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetContext(context.Background())
	return cmd, &out, &errOut
}
