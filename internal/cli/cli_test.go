package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func newTestRoot(t *testing.T) *cobra.Command {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("commands under test launch unix shell utilities")
	}
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	return root
}

func execute(t *testing.T, root *cobra.Command, args ...string) error {
	t.Helper()
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func TestRunCommandRedirectsStdout(t *testing.T) {
	root := newTestRoot(t)
	out := filepath.Join(t.TempDir(), "out.txt")

	if err := execute(t, root, "run", "--stdout", out, "--", "echo", "hi"); err != nil {
		t.Fatalf("run: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "hi\n" {
		t.Fatalf("output = %q, want %q", data, "hi\n")
	}
}

func TestRunCommandPropagatesExitCode(t *testing.T) {
	root := newTestRoot(t)

	err := execute(t, root, "run", "--", "sh", "-c", "exit 3")
	var ec *exitCodeError
	if !errors.As(err, &ec) {
		t.Fatalf("expected exit code error, got %v", err)
	}
	if ec.code != 3 {
		t.Fatalf("exit code = %d, want 3", ec.code)
	}
}

func TestRunCommandAppliesEnvOverrides(t *testing.T) {
	root := newTestRoot(t)
	out := filepath.Join(t.TempDir(), "out.txt")

	err := execute(t, root,
		"run", "--stdout", out, "--env", "GREETING=salut", "--",
		"sh", "-c", "echo $GREETING")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "salut\n" {
		t.Fatalf("output = %q, want %q", data, "salut\n")
	}
}

func TestRunCommandTimeoutTerminatesChild(t *testing.T) {
	root := newTestRoot(t)

	start := time.Now()
	err := execute(t, root, "run", "--timeout", "200ms", "--", "sleep", "30")
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("run did not stop the child promptly, took %v", elapsed)
	}

	var ec *exitCodeError
	if !errors.As(err, &ec) {
		t.Fatalf("expected exit code error, got %v", err)
	}
	if ec.code != 128+int(syscall.SIGTERM) {
		t.Fatalf("exit code = %d, want %d", ec.code, 128+int(syscall.SIGTERM))
	}
}

func TestParseEnvPairs(t *testing.T) {
	env, err := parseEnvPairs([]string{"A=1", "B=x=y"})
	if err != nil {
		t.Fatalf("parseEnvPairs: %v", err)
	}
	if env["A"] != "1" || env["B"] != "x=y" {
		t.Fatalf("parsed env = %v", env)
	}

	if _, err := parseEnvPairs([]string{"NOEQUALS"}); err == nil {
		t.Fatalf("expected error for pair without =")
	}
	if _, err := parseEnvPairs([]string{"=value"}); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestConfigValidateCommand(t *testing.T) {
	root := newTestRoot(t)
	var out bytes.Buffer
	root.SetOut(&out)

	path := writeManifest(t, `
pipeline:
  name: demo
stages:
  - name: fetch
    command: ["cat"]
`)

	if err := execute(t, root, "config", "validate", "-f", path); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out.String(), `pipeline "demo" is valid: 1 stage(s)`) {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestConfigValidateRejectsBadManifest(t *testing.T) {
	root := newTestRoot(t)
	path := writeManifest(t, `
stages:
  - name: fetch
`)

	if err := execute(t, root, "config", "validate", "-f", path); err == nil {
		t.Fatalf("expected validation failure for stage without command")
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	root := newTestRoot(t)
	var out bytes.Buffer
	root.SetOut(&out)

	path := writeManifest(t, `
pipeline:
  name: demo
stages:
  - name: fetch
    command: ["cat"]
    env:
      API_KEY: hunter2
      REGION: eu-west
`)

	if err := execute(t, root, "config", "show", "-f", path); err != nil {
		t.Fatalf("show: %v", err)
	}
	rendered := out.String()
	if strings.Contains(rendered, "hunter2") {
		t.Fatalf("secret value leaked: %q", rendered)
	}
	if !strings.Contains(rendered, "REGION=eu-west") {
		t.Fatalf("non-secret env missing: %q", rendered)
	}
}
