package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/procwire/procwire/internal/redirect"
)

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "pipeline.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoadResolvesStages(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `
version: "1"
pipeline:
  name: fetch-filter
  stopGracePeriod: 3s
stages:
  - name: fetch
    command: ["cat", "input.txt"]
    stdin:
      discard: true
  - name: filter
    command: ["grep", "keep"]
    stdout:
      file: out.txt
      append: true
`)

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Name != "fetch-filter" {
		t.Fatalf("pipeline name = %q, want %q", p.Name, "fetch-filter")
	}
	if p.StopGracePeriod != 3*time.Second {
		t.Fatalf("grace period = %v, want 3s", p.StopGracePeriod)
	}
	if len(p.Stages) != 2 {
		t.Fatalf("got %d stages, want 2", len(p.Stages))
	}

	fetch := p.Stages[0]
	if fetch.Name != "fetch" {
		t.Fatalf("stage 0 name = %q", fetch.Name)
	}
	if fetch.Config.Stdin.Kind() != redirect.KindDiscard {
		t.Fatalf("fetch stdin = %v, want discard", fetch.Config.Stdin)
	}
	if fetch.Config.Dir != dir {
		t.Fatalf("fetch workdir = %q, want manifest dir %q", fetch.Config.Dir, dir)
	}

	filter := p.Stages[1]
	if filter.Config.Stdout != redirect.AppendTo("out.txt") {
		t.Fatalf("filter stdout = %v, want append(out.txt)", filter.Config.Stdout)
	}
	if filter.Config.Stdin.Kind() != redirect.KindPipe {
		t.Fatalf("filter stdin defaulted to %v, want pipe", filter.Config.Stdin)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeManifest(t, t.TempDir(), `
stages:
  - command: ["true"]
    restartPolicy: always
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("Load accepted unknown manifest field")
	}
}

func TestLoadRejectsConflictingRedirect(t *testing.T) {
	path := writeManifest(t, t.TempDir(), `
stages:
  - command: ["true"]
    stdout:
      discard: true
      file: out.txt
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Fatalf("Load error = %v, want mutually exclusive redirect error", err)
	}
}

func TestLoadRejectsAppendOnStdin(t *testing.T) {
	path := writeManifest(t, t.TempDir(), `
stages:
  - command: ["true"]
    stdin:
      file: in.txt
      append: true
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("Load accepted append on an input channel")
	}
}

func TestLoadRejectsMissingCommand(t *testing.T) {
	path := writeManifest(t, t.TempDir(), `
stages:
  - name: broken
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "command is required") {
		t.Fatalf("Load error = %v, want missing command error", err)
	}
}

func TestLoadRejectsDuplicateStageNames(t *testing.T) {
	path := writeManifest(t, t.TempDir(), `
stages:
  - name: twin
    command: ["true"]
  - name: twin
    command: ["false"]
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "duplicate stage name") {
		t.Fatalf("Load error = %v, want duplicate name error", err)
	}
}

func TestEnvFromFileMergesUnderStageEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "stage.env")
	if err := os.WriteFile(envPath, []byte("SHARED=from-file\nOVERRIDDEN=from-file\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	path := writeManifest(t, dir, `
pipeline:
  envFromFile: stage.env
stages:
  - command: ["env"]
    env:
      OVERRIDDEN: from-stage
`)

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	env := p.Stages[0].Config.Env
	if env["SHARED"] != "from-file" {
		t.Fatalf("SHARED = %q, want from-file", env["SHARED"])
	}
	if env["OVERRIDDEN"] != "from-stage" {
		t.Fatalf("OVERRIDDEN = %q, want stage value to win", env["OVERRIDDEN"])
	}
}

func TestEnvExpansionInValues(t *testing.T) {
	t.Setenv("PROCWIRE_TEST_REGION", "eu-west")
	path := writeManifest(t, t.TempDir(), `
stages:
  - command: ["echo", "$PROCWIRE_TEST_REGION"]
    env:
      REGION: ${PROCWIRE_TEST_REGION}
`)

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := p.Stages[0].Config
	if cfg.Command[1] != "eu-west" {
		t.Fatalf("command arg = %q, want expanded value", cfg.Command[1])
	}
	if cfg.Env["REGION"] != "eu-west" {
		t.Fatalf("env REGION = %q, want expanded value", cfg.Env["REGION"])
	}
}

func TestDefaultStageName(t *testing.T) {
	path := writeManifest(t, t.TempDir(), `
stages:
  - command: ["/usr/bin/sort", "-u"]
`)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Stages[0].Name != "sort-0" {
		t.Fatalf("default stage name = %q, want sort-0", p.Stages[0].Name)
	}
}
