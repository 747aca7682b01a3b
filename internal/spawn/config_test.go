package spawn

import (
	"errors"
	"testing"

	"github.com/procwire/procwire/internal/redirect"
)

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"emptyCommand", Config{}},
		{"emptyProgram", Config{Command: []string{""}}},
		{"writeRedirectOnStdin", Config{
			Command: []string{"cat"},
			Stdin:   redirect.WriteTo("out.txt"),
		}},
		{"appendRedirectOnStdin", Config{
			Command: []string{"cat"},
			Stdin:   redirect.AppendTo("out.txt"),
		}},
		{"readRedirectOnStdout", Config{
			Command: []string{"cat"},
			Stdout:  redirect.ReadFrom("in.txt"),
		}},
		{"readRedirectOnStderr", Config{
			Command: []string{"cat"},
			Stderr:  redirect.ReadFrom("in.txt"),
		}},
		{"fileRedirectWithoutPath", Config{
			Command: []string{"cat"},
			Stdout:  redirect.WriteTo(""),
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() accepted invalid config")
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() error = %T, want *ConfigError", err)
			}
		})
	}
}

func TestValidateIgnoresStderrWhenMerged(t *testing.T) {
	cfg := Config{
		Command:     []string{"cat"},
		Stderr:      redirect.ReadFrom("in.txt"),
		MergeStderr: true,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil when stderr is merged away", err)
	}
}

func TestCloneIsolatesCommandAndEnv(t *testing.T) {
	cfg := NewConfig("echo", "hi")
	cfg.Env = map[string]string{"A": "1"}

	dup := cfg.clone()
	cfg.Command[1] = "changed"
	cfg.Env["A"] = "2"

	if dup.Command[1] != "hi" {
		t.Fatalf("clone shares command slice with original")
	}
	if dup.Env["A"] != "1" {
		t.Fatalf("clone shares env map with original")
	}
}

func TestEnvironMergesOverrides(t *testing.T) {
	t.Setenv("PROCWIRE_TEST_INHERITED", "parent")

	cfg := NewConfig("env")
	cfg.Env = map[string]string{"PROCWIRE_TEST_OVERRIDE": "child"}

	env := cfg.environ()
	want := map[string]bool{
		"PROCWIRE_TEST_INHERITED=parent": false,
		"PROCWIRE_TEST_OVERRIDE=child":   false,
	}
	for _, kv := range env {
		if _, ok := want[kv]; ok {
			want[kv] = true
		}
	}
	for kv, seen := range want {
		if !seen {
			t.Fatalf("environ() missing %q", kv)
		}
	}
}

func TestEnvironWithoutInherit(t *testing.T) {
	t.Setenv("PROCWIRE_TEST_INHERITED", "parent")

	cfg := Config{Command: []string{"env"}, Env: map[string]string{"ONLY": "1"}}
	env := cfg.environ()
	if len(env) != 1 || env[0] != "ONLY=1" {
		t.Fatalf("environ() = %v, want exactly [ONLY=1]", env)
	}
}
