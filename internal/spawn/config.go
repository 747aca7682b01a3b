package spawn

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/procwire/procwire/internal/redirect"
)

// Config describes one child process: the command vector, its environment,
// working directory, the three standard-channel redirects and the
// error-merge flag. The zero value runs nothing (empty command) but wires
// all three channels to pipes and inherits the parent environment.
//
// A Config is plain data. The launcher snapshots it at launch time, so
// mutating a Config after Start returns has no effect on the running
// process.
type Config struct {
	// Command is the program and its arguments. Command[0] is resolved
	// against PATH unless it contains a path separator.
	Command []string

	// Env holds environment overrides applied on top of the parent
	// environment when InheritEnv is true, or the complete child
	// environment otherwise.
	Env map[string]string

	// InheritEnv controls whether the parent environment seeds the child
	// environment. A nil Env with InheritEnv false yields an empty child
	// environment.
	InheritEnv bool

	// Dir is the child working directory. Empty means inherit the
	// parent's.
	Dir string

	Stdin  redirect.Redirect
	Stdout redirect.Redirect
	Stderr redirect.Redirect

	// MergeStderr forces the child's stderr onto whatever its stdout
	// resolves to. When set, the Stderr redirect is ignored.
	MergeStderr bool
}

// NewConfig returns a Config for the given command that inherits the
// parent environment and pipes all three channels.
func NewConfig(command ...string) Config {
	return Config{Command: command, InheritEnv: true}
}

// Validate checks the configuration without touching any native resource.
func (c Config) Validate() error {
	if len(c.Command) == 0 {
		return &ConfigError{Reason: "empty command"}
	}
	if c.Command[0] == "" {
		return &ConfigError{Reason: "empty program name"}
	}
	if !c.Stdin.ValidSource() {
		return &ConfigError{Reason: fmt.Sprintf("stdin redirect %s is write-only", c.Stdin)}
	}
	if !c.Stdout.ValidSink() {
		return &ConfigError{Reason: fmt.Sprintf("stdout redirect %s is read-only", c.Stdout)}
	}
	if !c.MergeStderr && !c.Stderr.ValidSink() {
		return &ConfigError{Reason: fmt.Sprintf("stderr redirect %s is read-only", c.Stderr)}
	}
	for name, r := range map[string]redirect.Redirect{"stdin": c.Stdin, "stdout": c.Stdout, "stderr": c.Stderr} {
		switch r.Kind() {
		case redirect.KindRead, redirect.KindWrite, redirect.KindAppend:
			if r.Path() == "" {
				return &ConfigError{Reason: name + " file redirect has no path"}
			}
		}
	}
	return nil
}

// clone deep-copies the mutable parts of the configuration so a started
// process cannot observe later mutation of the caller's Config.
func (c Config) clone() Config {
	dup := c
	dup.Command = append([]string(nil), c.Command...)
	if c.Env != nil {
		dup.Env = make(map[string]string, len(c.Env))
		for k, v := range c.Env {
			dup.Env[k] = v
		}
	}
	return dup
}

// environ encodes the child environment block. Overrides win over
// inherited variables; entries are sorted for deterministic spawns.
func (c Config) environ() []string {
	merged := make(map[string]string, len(c.Env))
	if c.InheritEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i > 0 {
				merged[kv[:i]] = kv[i+1:]
			}
		}
	}
	for k, v := range c.Env {
		merged[k] = v
	}
	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}
