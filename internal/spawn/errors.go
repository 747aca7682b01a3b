package spawn

import (
	"errors"
	"fmt"
)

// ErrUnsupportedPlatform is returned when no process-creation mechanism is
// available on this host, or when an explicitly requested mechanism does
// not exist.
var ErrUnsupportedPlatform = errors.New("no supported process-creation mechanism")

// ConfigError reports a configuration that can never launch: an empty
// command, a redirect pointing the wrong direction, or a pipeline stage
// violating the chaining contract. Config errors are detected before any
// native resource is touched.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid process configuration: " + e.Reason
}

// LaunchError wraps a native spawn failure. It always carries the program
// path and working directory so callers can report where the launch was
// attempted without re-deriving state from the configuration.
type LaunchError struct {
	Program string
	Dir     string
	Err     error
}

func (e *LaunchError) Error() string {
	dir := e.Dir
	if dir == "" {
		dir = "."
	}
	return fmt.Sprintf("launch %s (in %s): %v", e.Program, dir, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

func launchErr(program, dir string, err error) *LaunchError {
	return &LaunchError{Program: program, Dir: dir, Err: err}
}
