// Package pipeline chains process configurations into a single stream of
// pipes, launching each stage with its predecessor's output as input.
package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/procwire/procwire/internal/metrics"
	"github.com/procwire/procwire/internal/proc"
	"github.com/procwire/procwire/internal/redirect"
	"github.com/procwire/procwire/internal/spawn"
)

// Start launches the configured stages in order, wiring stage i's stdout
// to stage i+1's stdin through a fresh pipe. The first stage's stdin and
// the last stage's stdout keep whatever the caller configured; every
// interior boundary must be left as a pipe.
//
// On success the returned handles are ordered like the configs. If any
// stage fails to launch, every already-started stage is forcibly
// destroyed and fully reaped before the original launch error is
// returned: a failed Start never leaves part of the pipeline running.
func Start(l *spawn.Launcher, cfgs []spawn.Config, opts ...proc.Option) ([]*proc.Handle, error) {
	if len(cfgs) == 0 {
		return nil, &spawn.ConfigError{Reason: "pipeline has no stages"}
	}
	last := len(cfgs) - 1
	for i, cfg := range cfgs {
		if i > 0 && cfg.Stdin.Kind() != redirect.KindPipe {
			return nil, &spawn.ConfigError{
				Reason: fmt.Sprintf("stage %d stdin must be a pipe, have %s", i, cfg.Stdin),
			}
		}
		if i < last && cfg.Stdout.Kind() != redirect.KindPipe {
			return nil, &spawn.ConfigError{
				Reason: fmt.Sprintf("stage %d stdout must be a pipe, have %s", i, cfg.Stdout),
			}
		}
		if i < last && cfg.MergeStderr {
			return nil, &spawn.ConfigError{
				Reason: fmt.Sprintf("stage %d cannot merge stderr into a pipeline pipe", i),
			}
		}
	}

	handles := make([]*proc.Handle, 0, len(cfgs))

	// carry is the parent's copy of the read end produced by the previous
	// stage; it becomes the next child's stdin and is closed as soon as
	// ownership has transferred.
	var carry *os.File

	rollback := func(err error) ([]*proc.Handle, error) {
		if carry != nil {
			carry.Close()
		}
		for _, h := range handles {
			_ = h.DestroyForcibly()
		}
		for _, h := range handles {
			_, _ = h.Wait(context.Background())
		}
		if len(handles) > 0 {
			metrics.PipelineRolledBack()
		}
		return nil, err
	}

	for i := range cfgs {
		stdin := carry

		var stdout, nextCarry *os.File
		if i < last {
			r, w, err := os.Pipe()
			if err != nil {
				return rollback(&spawn.LaunchError{Program: cfgs[i].Command[0], Dir: cfgs[i].Dir, Err: err})
			}
			stdout, nextCarry = w, r
		}

		h, err := proc.StartWith(l, cfgs[i], stdin, stdout, opts...)

		// The child owns its copies now (or the launch failed); either
		// way the parent's handed-off ends are dead weight.
		if stdin != nil {
			stdin.Close()
			carry = nil
		}
		if stdout != nil {
			stdout.Close()
		}

		if err != nil {
			if nextCarry != nil {
				nextCarry.Close()
			}
			return rollback(err)
		}

		handles = append(handles, h)
		carry = nextCarry
	}

	return handles, nil
}
