// Package proc exposes running child processes as handles with a one-way
// Running to Exited lifecycle. A handle owns the exit-state transition;
// descriptors are owned by the stream set built at launch.
package proc

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/procwire/procwire/internal/metrics"
	"github.com/procwire/procwire/internal/spawn"
	"github.com/procwire/procwire/internal/stream"
)

// ErrStillRunning is returned by ExitCode while the process has not
// exited.
var ErrStillRunning = errors.New("process still running")

// Option adjusts how a handle wraps its process.
type Option func(*options)

type options struct {
	strategy stream.Strategy
}

// WithStrategy selects the descriptor reclaim strategy for the handle's
// input streams.
func WithStrategy(s stream.Strategy) Option {
	return func(o *options) { o.strategy = s }
}

// Handle is the caller-visible face of one child process. All methods are
// safe for concurrent use; waiting blocks only the calling goroutine.
type Handle struct {
	pid     int
	process *os.Process
	streams *stream.Set

	mu     sync.Mutex
	done   chan struct{}
	exited bool
	code   int
}

// Start launches the configured process and wraps it in a handle.
func Start(l *spawn.Launcher, cfg spawn.Config, opts ...Option) (*Handle, error) {
	return StartWith(l, cfg, nil, nil, opts...)
}

// StartWith launches with pre-resolved stdin/stdout descriptors, as used
// by pipeline stages. See spawn.Launcher.StartWith for the override and
// ownership rules.
func StartWith(l *spawn.Launcher, cfg spawn.Config, stdin, stdout *os.File, opts ...Option) (*Handle, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	res, err := l.StartWith(cfg, stdin, stdout)
	if err != nil {
		metrics.LaunchFailed()
		return nil, err
	}

	h := &Handle{
		pid:     res.PID,
		process: res.Process,
		streams: stream.NewSet(res.Stdin, res.Stdout, res.Stderr, o.strategy),
		done:    make(chan struct{}),
	}
	metrics.ProcessStarted()

	// The reaper delivers the single exit notification for this pid.
	go h.reap()

	return h, nil
}

// reap blocks until the child exits, then performs the one-way state
// transition and lets the stream set reclaim its descriptors.
func (h *Handle) reap() {
	state, err := h.process.Wait()
	code := -1
	if err == nil && state != nil {
		code = exitCode(state)
	}

	h.mu.Lock()
	h.exited = true
	h.code = code
	close(h.done)
	h.mu.Unlock()

	h.streams.ProcessExited()
	metrics.ProcessExited(code)
}

// PID returns the native process id. Pids are reused by the platform;
// once the handle reports exited the value identifies nothing.
func (h *Handle) PID() int { return h.pid }

// Stdin returns the stream feeding the child's standard input. If the
// channel was redirected away the returned stream fails every write.
func (h *Handle) Stdin() io.WriteCloser { return h.streams.Stdin() }

// Stdout returns the stream reading the child's standard output. If the
// channel was redirected away the returned stream is at EOF.
func (h *Handle) Stdout() io.ReadCloser { return h.streams.Stdout() }

// Stderr returns the stream reading the child's standard error.
func (h *Handle) Stderr() io.ReadCloser { return h.streams.Stderr() }

// Wait blocks until the process exits or the context is cancelled and
// returns the exit code.
func (h *Handle) Wait(ctx context.Context) (int, error) {
	select {
	case <-h.done:
		return h.code, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// WaitTimeout reports whether the process exited within d. The deadline
// is computed once; a non-positive duration only polls.
func (h *Handle) WaitTimeout(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-h.done:
			return true
		default:
			return false
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-h.done:
		return true
	case <-t.C:
		return false
	}
}

// ExitCode returns the exit code, or ErrStillRunning before exit.
func (h *Handle) ExitCode() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.exited {
		return 0, ErrStillRunning
	}
	return h.code, nil
}

// Alive reports whether the process has not yet been reaped.
func (h *Handle) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.exited
}

// OnExit returns a channel that delivers the handle once the process has
// exited. Each call allocates an independent waiter.
func (h *Handle) OnExit() <-chan *Handle {
	ch := make(chan *Handle, 1)
	go func() {
		<-h.done
		ch <- h
	}()
	return ch
}

// Destroy asks the process to terminate. Termination is not immediate;
// callers needing certainty must follow with Wait.
func (h *Handle) Destroy() error { return h.destroy(false) }

// DestroyForcibly kills the process.
func (h *Handle) DestroyForcibly() error { return h.destroy(true) }

// destroy signals the process group, but only while the handle is still
// running: the check and the signal happen under the same lock as the
// exit transition, so a pid recycled after natural exit is never
// signalled. Destroying an exited handle is a no-op.
func (h *Handle) destroy(force bool) error {
	h.mu.Lock()
	var err error
	if !h.exited {
		err = terminate(h.pid, force)
	}
	h.mu.Unlock()

	if closeErr := h.streams.Close(); err == nil {
		err = closeErr
	}
	return err
}
