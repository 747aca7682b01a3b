// Package stream owns the byte streams wrapped around a child process's
// pipe descriptors and reclaims those descriptors when the child exits.
//
// Reclaiming is the hard part: the exit notification arrives on a reaper
// goroutine while callers may be blocked mid-read or mid-write on the same
// descriptor, and an abrupt close under a blocked operation is not safe
// everywhere. Two strategies cover the problem. Drain-and-replace holds a
// per-stream lock across every operation, drains whatever bytes are still
// buffered in the pipe at exit and swaps the source for an in-memory
// replay. Deferred close never blocks the closer: an in-flight counter
// postpones the real descriptor close until the last operation finishes.
package stream

import (
	"errors"
	"io"
	"os"
)

// ErrClosed is returned by writes to a closed or redirected-away stream.
// Reads never return it; a closed input stream reads as EOF.
var ErrClosed = errors.New("stream closed")

// Strategy selects how an input stream's descriptor is reclaimed when the
// child exits.
type Strategy int

const (
	// DeferredClose postpones the descriptor close until no operation is
	// in flight. Safe on every platform; the default.
	DeferredClose Strategy = iota

	// DrainAndReplace serializes reads, drain and close behind one lock.
	// Appropriate where closing a descriptor under a concurrent read is
	// harmless.
	DrainAndReplace
)

// exitHook is implemented by every stream variant that reacts to process
// exit. The set of hooks is fixed when the Set is built; dispatch never
// inspects stream types at exit time.
type exitHook interface {
	processExited()
}

// Set bundles the three caller-visible streams of one child process.
// Channels that were redirected away are represented by fixed null
// placeholders, so callers check behaviour (immediate EOF, failing
// writes), never nil.
type Set struct {
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	hooks []exitHook
}

// NewSet wraps the parent-side pipe ends of a freshly launched process.
// Nil files produce null placeholders. Ownership of the descriptors
// transfers to the set; nothing else may close them.
func NewSet(stdin, stdout, stderr *os.File, strat Strategy) *Set {
	s := &Set{
		stdin:  nullWriter{},
		stdout: nullReader{},
		stderr: nullReader{},
	}
	if stdin != nil {
		w := &pipeWriter{f: stdin}
		s.stdin = w
		s.hooks = append(s.hooks, w)
	}
	if stdout != nil {
		r := newInputStream(stdout, strat)
		s.stdout = r
		s.hooks = append(s.hooks, r)
	}
	if stderr != nil {
		r := newInputStream(stderr, strat)
		s.stderr = r
		s.hooks = append(s.hooks, r)
	}
	return s
}

type inputStream interface {
	io.ReadCloser
	exitHook
}

func newInputStream(f *os.File, strat Strategy) inputStream {
	if strat == DrainAndReplace {
		return &drainReader{f: f}
	}
	return &deferredReader{f: f}
}

// Stdin returns the stream feeding the child's standard input.
func (s *Set) Stdin() io.WriteCloser { return s.stdin }

// Stdout returns the stream reading the child's standard output.
func (s *Set) Stdout() io.ReadCloser { return s.stdout }

// Stderr returns the stream reading the child's standard error.
func (s *Set) Stderr() io.ReadCloser { return s.stderr }

// ProcessExited runs every registered exit hook. The reaper calls it
// exactly once, after the child's exit status has been collected.
func (s *Set) ProcessExited() {
	for _, h := range s.hooks {
		h.processExited()
	}
}

// Close closes all three streams, attempting each even if an earlier one
// fails, and returns the first failure.
func (s *Set) Close() error {
	var first error
	for _, c := range []io.Closer{s.stdin, s.stdout, s.stderr} {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// nullReader is the placeholder for an input channel that was redirected
// away. It is always at EOF.
type nullReader struct{}

func (nullReader) Read([]byte) (int, error) { return 0, io.EOF }
func (nullReader) Close() error             { return nil }

// nullWriter is the placeholder for an output channel that was redirected
// away. Every write fails.
type nullWriter struct{}

func (nullWriter) Write([]byte) (int, error) { return 0, ErrClosed }
func (nullWriter) Close() error              { return nil }
