package spawn

import (
	"errors"
	"io/fs"
	"os"
	"os/exec"

	"github.com/procwire/procwire/internal/redirect"
)

// Result is the outcome of a successful launch: the native process handle
// and, for each channel that resolved to a pipe, the parent-side pipe end.
// A nil file means the channel was redirected away (file, null device,
// inherited, or handed to a sibling pipeline stage) and the parent holds
// nothing to read or write.
//
// Ownership of the three files transfers to whoever wraps them in managed
// streams; the launcher never touches them again.
type Result struct {
	Process *os.Process
	PID     int
	Stdin   *os.File // parent write end of the child's stdin pipe
	Stdout  *os.File // parent read end of the child's stdout pipe
	Stderr  *os.File // parent read end of the child's stderr pipe
}

// Launcher maps process configurations onto the native process-creation
// primitive. The primitive strategy is fixed at construction and shared
// freely across goroutines.
type Launcher struct {
	mech mechanism
}

// New returns a launcher bound to the host's process-creation mechanism.
// It fails with ErrUnsupportedPlatform when no mechanism is available or
// when PROCWIRE_SPAWN requests one that does not exist.
func New() (*Launcher, error) {
	mech, err := selectMechanism()
	if err != nil {
		return nil, err
	}
	return &Launcher{mech: mech}, nil
}

// Mechanism reports the name of the selected process-creation strategy.
func (l *Launcher) Mechanism() string { return l.mech.name() }

// Start launches the configured process and returns the native handle
// together with the parent-side pipe ends.
func (l *Launcher) Start(cfg Config) (*Result, error) {
	return l.start(cfg, nil, nil)
}

// StartWith launches the configured process with pre-resolved descriptors
// substituted for the stdin and/or stdout channels. A non-nil file
// overrides the corresponding redirect; this is how pipeline stages hand
// a sibling's pipe end to the next child. The caller retains ownership of
// the override files and must close its copies after StartWith returns.
func (l *Launcher) StartWith(cfg Config, stdin, stdout *os.File) (*Result, error) {
	return l.start(cfg, stdin, stdout)
}

func (l *Launcher) start(cfg Config, stdinOverride, stdoutOverride *os.File) (*Result, error) {
	cfg = cfg.clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	program, err := exec.LookPath(cfg.Command[0])
	if err != nil {
		return nil, launchErr(cfg.Command[0], cfg.Dir, err)
	}

	res := &Result{}
	var child [3]*os.File // descriptor slots passed to the primitive
	var owned []*os.File  // locally opened; closed after the primitive call
	var parentEnds []*os.File

	fail := func(err error) (*Result, error) {
		_ = closeAll(owned)
		_ = closeAll(parentEnds)
		return nil, launchErr(program, cfg.Dir, err)
	}

	// Child stdin.
	if stdinOverride != nil {
		child[0] = stdinOverride
	} else {
		switch cfg.Stdin.Kind() {
		case redirect.KindPipe:
			r, w, err := os.Pipe()
			if err != nil {
				return fail(err)
			}
			child[0], res.Stdin = r, w
			owned = append(owned, r)
			parentEnds = append(parentEnds, w)
		case redirect.KindInherit:
			child[0] = os.Stdin
		case redirect.KindDiscard:
			f, err := os.Open(os.DevNull)
			if err != nil {
				return fail(err)
			}
			child[0] = f
			owned = append(owned, f)
		case redirect.KindRead:
			f, err := os.Open(cfg.Stdin.Path())
			if err != nil {
				return fail(err)
			}
			child[0] = f
			owned = append(owned, f)
		}
	}

	// Child stdout.
	if stdoutOverride != nil {
		child[1] = stdoutOverride
	} else {
		f, parent, err := resolveOutput(cfg.Stdout, os.Stdout)
		if err != nil {
			return fail(err)
		}
		child[1] = f
		if parent != nil {
			res.Stdout = parent
			parentEnds = append(parentEnds, parent)
		}
		if f != os.Stdout {
			owned = append(owned, f)
		}
	}

	// Child stderr. Merging aliases it onto the resolved stdout slot and
	// ignores the configured stderr redirect entirely.
	if cfg.MergeStderr {
		child[2] = child[1]
	} else {
		f, parent, err := resolveOutput(cfg.Stderr, os.Stderr)
		if err != nil {
			return fail(err)
		}
		child[2] = f
		if parent != nil {
			res.Stderr = parent
			parentEnds = append(parentEnds, parent)
		}
		if f != os.Stderr {
			owned = append(owned, f)
		}
	}

	argv := append([]string{cfg.Command[0]}, cfg.Command[1:]...)
	attr := &os.ProcAttr{Dir: cfg.Dir, Env: cfg.environ(), Files: child[:]}
	process, spawnErr := l.mech.start(program, argv, attr)

	// The child holds its own copies now; the parent's locally opened
	// descriptors are closed whether or not the spawn succeeded.
	closeErr := closeAll(owned)

	if spawnErr != nil {
		_ = closeAll(parentEnds)
		return nil, launchErr(program, cfg.Dir, describeSpawnFailure(program, spawnErr))
	}
	if closeErr != nil {
		// A leaked slot descriptor would exhaust the table across many
		// launches; give up on this child rather than run degraded.
		_ = process.Kill()
		_, _ = process.Wait()
		_ = closeAll(parentEnds)
		return nil, launchErr(program, cfg.Dir, closeErr)
	}

	res.Process = process
	res.PID = process.Pid
	return res, nil
}

// resolveOutput opens the descriptor for an output-direction redirect.
// It returns the child-side file plus, for pipes, the parent-side end.
func resolveOutput(r redirect.Redirect, inherited *os.File) (*os.File, *os.File, error) {
	switch r.Kind() {
	case redirect.KindPipe:
		pr, pw, err := os.Pipe()
		if err != nil {
			return nil, nil, err
		}
		return pw, pr, nil
	case redirect.KindInherit:
		return inherited, nil, nil
	case redirect.KindDiscard:
		f, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		return f, nil, err
	case redirect.KindWrite:
		f, err := os.OpenFile(r.Path(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		return f, nil, err
	case redirect.KindAppend:
		f, err := os.OpenFile(r.Path(), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		return f, nil, err
	default:
		return nil, nil, &ConfigError{Reason: "unknown redirect " + r.String()}
	}
}

// closeAll closes every non-nil file, attempting all of them even when an
// earlier close fails, and returns the first failure.
func closeAll(files []*os.File) error {
	var first error
	for _, f := range files {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// describeSpawnFailure augments a primitive failure with a cheap probe of
// the program path. When even the probe is denied, the original error is
// replaced by a generic one so the message cannot leak details the caller
// has no right to see.
func describeSpawnFailure(program string, err error) error {
	info, statErr := os.Stat(program)
	switch {
	case statErr == nil && info.IsDir():
		return errors.New("program path is a directory")
	case statErr != nil && errors.Is(statErr, fs.ErrPermission):
		return errors.New("cannot launch program")
	default:
		return err
	}
}
