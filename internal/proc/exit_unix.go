//go:build !windows

package proc

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// exitCode maps a wait status onto the host convention: the exit code for
// normal exits, 128 plus the signal number for signal deaths.
func exitCode(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}

// terminate signals the child's process group. A vanished group is not an
// error: the process may have exited between the liveness check and the
// signal being delivered by the kernel.
func terminate(pid int, force bool) error {
	sig := unix.SIGTERM
	if force {
		sig = unix.SIGKILL
	}
	if err := unix.Kill(-pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}
