//go:build !windows

package stream

import (
	"os"

	"golang.org/x/sys/unix"
)

// available reports how many bytes can be read from the pipe without
// blocking.
func available(f *os.File) (int, error) {
	rc, err := f.SyscallConn()
	if err != nil {
		return 0, err
	}
	var n int
	var ioctlErr error
	if err := rc.Control(func(fd uintptr) {
		n, ioctlErr = unix.IoctlGetInt(int(fd), unix.TIOCINQ)
	}); err != nil {
		return 0, err
	}
	return n, ioctlErr
}
