//go:build windows

package proc

import (
	"errors"
	"os"
)

func exitCode(state *os.ProcessState) int {
	return state.ExitCode()
}

// terminate signals only the direct child on windows; without job objects
// there is no kernel-enforced process group to deliver to.
func terminate(pid int, force bool) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if !force {
		if err := p.Signal(os.Interrupt); err == nil || errors.Is(err, os.ErrProcessDone) {
			return nil
		}
	}
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
