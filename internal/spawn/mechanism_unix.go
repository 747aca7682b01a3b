//go:build !windows

package spawn

import (
	"os"
	"syscall"
)

// platformMechanisms lists the equivalent spawn strategies for unix hosts,
// preferred first. Both place the child in its own process group so that
// termination signals reach the whole tree.
func platformMechanisms() []mechanism {
	return []mechanism{startProcessMechanism{}, forkExecMechanism{}}
}

// startProcessMechanism spawns through os.StartProcess, the portable
// fork+exec wrapper.
type startProcessMechanism struct{}

func (startProcessMechanism) name() string { return "startprocess" }

func (startProcessMechanism) start(program string, argv []string, attr *os.ProcAttr) (*os.Process, error) {
	attr.Sys = &syscall.SysProcAttr{Setpgid: true}
	return os.StartProcess(program, argv, attr)
}

// forkExecMechanism spawns through the raw syscall layer. Behaviourally
// identical to startProcessMechanism; selectable via PROCWIRE_SPAWN for
// hosts where the os-level wrapper misbehaves.
type forkExecMechanism struct{}

func (forkExecMechanism) name() string { return "forkexec" }

func (forkExecMechanism) start(program string, argv []string, attr *os.ProcAttr) (*os.Process, error) {
	files := make([]uintptr, len(attr.Files))
	for i, f := range attr.Files {
		files[i] = f.Fd()
	}
	pid, err := syscall.ForkExec(program, argv, &syscall.ProcAttr{
		Dir:   attr.Dir,
		Env:   attr.Env,
		Files: files,
		Sys:   &syscall.SysProcAttr{Setpgid: true},
	})
	if err != nil {
		return nil, err
	}
	return os.FindProcess(pid)
}
