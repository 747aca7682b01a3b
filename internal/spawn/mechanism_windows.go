//go:build windows

package spawn

import "os"

// platformMechanisms lists the spawn strategies for windows hosts. Only
// the portable os.StartProcess path is offered; process-group semantics
// are best effort (see the package documentation).
func platformMechanisms() []mechanism {
	return []mechanism{startProcessMechanism{}}
}

type startProcessMechanism struct{}

func (startProcessMechanism) name() string { return "startprocess" }

func (startProcessMechanism) start(program string, argv []string, attr *os.ProcAttr) (*os.Process, error) {
	return os.StartProcess(program, argv, attr)
}
