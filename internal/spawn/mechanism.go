package spawn

import (
	"fmt"
	"os"
	"sync"
)

// mechanism is one strategy for invoking the native process-creation
// primitive. The strategy is selected exactly once per process, at first
// use, and treated as immutable configuration from then on.
type mechanism interface {
	name() string
	start(program string, argv []string, attr *os.ProcAttr) (*os.Process, error)
}

// MechanismEnv names the environment variable that overrides the default
// process-creation mechanism for this host.
const MechanismEnv = "PROCWIRE_SPAWN"

var selectMechanism = sync.OnceValues(func() (mechanism, error) {
	available := platformMechanisms()
	if len(available) == 0 {
		return nil, ErrUnsupportedPlatform
	}
	requested := os.Getenv(MechanismEnv)
	if requested == "" {
		return available[0], nil
	}
	for _, m := range available {
		if m.name() == requested {
			return m, nil
		}
	}
	return nil, fmt.Errorf("mechanism %q: %w", requested, ErrUnsupportedPlatform)
})
