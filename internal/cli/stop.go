package cli

import (
	"context"
	"time"

	"github.com/procwire/procwire/internal/proc"
)

const defaultStopGrace = 5 * time.Second

// stopHandles asks every stage to terminate, waits up to the grace period
// for them to exit, then kills whatever is left. It returns once every
// process has been reaped.
func stopHandles(handles []*proc.Handle, grace time.Duration) {
	if grace <= 0 {
		grace = defaultStopGrace
	}

	for _, h := range handles {
		_ = h.Destroy()
	}

	deadline := time.Now().Add(grace)
	for _, h := range handles {
		if remaining := time.Until(deadline); remaining > 0 && h.WaitTimeout(remaining) {
			continue
		}
		_ = h.DestroyForcibly()
	}

	for _, h := range handles {
		_, _ = h.Wait(context.Background())
	}
}
