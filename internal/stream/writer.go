package stream

import (
	"os"
	"sync"
)

// pipeWriter feeds the child's standard input. Output-direction streams
// need no draining: on exit the descriptor is closed under the stream lock
// and the sink is replaced by one that fails every subsequent write.
type pipeWriter struct {
	mu sync.Mutex
	f  *os.File // nil once closed or reclaimed
}

func (w *pipeWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return 0, ErrClosed
	}
	return w.f.Write(p)
}

func (w *pipeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

func (w *pipeWriter) processExited() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
}
