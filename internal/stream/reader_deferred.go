package stream

import (
	"bytes"
	"io"
	"os"
	"sync"
)

// deferredReader reclaims its descriptor with the deferred-close protocol.
// Every blocking operation raises an in-flight counter before touching the
// descriptor and lowers it afterwards; a close issued while operations are
// in flight only marks the close as pending, and the operation that lowers
// the counter to zero performs the real close. Close therefore never
// blocks behind a stuck read and the descriptor is closed exactly once.
type deferredReader struct {
	mu sync.Mutex

	f        *os.File
	inFlight int
	pending  bool // close requested while operations were in flight

	fdClosed   bool // descriptor reclaimed
	userClosed bool // Close observed; the stream serves no further data
	drained    bool // exit drain finished or aborted

	rest *bytes.Reader // straggler replay populated by the exit drain
}

// acquire registers an in-flight operation. ok is false when the
// descriptor is no longer usable and the caller must fall back to the
// replay buffer.
func (r *deferredReader) acquire() (f *os.File, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fdClosed || r.userClosed || r.drained {
		return nil, false
	}
	r.inFlight++
	return r.f, true
}

// release ends an in-flight operation and performs a pending close when it
// was the last one out.
func (r *deferredReader) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight--
	if r.inFlight == 0 && r.pending && !r.fdClosed {
		_ = r.f.Close()
		r.fdClosed = true
		r.pending = false
	}
}

func (r *deferredReader) Read(p []byte) (int, error) {
	f, ok := r.acquire()
	if !ok {
		return r.readRest(p)
	}
	defer r.release()
	return f.Read(p)
}

func (r *deferredReader) readRest(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.userClosed || r.rest == nil {
		return 0, io.EOF
	}
	n, err := r.rest.Read(p)
	if err == io.EOF {
		r.rest = nil
	}
	return n, err
}

// Close is non-blocking and idempotent. If operations are in flight the
// descriptor close is deferred to the last of them.
func (r *deferredReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userClosed = true
	r.rest = nil
	if r.fdClosed {
		return nil
	}
	if r.inFlight > 0 {
		r.pending = true
		return nil
	}
	r.fdClosed = true
	return r.f.Close()
}

// processExited drains buffered bytes under the counter discipline, then
// arranges for the descriptor to be reclaimed. The drain loop re-checks
// validity on every iteration and aborts, discarding partial data, when a
// concurrent close has invalidated the stream.
func (r *deferredReader) processExited() {
	r.mu.Lock()
	if r.fdClosed || r.userClosed || r.pending || r.drained {
		r.drained = true
		r.mu.Unlock()
		return
	}
	r.inFlight++
	f := r.f
	r.mu.Unlock()

	var stragglers []byte
	aborted := false
	for {
		r.mu.Lock()
		invalid := r.userClosed || r.pending
		r.mu.Unlock()
		if invalid {
			aborted = true
			break
		}
		n, err := available(f)
		if err != nil || n == 0 {
			break
		}
		chunk := make([]byte, n)
		m, readErr := f.Read(chunk)
		if m > 0 {
			stragglers = append(stragglers, chunk[:m]...)
		}
		if readErr != nil {
			break
		}
	}

	r.mu.Lock()
	r.drained = true
	if !aborted && len(stragglers) > 0 && !r.userClosed {
		r.rest = bytes.NewReader(stragglers)
	}
	r.inFlight--
	if r.inFlight == 0 {
		if !r.fdClosed {
			_ = r.f.Close()
			r.fdClosed = true
			r.pending = false
		}
	} else if !r.fdClosed {
		// Readers are still blocked on the descriptor; the last one out
		// closes it.
		r.pending = true
	}
	r.mu.Unlock()
}
