package stream

import (
	"bytes"
	"io"
	"os"
	"sync"
)

// drainReader reclaims its descriptor with the drain-and-replace protocol.
// One lock covers reads, close and the exit drain, so a user-initiated
// close and the exit-triggered drain can never interleave. At exit, bytes
// still buffered in the pipe are pulled into memory and the descriptor is
// replaced by a finite replay of those stragglers.
type drainReader struct {
	mu   sync.Mutex
	f    *os.File  // nil once the descriptor has been reclaimed
	rest io.Reader // straggler replay; nil means EOF
}

func (r *drainReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f != nil {
		return r.f.Read(p)
	}
	if r.rest == nil {
		return 0, io.EOF
	}
	n, err := r.rest.Read(p)
	if err == io.EOF {
		r.rest = nil
	}
	return n, err
}

func (r *drainReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rest = nil
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

// processExited drains buffered bytes and reclaims the descriptor. It
// blocks if a read currently holds the stream lock; on exit the child's
// pipe end is gone, so such a read unblocks with data or EOF shortly.
func (r *drainReader) processExited() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return
	}
	if stragglers := drainFile(r.f); len(stragglers) > 0 {
		r.rest = bytes.NewReader(stragglers)
	}
	_ = r.f.Close()
	r.f = nil
}

// drainFile reads exactly the bytes currently buffered in the pipe.
func drainFile(f *os.File) []byte {
	var buf []byte
	for {
		n, err := available(f)
		if err != nil || n == 0 {
			return buf
		}
		chunk := make([]byte, n)
		m, err := f.Read(chunk)
		if m > 0 {
			buf = append(buf, chunk[:m]...)
		}
		if err != nil {
			return buf
		}
	}
}
