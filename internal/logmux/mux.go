// Package logmux fans in the output streams of pipeline stages and
// delivers them as line-oriented entries over one bounded channel.
package logmux

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"time"
)

// Stream sources attached to the mux.
const (
	SourceStdout = "stdout"
	SourceStderr = "stderr"
	SourceSystem = "system"
)

// Entry is one line produced by a stage, stamped and levelled for
// rendering.
type Entry struct {
	Timestamp time.Time
	Stage     string
	Source    string
	Level     string
	Message   string
}

// Mux fans in log lines from multiple stages and delivers them via a
// bounded channel. When downstream consumers cannot keep up and the
// output buffer would overflow, the mux drops entries and emits a
// synthesized warning to surface the number of discarded lines.
type Mux struct {
	out chan Entry

	mu     sync.Mutex
	drops  map[string]int
	inputs sync.WaitGroup
}

// New constructs a mux backed by a channel of the provided size. A size
// of zero results in a minimally buffered channel.
func New(size int) *Mux {
	if size <= 0 {
		size = 1
	}
	return &Mux{
		out:   make(chan Entry, size),
		drops: make(map[string]int),
	}
}

// Output exposes the muxed entry channel.
func (m *Mux) Output() <-chan Entry {
	return m.out
}

// Attach registers a stage output stream. The mux consumes lines until
// the reader reports EOF; for pipe-backed streams that happens when the
// stage exits and its descriptor is reclaimed.
func (m *Mux) Attach(stage, source string, r io.Reader) {
	if r == nil {
		return
	}
	m.inputs.Add(1)
	go func() {
		defer m.inputs.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			m.deliver(Entry{
				Timestamp: time.Now(),
				Stage:     stage,
				Source:    source,
				Level:     levelFor(source),
				Message:   scanner.Text(),
			})
		}
	}()
}

// Announce injects a synthesized system entry, bypassing none of the
// drop accounting.
func (m *Mux) Announce(stage, message string) {
	m.deliver(Entry{
		Timestamp: time.Now(),
		Stage:     stage,
		Source:    SourceSystem,
		Level:     "info",
		Message:   message,
	})
}

// Close waits for all attached streams to be drained, emits any pending
// drop metadata, and closes the output channel.
func (m *Mux) Close() {
	m.inputs.Wait()
	m.flushDrops()
	close(m.out)
}

func (m *Mux) deliver(e Entry) {
	if !m.flushPending(e.Stage) {
		m.recordDrops(e.Stage, 1)
		return
	}
	if m.trySend(e) {
		return
	}
	m.recordDrops(e.Stage, 1)
}

func (m *Mux) flushPending(stage string) bool {
	for {
		count := m.takeDrops(stage)
		if count == 0 {
			return true
		}
		if m.trySend(dropEntry(stage, count)) {
			continue
		}
		m.recordDrops(stage, count)
		return false
	}
}

func (m *Mux) takeDrops(stage string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := m.drops[stage]
	if count != 0 {
		delete(m.drops, stage)
	}
	return count
}

func (m *Mux) recordDrops(stage string, count int) {
	if count <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drops[stage] += count
}

func (m *Mux) flushDrops() {
	m.mu.Lock()
	pending := m.drops
	m.drops = make(map[string]int)
	m.mu.Unlock()
	for stage, count := range pending {
		if count > 0 {
			m.out <- dropEntry(stage, count)
		}
	}
}

func (m *Mux) trySend(e Entry) bool {
	select {
	case m.out <- e:
		return true
	default:
		return false
	}
}

func levelFor(source string) string {
	if source == SourceStderr {
		return "warn"
	}
	return "info"
}

func dropEntry(stage string, count int) Entry {
	return Entry{
		Timestamp: time.Now(),
		Stage:     stage,
		Source:    SourceSystem,
		Level:     "warn",
		Message:   fmt.Sprintf("dropped=%d", count),
	}
}
