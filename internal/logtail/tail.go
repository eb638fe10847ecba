// Package logtail keeps the most recent lines a daemon has logged so they
// can be served to clients without access to its stderr.
package logtail

import (
	"bytes"
	"sync"
)

// MaxLineLength bounds a stored line; longer lines are cut.
const MaxLineLength = 4096

// Tail is an io.Writer holding the last N complete lines written to it.
type Tail struct {
	mu      sync.Mutex
	lines   []string
	next    int
	wrapped bool
	pending []byte
}

// New returns a tail holding at most n lines.
func New(n int) *Tail {
	if n < 1 {
		n = 1
	}
	return &Tail{lines: make([]string, n)}
}

// Write stores each complete line in p. Bytes after the last newline are
// held until the line is finished.
func (t *Tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data := append(t.pending, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		t.push(data[:i])
		data = data[i+1:]
	}
	if len(data) > MaxLineLength {
		t.push(data)
		data = nil
	}
	t.pending = append(t.pending[:0:0], data...)
	return len(p), nil
}

func (t *Tail) push(line []byte) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength]
	}
	t.lines[t.next] = string(line)
	t.next++
	if t.next == len(t.lines) {
		t.next = 0
		t.wrapped = true
	}
}

// Last returns up to n of the most recent lines, oldest first. n <= 0
// returns everything held.
func (t *Tail) Last(n int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	held := t.next
	if t.wrapped {
		held = len(t.lines)
	}
	if n <= 0 || n > held {
		n = held
	}
	out := make([]string, n)
	start := t.next - n
	for i := range out {
		idx := start + i
		if idx < 0 {
			idx += len(t.lines)
		}
		out[i] = t.lines[idx]
	}
	return out
}
