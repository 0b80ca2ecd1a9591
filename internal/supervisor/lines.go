package supervisor

import (
	"bytes"
	"sync"
)

// maxLineBytes bounds one forwarded line. Longer output is split.
const maxLineBytes = 64 * 1024

// lineWriter turns a worker output stream into LineFunc calls.
type lineWriter struct {
	mu     sync.Mutex
	stream Stream
	lines  LineFunc
	buf    []byte
}

func newLineWriter(stream Stream, lines LineFunc) *lineWriter {
	return &lineWriter{stream: stream, lines: lines}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(p)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			w.buf = append(w.buf, p...)
			break
		}
		w.buf = append(w.buf, p[:i]...)
		w.emitLocked()
		p = p[i+1:]
	}
	for len(w.buf) >= maxLineBytes {
		w.lines(w.stream, string(w.buf[:maxLineBytes]))
		w.buf = append(w.buf[:0], w.buf[maxLineBytes:]...)
	}
	return n, nil
}

// flush emits a trailing line that had no newline.
func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emitLocked()
	}
}

func (w *lineWriter) emitLocked() {
	line := bytes.TrimSuffix(w.buf, []byte{'\r'})
	w.lines(w.stream, string(line))
	w.buf = w.buf[:0]
}
