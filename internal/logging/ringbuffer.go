package logging

import (
	"bytes"
	"os"
	"sync"
)

// RingBuffer keeps the most recent bytes written to it. It implements
// io.Writer and overwrites the oldest data once full.
type RingBuffer struct {
	mu      sync.Mutex
	buf     []byte
	next    int
	wrapped bool
}

// NewRingBuffer creates a ring buffer holding up to size bytes.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1024 * 1024
	}
	return &RingBuffer{buf: make([]byte, size)}
}

// Write implements io.Writer. It never fails.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(p)
	size := len(rb.buf)
	if n >= size {
		copy(rb.buf, p[n-size:])
		rb.next = 0
		rb.wrapped = true
		return n, nil
	}

	c := copy(rb.buf[rb.next:], p)
	if c < n {
		copy(rb.buf, p[c:])
		rb.wrapped = true
	}
	rb.next = (rb.next + n) % size
	if rb.next == 0 && n > 0 {
		rb.wrapped = true
	}
	return n, nil
}

// Bytes returns the contents oldest first. Once the buffer has wrapped, the
// oldest line is usually truncated, so everything up to the first newline is
// dropped and the result starts on a record boundary.
func (rb *RingBuffer) Bytes() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if !rb.wrapped {
		return append([]byte(nil), rb.buf[:rb.next]...)
	}

	out := make([]byte, 0, len(rb.buf))
	out = append(out, rb.buf[rb.next:]...)
	out = append(out, rb.buf[:rb.next]...)
	if i := bytes.IndexByte(out, '\n'); i >= 0 && i < len(out)-1 {
		out = out[i+1:]
	}
	return out
}

// Len reports how many bytes are currently held.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.wrapped {
		return len(rb.buf)
	}
	return rb.next
}

// DumpToFile writes the buffered contents to path.
func (rb *RingBuffer) DumpToFile(path string) error {
	return os.WriteFile(path, rb.Bytes(), 0o600)
}
