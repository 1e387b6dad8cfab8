package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRingBufferBasicWrite(t *testing.T) {
	rb := NewRingBuffer(64)

	n, err := rb.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 5 {
		t.Errorf("expected n=5, got %d", n)
	}
	if got := string(rb.Bytes()); got != "hello" {
		t.Errorf("expected 'hello', got %q", got)
	}
	if rb.Len() != 5 {
		t.Errorf("expected Len=5, got %d", rb.Len())
	}
}

func TestRingBufferWrapKeepsNewest(t *testing.T) {
	rb := NewRingBuffer(10)

	_, _ = rb.Write([]byte("abcdefghij"))
	_, _ = rb.Write([]byte("12345"))

	if got := string(rb.Bytes()); got != "fghij12345" {
		t.Errorf("expected 'fghij12345', got %q", got)
	}
	if rb.Len() != 10 {
		t.Errorf("expected Len=10, got %d", rb.Len())
	}
}

func TestRingBufferOversizedWrite(t *testing.T) {
	rb := NewRingBuffer(4)
	_, _ = rb.Write([]byte("0123456789"))
	if got := string(rb.Bytes()); got != "6789" {
		t.Errorf("expected '6789', got %q", got)
	}
}

func TestRingBufferDropsTruncatedLine(t *testing.T) {
	rb := NewRingBuffer(16)
	_, _ = rb.Write([]byte("first-line\n"))
	_, _ = rb.Write([]byte("second\nthird\n"))

	// 24 bytes written into 16: only "ne\n" of the first line survives.
	if got := string(rb.Bytes()); got != "second\nthird\n" {
		t.Errorf("expected 'second\\nthird\\n', got %q", got)
	}
}

func TestRingBufferDumpToFile(t *testing.T) {
	rb := NewRingBuffer(32)
	_, _ = rb.Write([]byte("line one\n"))

	path := filepath.Join(t.TempDir(), "dump.log")
	if err := rb.DumpToFile(path); err != nil {
		t.Fatalf("DumpToFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	if string(data) != "line one\n" {
		t.Errorf("unexpected dump %q", data)
	}
}
