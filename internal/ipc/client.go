package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"syscall"
	"time"
)

// Probe reports whether something accepts connections on path.
func Probe(path string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Send delivers m and waits for the daemon to close the connection, so a nil
// error means the message was read and dispatched.
func Send(ctx context.Context, path string, m Message) error {
	payload, err := Encode(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.Type(), err)
	}
	_, err = RoundTrip(ctx, path, payload)
	return err
}

// Request delivers m and returns the daemon's response body.
func Request(ctx context.Context, path string, m Message) ([]byte, error) {
	payload, err := Encode(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type(), err)
	}
	return RoundTrip(ctx, path, payload)
}

// RoundTrip writes a raw payload, half-closes the connection and reads
// until the daemon closes it.
func RoundTrip(ctx context.Context, path string, payload []byte) ([]byte, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOENT) {
			return nil, fmt.Errorf("%w: %s", ErrNotRunning, path)
		}
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		if err := uc.CloseWrite(); err != nil {
			return nil, fmt.Errorf("close write: %w", err)
		}
	}

	resp, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}
