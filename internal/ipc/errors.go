package ipc

import (
	"errors"
	"fmt"
)

// Protocol errors. They only ever affect the one connection that sent the payload.
var (
	// ErrMalformed covers invalid JSON and missing or mistyped fields.
	ErrMalformed = errors.New("malformed message")

	// ErrUnknownMessageType matches any *UnknownTypeError.
	ErrUnknownMessageType = errors.New("unknown message type")
)

// Socket errors. They are fatal to Server.Start.
var (
	ErrAlreadyRunning = errors.New("another instance is already listening")
	ErrBindFailed     = errors.New("bind failed")
	ErrListenFailed   = errors.New("listen failed")

	// ErrAcceptFailed is reported by Server.Err when the accept loop died
	// on a non-temporary error.
	ErrAcceptFailed = errors.New("accept failed")
)

// UnknownTypeError carries the unrecognized discriminant.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownMessageType, e.Type)
}

// Is makes errors.Is(err, ErrUnknownMessageType) hold.
func (e *UnknownTypeError) Is(target error) bool {
	return target == ErrUnknownMessageType
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// ErrNotRunning is returned by the client when nothing listens on the path.
var ErrNotRunning = errors.New("daemon is not running")
