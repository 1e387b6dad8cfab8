package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/starcmd/starcmd/internal/logging"
)

var ipcLog = logging.ForComponent(logging.CompIPC)

// Handler applies one decoded message. A non-nil response is written back to
// the peer before the connection is closed.
type Handler interface {
	HandleMessage(ctx context.Context, msg Message) ([]byte, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg Message) ([]byte, error)

// HandleMessage calls f.
func (f HandlerFunc) HandleMessage(ctx context.Context, msg Message) ([]byte, error) {
	return f(ctx, msg)
}

// State is the lifecycle position of a Server.
type State int32

const (
	StateUnbound State = iota
	StateListening
	StateAccepting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateListening:
		return "listening"
	case StateAccepting:
		return "accepting"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

const (
	DefaultMaxMessageBytes = 1 << 20
	DefaultProbeTimeout    = 500 * time.Millisecond
	DefaultSocketMode      = os.FileMode(0o600)
)

// Options tunes a Server. Zero values select the defaults.
type Options struct {
	// Mode is applied to the socket file after bind.
	Mode os.FileMode

	// MaxMessageBytes bounds one request; larger payloads are malformed.
	MaxMessageBytes int64

	// ReadTimeout bounds the read phase of one connection. Zero means no limit.
	ReadTimeout time.Duration

	// MaxConcurrent caps connections handled at once. Zero means no cap.
	MaxConcurrent int64

	// ProbeTimeout bounds the liveness dial against an existing socket file.
	ProbeTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Mode == 0 {
		o.Mode = DefaultSocketMode
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = DefaultProbeTimeout
	}
	return o
}

// Server owns the Unix socket at a fixed path and feeds every request to a Handler.
type Server struct {
	path    string
	handler Handler
	opts    Options

	mu       sync.Mutex
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc

	state      atomic.Int32
	running    atomic.Bool
	acceptDone chan struct{}
	acceptErr  error
	conns      sync.WaitGroup

	sem         *semaphore.Weighted
	warnLimiter *rate.Limiter
}

// NewServer creates an unbound server for path.
func NewServer(path string, handler Handler, opts Options) *Server {
	opts = opts.withDefaults()
	s := &Server{
		path:        path,
		handler:     handler,
		opts:        opts,
		warnLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	if opts.MaxConcurrent > 0 {
		s.sem = semaphore.NewWeighted(opts.MaxConcurrent)
	}
	return s
}

// Path returns the socket path.
func (s *Server) Path() string { return s.path }

// State reports the current lifecycle state.
func (s *Server) State() State { return State(s.state.Load()) }

// Start claims the socket path and begins accepting in the background.
// It fails with ErrAlreadyRunning when a live peer answers on the path, and
// with ErrBindFailed or ErrListenFailed on OS errors. Cancelling ctx stops
// accepting; Stop must still be called to release the path.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != StateUnbound {
		return fmt.Errorf("ipc: server on %s already started", s.path)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("%w: create socket dir: %w", ErrBindFailed, err)
	}
	if err := s.claimPath(); err != nil {
		return err
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return classifyListenError(s.path, err)
	}
	if err := os.Chmod(s.path, s.opts.Mode); err != nil {
		ipcLog.Warn("socket_chmod_failed", slog.String("path", s.path), slog.String("error", err.Error()))
	}

	s.listener = ln
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.acceptDone = make(chan struct{})
	s.running.Store(true)
	s.state.Store(int32(StateListening))

	// Parent cancellation unblocks Accept the same way Stop does.
	context.AfterFunc(s.ctx, func() { _ = ln.Close() })

	ipcLog.Info("socket_listening", slog.String("path", s.path))
	go s.acceptLoop(ln)
	return nil
}

// claimPath clears a stale socket file left by a crashed instance.
func (s *Server) claimPath() error {
	fi, err := os.Lstat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: stat %s: %w", ErrBindFailed, s.path, err)
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%w: %s exists and is not a socket", ErrBindFailed, s.path)
	}
	if Probe(s.path, s.opts.ProbeTimeout) {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, s.path)
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove stale socket: %w", ErrBindFailed, err)
	}
	ipcLog.Info("stale_socket_removed", slog.String("path", s.path))
	return nil
}

func classifyListenError(path string, err error) error {
	if errors.Is(err, syscall.EADDRINUSE) {
		return fmt.Errorf("%w: %s: %w", ErrAlreadyRunning, path, err)
	}
	var se *os.SyscallError
	if errors.As(err, &se) && se.Syscall == "listen" {
		return fmt.Errorf("%w: %s: %w", ErrListenFailed, path, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrBindFailed, path, err)
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer close(s.acceptDone)
	s.state.CompareAndSwap(int32(StateListening), int32(StateAccepting))

	var backoff time.Duration
	for s.running.Load() {
		conn, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			if isTemporary(err) {
				backoff = nextBackoff(backoff)
				ipcLog.Warn("accept_retry", slog.String("error", err.Error()), slog.Duration("backoff", backoff))
				select {
				case <-time.After(backoff):
					continue
				case <-s.ctx.Done():
					return
				}
			}
			ipcLog.Error("accept_failed", slog.String("error", err.Error()))
			s.acceptErr = fmt.Errorf("%w: %s: %w", ErrAcceptFailed, s.path, err)
			_ = ln.Close()
			return
		}
		backoff = 0

		if s.sem != nil {
			if err := s.sem.Acquire(s.ctx, 1); err != nil {
				_ = conn.Close()
				return
			}
		}
		s.conns.Add(1)
		go s.serveConn(conn)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 10 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}

func isTemporary(err error) bool {
	return errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EINTR) ||
		errors.Is(err, syscall.EAGAIN)
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.conns.Done()
	if s.sem != nil {
		defer s.sem.Release(1)
	}
	defer conn.Close()

	connID := uuid.NewString()
	logging.Aggregate(logging.CompIPC, "conn_accepted", slog.String("path", s.path))

	if s.opts.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	}
	payload, err := readPayload(conn, s.opts.MaxMessageBytes)
	if err != nil {
		s.warn("read_failed", connID, err)
		return
	}
	if len(payload) == 0 {
		// Liveness probes connect and hang up without a payload.
		ipcLog.Debug("empty_connection", slog.String("conn", connID))
		return
	}

	msg, err := Parse(payload)
	if err != nil {
		s.warn("parse_failed", connID, err)
		return
	}

	if !s.running.Load() {
		ipcLog.Debug("dropped_after_stop", slog.String("conn", connID), slog.String("type", string(msg.Type())))
		return
	}

	resp, err := s.handler.HandleMessage(s.ctx, msg)
	if err != nil {
		ipcLog.Warn("handler_failed",
			slog.String("conn", connID),
			slog.String("type", string(msg.Type())),
			slog.String("error", err.Error()))
		return
	}
	if len(resp) == 0 {
		return
	}
	if _, err := conn.Write(resp); err != nil {
		ipcLog.Warn("response_write_failed", slog.String("conn", connID), slog.String("error", err.Error()))
	}
}

// readPayload buffers the whole request; the peer signals the end by closing
// its write side.
func readPayload(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, malformed("payload exceeds %d bytes", limit)
	}
	return data, nil
}

// warn logs protocol problems at a bounded rate and counts the overflow.
func (s *Server) warn(event, connID string, err error) {
	if s.warnLimiter.Allow() {
		ipcLog.Warn(event, slog.String("conn", connID), slog.String("error", err.Error()))
		return
	}
	logging.Aggregate(logging.CompIPC, event)
}

// Stop closes the listener, waits for the accept loop to exit and removes
// the socket file. Handlers already running are left to finish; see Wait.
// Stop is idempotent.
func (s *Server) Stop() error {
	s.mu.Lock()
	switch s.State() {
	case StateStopped:
		s.mu.Unlock()
		return nil
	case StateUnbound:
		s.state.Store(int32(StateStopped))
		s.mu.Unlock()
		return nil
	}

	s.running.Store(false)
	s.cancel()
	var closeErr error
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		closeErr = err
	}
	done := s.acceptDone
	s.mu.Unlock()

	<-done

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		ipcLog.Warn("socket_remove_failed", slog.String("path", s.path), slog.String("error", err.Error()))
	}
	s.state.Store(int32(StateStopped))
	ipcLog.Info("socket_stopped", slog.String("path", s.path))
	return closeErr
}

// Done is closed when the accept loop exits, whether through Stop, context
// cancellation or a fatal accept error. It is nil before Start.
func (s *Server) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acceptDone
}

// Err returns the fatal accept error once Done is closed, or nil after a
// clean stop.
func (s *Server) Err() error {
	select {
	case <-s.Done():
		return s.acceptErr
	default:
		return nil
	}
}

// Wait blocks until every accepted connection has been handled.
func (s *Server) Wait() {
	s.conns.Wait()
}
