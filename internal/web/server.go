package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/starcmd/starcmd/internal/logging"
	"github.com/starcmd/starcmd/internal/session"
)

var webLog = logging.ForComponent(logging.CompWeb)

// Config defines runtime options for the web server.
type Config struct {
	ListenAddr string
	Token      string
}

// SessionSource is the read side of the session store.
type SessionSource interface {
	Snapshot() []session.SessionInfo
	AggregateStatus() session.Status
	Subscribe() (<-chan struct{}, func())
}

// Server serves the session list over HTTP, SSE and WebSocket.
type Server struct {
	cfg        Config
	httpServer *http.Server
	sessions   SessionSource
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewServer creates a web server reading from sessions.
func NewServer(cfg Config, sessions SessionSource) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8421"
	}

	s := &Server{cfg: cfg, sessions: sessions}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           withRecover(mux),
		BaseContext:       func(_ net.Listener) context.Context { return s.baseCtx },
		ErrorLog:          logging.NewStdLogger(logging.CompWeb, slog.LevelWarn),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the configured HTTP handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens and blocks until shutdown or error. Returns nil on graceful shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("web listen %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ln)
}

// Serve accepts on ln until shutdown.
func (s *Server) Serve(ln net.Listener) error {
	webLog.Info("web_listening", slog.String("addr", ln.Addr().String()), slog.Bool("token", s.cfg.Token != ""))
	err := s.httpServer.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	// Unblock SSE and WS handlers first; they never go idle on their own.
	s.cancelBase()

	err := s.httpServer.Shutdown(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if closeErr := s.httpServer.Close(); closeErr != nil {
			return fmt.Errorf("graceful shutdown timed out and force close failed: %w", closeErr)
		}
		return nil
	}
	return err
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				webLog.Error("panic",
					slog.String("recover", fmt.Sprintf("%v", rec)),
					slog.String("path", r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) String() string {
	return fmt.Sprintf("web-server(addr=%s, token=%t)", s.cfg.ListenAddr, s.cfg.Token != "")
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339),
	})
}
