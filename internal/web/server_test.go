package web

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starcmd/starcmd/internal/ipc"
	"github.com/starcmd/starcmd/internal/session"
)

func newTestStore(t *testing.T) *session.Store {
	t.Helper()
	store := session.NewStore()
	store.Register(&ipc.RegisterMessage{SessionID: "sess-1", Tmux: "dev:editor:%1", Cwd: "/src/one"})
	store.Register(&ipc.RegisterMessage{SessionID: "sess-2", Tmux: "dev:tests:%2", Cwd: "/src/two"})
	return store
}

func TestHealthzEndpoint(t *testing.T) {
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0"}, session.NewStore())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"ok":true`) {
		t.Fatalf("expected health response to contain ok=true, got: %s", rr.Body.String())
	}
}

func TestHealthzMethodNotAllowed(t *testing.T) {
	srv := NewServer(Config{}, session.NewStore())

	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rr.Code)
	}
}

func TestSessionsEndpoint(t *testing.T) {
	store := newTestStore(t)
	store.Notify(&ipc.NotificationMessage{SessionID: "sess-1", NotificationType: "permission_prompt", Message: "allow?"})
	srv := NewServer(Config{}, store)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	infos, err := session.DecodeSnapshot(rr.Body.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(infos))
	}
	if infos[0].SessionID != "sess-1" || infos[0].Status != session.StatusBlocked {
		t.Fatalf("expected notified session first and blocked, got %+v", infos[0])
	}
}

func TestStatusEndpoint(t *testing.T) {
	store := newTestStore(t)
	store.Notify(&ipc.NotificationMessage{SessionID: "sess-2", NotificationType: "idle_prompt"})
	srv := NewServer(Config{}, store)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	var resp statusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != session.StatusIdle || resp.Sessions != 2 || resp.Idle != 1 || resp.Blocked != 0 {
		t.Fatalf("unexpected status response: %+v", resp)
	}
}

func TestTokenAuth(t *testing.T) {
	srv := NewServer(Config{Token: "secret-token"}, newTestStore(t))

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"missing", "/api/sessions", "", http.StatusUnauthorized},
		{"wrong query", "/api/sessions?token=nope", "", http.StatusUnauthorized},
		{"query", "/api/sessions?token=secret-token", "", http.StatusOK},
		{"bearer", "/api/sessions", "Bearer secret-token", http.StatusOK},
		{"bad scheme", "/api/sessions", "Basic secret-token", http.StatusUnauthorized},
		{"healthz is open", "/healthz", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("expected status %d, got %d (%s)", tt.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestRecoverMiddleware(t *testing.T) {
	h := withRecover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rr.Code)
	}
}

func readSSEEvent(r *bufio.Reader) (string, string, error) {
	var event, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", "", err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if event != "" || data != "" {
				return event, data, nil
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEventsStreamPushesChanges(t *testing.T) {
	store := newTestStore(t)
	srv := NewServer(Config{}, store)
	testServer := httptest.NewServer(srv.Handler())
	defer testServer.Close()

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(testServer.URL + "/events")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Fatalf("expected text/event-stream content-type, got: %s", ct)
	}

	reader := bufio.NewReader(resp.Body)
	event, payload, err := readSSEEvent(reader)
	if err != nil {
		t.Fatalf("failed to read first event: %v", err)
	}
	var first feed
	if err := json.Unmarshal([]byte(payload), &first); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if event != "sessions" || len(first.Sessions) != 2 || first.Status != session.StatusWorking {
		t.Fatalf("unexpected first event %q: %+v", event, first)
	}

	store.Notify(&ipc.NotificationMessage{SessionID: "sess-2", NotificationType: "permission_prompt", Message: "ok?"})

	_, payload, err = readSSEEvent(reader)
	if err != nil {
		t.Fatalf("failed to read change event: %v", err)
	}
	var next feed
	if err := json.Unmarshal([]byte(payload), &next); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if next.Status != session.StatusBlocked || next.Sessions[0].SessionID != "sess-2" {
		t.Fatalf("expected blocked feed led by sess-2, got %+v", next)
	}
}

func TestServeAndShutdown(t *testing.T) {
	srv := NewServer(Config{}, session.NewStore())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return")
	}
}
