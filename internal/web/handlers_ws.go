package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type wsClientMessage struct {
	Type string `json:"type"`
}

type wsServerMessage struct {
	Type    string `json:"type"` // sessions, status, error
	Event   string `json:"event,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Data    *feed  `json:"data,omitempty"`
	Time    int64  `json:"time"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     allowWSOrigin,
}

func allowWSOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}

type wsConnWriter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSConnWriter(conn *websocket.Conn) *wsConnWriter {
	return &wsConnWriter{conn: conn}
}

func (w *wsConnWriter) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteJSON(v)
}

func (w *wsConnWriter) sessions(f feed) error {
	return w.WriteJSON(wsServerMessage{Type: "sessions", Data: &f, Time: time.Now().Unix()})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.guard(w, r) {
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	changes, cancel := s.sessions.Subscribe()
	defer cancel()

	writer := newWSConnWriter(conn)
	if err := writer.sessions(s.currentFeed()); err != nil {
		return
	}

	// The reader owns the connection's read side and ends the handler when
	// the peer goes away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.readWS(conn, writer)
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			_ = writer.WriteJSON(wsServerMessage{Type: "status", Event: "shutdown", Time: time.Now().Unix()})
			return
		case <-done:
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			if err := writer.sessions(s.currentFeed()); err != nil {
				return
			}
		}
	}
}

func (s *Server) readWS(conn *websocket.Conn, writer *wsConnWriter) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				webLog.Warn("websocket_closed_unexpectedly", slog.String("error", err.Error()))
			}
			return
		}

		var msg wsClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			_ = writer.WriteJSON(wsServerMessage{
				Type:    "error",
				Code:    "INVALID_MESSAGE",
				Message: "invalid json payload",
				Time:    time.Now().Unix(),
			})
			continue
		}

		switch msg.Type {
		case "ping":
			_ = writer.WriteJSON(wsServerMessage{Type: "status", Event: "pong", Time: time.Now().Unix()})
		case "refresh":
			if err := writer.sessions(s.currentFeed()); err != nil {
				return
			}
		default:
			_ = writer.WriteJSON(wsServerMessage{
				Type:    "error",
				Code:    "UNSUPPORTED_MESSAGE",
				Message: "supported message types: ping,refresh",
				Time:    time.Now().Unix(),
			})
		}
	}
}
