package logging

import (
	"bytes"
	"context"
	"log"
	"log/slog"
	"strings"
)

// StdlogWriter adapts libraries that only accept a *log.Logger (net/http's
// ErrorLog, for one) to the structured logger. Each Write is one record.
type StdlogWriter struct {
	logger *slog.Logger
	level  slog.Level
}

// NewStdlogWriter returns a writer logging at level under component.
func NewStdlogWriter(component string, level slog.Level) *StdlogWriter {
	return &StdlogWriter{logger: ForComponent(component), level: level}
}

// NewStdLogger wraps NewStdlogWriter in a *log.Logger with no prefix or flags.
func NewStdLogger(component string, level slog.Level) *log.Logger {
	return log.New(NewStdlogWriter(component, level), "", 0)
}

// Write implements io.Writer.
func (w *StdlogWriter) Write(p []byte) (int, error) {
	n := len(p)
	msg := string(bytes.TrimSpace(p))
	if msg == "" {
		return n, nil
	}
	msg = stripLogTimestamp(msg)

	// "http: TLS handshake error ..." -> origin "http"
	var attrs []any
	if i := strings.Index(msg, ": "); i > 0 && i < 16 && !strings.ContainsAny(msg[:i], " /") {
		attrs = append(attrs, slog.String("origin", msg[:i]))
		msg = msg[i+2:]
	}
	w.logger.Log(context.Background(), w.level, msg, attrs...)
	return n, nil
}

// stripLogTimestamp removes the "HH:MM:SS " or "HH:MM:SS.ffffff " prefix
// added when the std logger still carries time flags.
func stripLogTimestamp(s string) string {
	if len(s) > 16 && s[2] == ':' && s[5] == ':' && s[8] == '.' && s[15] == ' ' {
		return s[16:]
	}
	if len(s) > 9 && s[2] == ':' && s[5] == ':' && s[8] == ' ' {
		return s[9:]
	}
	return s
}
