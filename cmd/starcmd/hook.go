package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/starcmd/starcmd/internal/ipc"
	"github.com/starcmd/starcmd/internal/logging"
	"github.com/starcmd/starcmd/internal/session"
	"github.com/starcmd/starcmd/internal/tmux"
)

var hookLog = logging.ForComponent(logging.CompHook)

// standaloneLocation is sent when the hook runs outside tmux. It never
// parses as a location, so the daemon ignores the registration.
const standaloneLocation = "standalone"

// transcriptTailBytes bounds how much of the transcript is scanned for the
// last assistant message.
const transcriptTailBytes = 256 * 1024

// hookPayload is the JSON the assistant writes to a hook's stdin. Only the
// fields starcmd uses are decoded.
type hookPayload struct {
	HookEventName    string `json:"hook_event_name"`
	SessionID        string `json:"session_id"`
	Cwd              string `json:"cwd"`
	Source           string `json:"source"`
	Message          string `json:"message"`
	NotificationType string `json:"notification_type"`
	Reason           string `json:"reason"`
	TranscriptPath   string `json:"transcript_path"`
}

// handleHook forwards one hook event to the daemon. It always exits 0 so a
// missing daemon never blocks the assistant.
func handleHook(args []string) {
	fs := flag.NewFlagSet("hook", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	socket := fs.String("socket", "", "Socket path (overrides config)")
	if err := fs.Parse(args); err != nil {
		return
	}

	data, err := io.ReadAll(io.LimitReader(os.Stdin, 1<<20))
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return
	}
	var payload hookPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}

	cfg := loadConfig()
	path := cfg.Socket.Path
	if *socket != "" {
		path = *socket
	}

	ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
	defer cancel()

	location := standaloneLocation
	if needsLocation(payload.HookEventName) {
		location = resolveLocation(ctx, tmux.NewExecRunner(cfg.Tmux.Binary), cfg.Sessions.Format())
	}

	msg := buildHookMessage(payload, location, time.Now())
	if msg == nil {
		return
	}
	if n, ok := msg.(*ipc.NotificationMessage); ok && payload.TranscriptPath != "" {
		if last, ok := lastAssistantMessage(payload.TranscriptPath); ok {
			n.LastMessage = &last
		}
	}

	if err := ipc.Send(ctx, path, msg); err != nil && !errors.Is(err, ipc.ErrNotRunning) {
		hookLog.Debug("hook_send_failed", slog.String("event", payload.HookEventName), slog.String("error", err.Error()))
	}
}

func needsLocation(event string) bool {
	return event == "SessionStart" || event == "Notification"
}

// resolveLocation renders the hook's pane as a wire location, or
// standaloneLocation outside tmux.
func resolveLocation(ctx context.Context, r tmux.Runner, format session.LocationFormat) string {
	pane, err := tmux.PaneFromEnv(ctx, r)
	if err != nil {
		return standaloneLocation
	}
	return pane.Wire(format)
}

// buildHookMessage maps an assistant hook event to a wire message. Events
// starcmd does not track return nil.
func buildHookMessage(p hookPayload, location string, now time.Time) ipc.Message {
	if p.SessionID == "" {
		return nil
	}
	ts := now.Unix()

	switch p.HookEventName {
	case "SessionStart":
		return &ipc.RegisterMessage{
			SessionID: p.SessionID,
			Tmux:      location,
			Cwd:       p.Cwd,
			Source:    p.Source,
			Timestamp: ts,
		}
	case "Notification":
		kind := p.NotificationType
		if kind == "" {
			kind = inferNotificationKind(p.Message)
		}
		return &ipc.NotificationMessage{
			SessionID:        p.SessionID,
			Tmux:             location,
			Message:          p.Message,
			NotificationType: kind,
			Timestamp:        ts,
		}
	case "UserPromptSubmit", "PostToolUse":
		return &ipc.ClearMessage{SessionID: p.SessionID, Timestamp: ts}
	case "SessionEnd":
		return &ipc.DeregisterMessage{SessionID: p.SessionID, Reason: p.Reason, Timestamp: ts}
	default:
		return nil
	}
}

// inferNotificationKind classifies notifications from assistant versions
// that send only the message text.
func inferNotificationKind(message string) string {
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "permission"):
		return string(session.KindPermissionPrompt)
	case strings.Contains(m, "waiting for your input"):
		return string(session.KindIdlePrompt)
	default:
		return ""
	}
}

// transcriptLine is one JSONL entry of an assistant transcript.
type transcriptLine struct {
	Type    string `json:"type"`
	Message struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

// lastAssistantMessage returns the text of the last assistant turn in the
// transcript's tail.
func lastAssistantMessage(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Size() > transcriptTailBytes {
		if _, err := f.Seek(-transcriptTailBytes, io.SeekEnd); err != nil {
			return "", false
		}
	}

	var last string
	found := false
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), transcriptTailBytes)
	for sc.Scan() {
		var line transcriptLine
		if json.Unmarshal(sc.Bytes(), &line) != nil {
			continue // also skips a partial first line after Seek
		}
		if line.Type != "assistant" && line.Message.Role != "assistant" {
			continue
		}
		if text := contentText(line.Message.Content); text != "" {
			last, found = text, true
		}
	}
	return last, found
}

// contentText flattens a message content that is either a string or a list
// of typed blocks.
func contentText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if json.Unmarshal(raw, &blocks) != nil {
		return ""
	}
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && strings.TrimSpace(b.Text) != "" {
			parts = append(parts, strings.TrimSpace(b.Text))
		}
	}
	return strings.Join(parts, "\n")
}
