package tmux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/starcmd/starcmd/internal/logging"
	"github.com/starcmd/starcmd/internal/session"
)

var navLog = logging.ForComponent(logging.CompNav)

// ErrNotInTmux is returned when no tmux server or pane is reachable.
var ErrNotInTmux = errors.New("not running inside tmux")

// Runner executes one tmux command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

// ExecRunner runs the tmux binary.
type ExecRunner struct {
	Binary  string
	Timeout time.Duration
}

// NewExecRunner returns a runner for binary ("tmux" when empty).
func NewExecRunner(binary string) *ExecRunner {
	if binary == "" {
		binary = "tmux"
	}
	return &ExecRunner{Binary: binary, Timeout: 2 * time.Second}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(msg, "no server running") || strings.Contains(msg, "no current client") {
			return nil, fmt.Errorf("tmux %s: %w", args[0], ErrNotInTmux)
		}
		if msg != "" {
			return nil, fmt.Errorf("tmux %s: %w (%s)", args[0], err, msg)
		}
		return nil, fmt.Errorf("tmux %s: %w", args[0], err)
	}
	return out, nil
}

// paneFormat is the display-message format read by parsePane.
const paneFormat = "#{session_name}\t#{window_name}\t#{window_id}\t#{window_index}\t#{pane_id}\t#{pane_index}"

// Pane is everything tmux reports about one pane.
type Pane struct {
	Session     string
	WindowName  string
	WindowID    string
	WindowIndex string
	PaneID      string
	PaneIndex   string
}

func parsePane(out []byte) (Pane, error) {
	line := strings.TrimRight(string(out), "\r\n")
	parts := strings.Split(line, "\t")
	if len(parts) != 6 || parts[0] == "" || parts[4] == "" {
		return Pane{}, fmt.Errorf("unexpected display-message output %q", line)
	}
	return Pane{
		Session:     parts[0],
		WindowName:  parts[1],
		WindowID:    parts[2],
		WindowIndex: parts[3],
		PaneID:      parts[4],
		PaneIndex:   parts[5],
	}, nil
}

// Location converts the pane to the store's location model.
func (p Pane) Location() session.Location {
	return session.Location{Session: p.Session, Window: p.WindowName, WindowID: p.WindowID, PaneID: p.PaneID}
}

// Wire renders the location string a hook sends for the given format.
func (p Pane) Wire(format session.LocationFormat) string {
	switch format {
	case session.FormatWindowID:
		return p.Session + ":" + p.WindowName + ":" + p.WindowID + ":" + p.PaneID
	case session.FormatLegacy:
		return p.Session + ":" + p.WindowIndex + ":" + p.PaneIndex
	default:
		return p.Session + ":" + p.WindowName + ":" + p.PaneID
	}
}

// DescribePane asks tmux about paneID ("%5"). An empty paneID describes the
// pane of the attached client.
func DescribePane(ctx context.Context, r Runner, paneID string) (Pane, error) {
	args := []string{"display-message", "-p"}
	if paneID != "" {
		args = append(args, "-t", paneID)
	}
	args = append(args, paneFormat)
	out, err := r.Run(ctx, args...)
	if err != nil {
		return Pane{}, err
	}
	return parsePane(out)
}

// PaneFromEnv describes the pane named by $TMUX_PANE.
func PaneFromEnv(ctx context.Context, r Runner) (Pane, error) {
	id := os.Getenv("TMUX_PANE")
	if id == "" || os.Getenv("TMUX") == "" {
		return Pane{}, ErrNotInTmux
	}
	return DescribePane(ctx, r, id)
}
