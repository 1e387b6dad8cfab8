package tmux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starcmd/starcmd/internal/session"
)

// ErrHistoryEmpty is returned by Back and Forward when there is nowhere to go.
var ErrHistoryEmpty = errors.New("navigation history is empty")

// FocusCommands returns the tmux invocations that bring loc to the front:
// switch the client to the session, select the window, select the pane.
func FocusCommands(loc session.Location) [][]string {
	return [][]string{
		{"switch-client", "-t", loc.Session},
		{"select-window", "-t", loc.WindowTarget()},
		{"select-pane", "-t", loc.PaneID},
	}
}

// Navigator focuses panes and keeps browser-style back/forward stacks.
type Navigator struct {
	runner Runner

	mu      sync.Mutex
	history History
}

// NewNavigator returns a navigator starting from history.
func NewNavigator(r Runner, history History) *Navigator {
	return &Navigator{runner: r, history: history}
}

// History returns a copy of the current stacks.
func (n *Navigator) History() History {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.history.clone()
}

// CurrentPane is the pane of the attached client.
func (n *Navigator) CurrentPane(ctx context.Context) (session.Location, error) {
	p, err := DescribePane(ctx, n.runner, "")
	if err != nil {
		return session.Location{}, err
	}
	return p.Location(), nil
}

// Focus switches to loc. The pane being left goes onto the back stack and
// the forward stack is cleared.
func (n *Navigator) Focus(ctx context.Context, loc session.Location) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	current, curErr := n.CurrentPane(ctx)
	if err := n.focusLocked(ctx, loc); err != nil {
		return err
	}
	if curErr == nil && current.PaneID != loc.PaneID {
		n.history.Back = pushLimited(n.history.Back, current)
	}
	n.history.Forward = nil
	return nil
}

// Back returns to the most recently left pane.
func (n *Navigator) Back(ctx context.Context) (session.Location, error) {
	return n.step(ctx, &n.history.Back, &n.history.Forward)
}

// Forward undoes the last Back.
func (n *Navigator) Forward(ctx context.Context) (session.Location, error) {
	return n.step(ctx, &n.history.Forward, &n.history.Back)
}

func (n *Navigator) step(ctx context.Context, from, to *[]session.Location) (session.Location, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(*from) == 0 {
		return session.Location{}, ErrHistoryEmpty
	}
	target := (*from)[len(*from)-1]
	current, curErr := n.CurrentPane(ctx)

	if err := n.focusLocked(ctx, target); err != nil {
		return session.Location{}, err
	}
	*from = (*from)[:len(*from)-1]
	if curErr == nil {
		*to = pushLimited(*to, current)
	}
	return target, nil
}

func (n *Navigator) focusLocked(ctx context.Context, loc session.Location) error {
	if loc.PaneID == "" {
		return fmt.Errorf("focus: %w", session.ErrInvalidLocation)
	}
	for _, args := range FocusCommands(loc) {
		if _, err := n.runner.Run(ctx, args...); err != nil {
			navLog.Warn("focus_failed", slog.String("pane", loc.PaneID), slog.String("error", err.Error()))
			return fmt.Errorf("focus %s: %w", loc.Display(), err)
		}
	}
	navLog.Info("focused", slog.String("pane", loc.PaneID), slog.String("location", loc.Display()))
	return nil
}
