package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidLocation is returned for location strings that do not match the format.
var ErrInvalidLocation = errors.New("invalid tmux location")

// LocationFormat selects how hook location strings are split.
type LocationFormat string

const (
	// FormatPane is "session:window:paneId", e.g. "dev:editor:%5".
	FormatPane LocationFormat = "pane"
	// FormatWindowID is "session:window:windowId:paneId", e.g. "dev:editor:@2:%5".
	FormatWindowID LocationFormat = "window-id"
	// FormatLegacy is "session:window:pane" with numeric window and pane indexes.
	FormatLegacy LocationFormat = "legacy"
	// FormatAuto picks one of the above from the field count and pane shape.
	FormatAuto LocationFormat = "auto"
)

// ParseLocationFormat validates a config value. Empty means FormatPane.
func ParseLocationFormat(s string) (LocationFormat, error) {
	switch f := LocationFormat(strings.TrimSpace(s)); f {
	case "":
		return FormatPane, nil
	case FormatPane, FormatWindowID, FormatLegacy, FormatAuto:
		return f, nil
	default:
		return "", fmt.Errorf("unknown location format %q (want pane, window-id, legacy or auto)", s)
	}
}

// Location addresses a tmux pane. PaneID is the store key: it survives
// window renames and moves, unlike the session and window names.
type Location struct {
	Session  string `json:"session"`
	Window   string `json:"window"`
	WindowID string `json:"windowId,omitempty"`
	PaneID   string `json:"paneId"`
	// PaneIndex is set for index-addressed (legacy) locations, whose
	// PaneID is the tmux target "session:window.pane".
	PaneIndex string `json:"paneIndex,omitempty"`
}

// Key is the pane identity used by the store.
func (l Location) Key() string { return l.PaneID }

// Display renders "session:window:paneId", or "session:window:pane" for
// index-addressed locations.
func (l Location) Display() string {
	if l.PaneIndex != "" {
		return l.Session + ":" + l.Window + ":" + l.PaneIndex
	}
	return l.Session + ":" + l.Window + ":" + l.PaneID
}

// String renders the location in the format it can be parsed back from.
func (l Location) String() string {
	if l.WindowID != "" {
		return l.Session + ":" + l.Window + ":" + l.WindowID + ":" + l.PaneID
	}
	return l.Display()
}

// WindowTarget is the tmux target for select-window.
func (l Location) WindowTarget() string {
	if l.WindowID != "" {
		return l.WindowID
	}
	return l.Session + ":" + l.Window
}

// ParseLocation splits s according to format.
func ParseLocation(s string, format LocationFormat) (Location, error) {
	parts := strings.Split(s, ":")

	switch format {
	case FormatPane, "":
		return parsePaneForm(s, parts)
	case FormatWindowID:
		return parseWindowIDForm(s, parts)
	case FormatLegacy:
		return parseLegacyForm(s, parts)
	case FormatAuto:
		switch {
		case len(parts) == 4:
			return parseWindowIDForm(s, parts)
		case len(parts) == 3 && strings.HasPrefix(parts[2], "%"):
			return parsePaneForm(s, parts)
		default:
			return parseLegacyForm(s, parts)
		}
	default:
		return Location{}, fmt.Errorf("%w: unknown format %q", ErrInvalidLocation, format)
	}
}

func parsePaneForm(s string, parts []string) (Location, error) {
	if len(parts) != 3 {
		return Location{}, fmt.Errorf("%w: %q: want session:window:paneId", ErrInvalidLocation, s)
	}
	if parts[0] == "" || parts[2] == "" {
		return Location{}, fmt.Errorf("%w: %q: empty session or pane", ErrInvalidLocation, s)
	}
	return Location{Session: parts[0], Window: parts[1], PaneID: parts[2]}, nil
}

func parseWindowIDForm(s string, parts []string) (Location, error) {
	if len(parts) != 4 {
		return Location{}, fmt.Errorf("%w: %q: want session:window:windowId:paneId", ErrInvalidLocation, s)
	}
	if parts[0] == "" || parts[3] == "" {
		return Location{}, fmt.Errorf("%w: %q: empty session or pane", ErrInvalidLocation, s)
	}
	return Location{Session: parts[0], Window: parts[1], WindowID: parts[2], PaneID: parts[3]}, nil
}

func parseLegacyForm(s string, parts []string) (Location, error) {
	if len(parts) != 3 || parts[0] == "" {
		return Location{}, fmt.Errorf("%w: %q: want session:window:pane", ErrInvalidLocation, s)
	}
	window, err := strconv.Atoi(parts[1])
	if err != nil || window < 0 {
		return Location{}, fmt.Errorf("%w: %q: window %q is not an index", ErrInvalidLocation, s, parts[1])
	}
	pane, err := strconv.Atoi(parts[2])
	if err != nil || pane < 0 {
		return Location{}, fmt.Errorf("%w: %q: pane %q is not an index", ErrInvalidLocation, s, parts[2])
	}
	// Index-addressed panes get the tmux target form as their key so panes
	// in different sessions and windows do not collide.
	return Location{
		Session:   parts[0],
		Window:    strconv.Itoa(window),
		PaneID:    fmt.Sprintf("%s:%d.%d", parts[0], window, pane),
		PaneIndex: strconv.Itoa(pane),
	}, nil
}
