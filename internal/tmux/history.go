package tmux

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/starcmd/starcmd/internal/session"
)

// HistoryFileName holds the navigation stacks between CLI invocations.
const HistoryFileName = "nav.json"

// maxHistory bounds each stack.
const maxHistory = 50

// History is the pair of navigation stacks; the last element is the top.
type History struct {
	Back    []session.Location `json:"back"`
	Forward []session.Location `json:"forward"`
}

func (h History) clone() History {
	return History{
		Back:    append([]session.Location(nil), h.Back...),
		Forward: append([]session.Location(nil), h.Forward...),
	}
}

func pushLimited(stack []session.Location, loc session.Location) []session.Location {
	stack = append(stack, loc)
	if len(stack) > maxHistory {
		stack = append([]session.Location(nil), stack[len(stack)-maxHistory:]...)
	}
	return stack
}

// LoadHistory reads path. A missing or unreadable file is an empty history.
func LoadHistory(path string) History {
	data, err := os.ReadFile(path)
	if err != nil {
		return History{}
	}
	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		navLog.Warn("history_corrupt", "path", path, "error", err.Error())
		return History{}
	}
	return h
}

// SaveHistory writes h to path atomically.
func SaveHistory(path string, h History) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename history: %w", err)
	}
	return nil
}
