package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/starcmd/starcmd/internal/logging"
)

// HookCommand is the command Claude runs for every starcmd hook. It also
// marks our entries in settings.json.
const HookCommand = "starcmd hook"

// ClaudeConfigDirEnv overrides the Claude config dir (~/.claude).
const ClaudeConfigDirEnv = "CLAUDE_CONFIG_DIR"

type claudeHookEntry struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"`
}

type claudeHookMatcher struct {
	Matcher string            `json:"matcher,omitempty"`
	Hooks   []claudeHookEntry `json:"hooks"`
}

// HookEvents are the Claude hook events starcmd subscribes to.
var HookEvents = []string{
	"SessionStart",
	"UserPromptSubmit",
	"PostToolUse",
	"Notification",
	"SessionEnd",
}

var hooksLog = logging.ForComponent(logging.CompHook)

// ClaudeConfigDir returns $CLAUDE_CONFIG_DIR or ~/.claude.
func ClaudeConfigDir() string {
	if dir := os.Getenv(ClaudeConfigDirEnv); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".claude")
	}
	return filepath.Join(home, ".claude")
}

// claudeSettings is settings.json with every key other than "hooks" kept
// as raw JSON so a rewrite preserves it untouched.
type claudeSettings struct {
	path  string
	raw   map[string]json.RawMessage
	hooks map[string]json.RawMessage
}

func readClaudeSettings(configDir string) (*claudeSettings, error) {
	s := &claudeSettings{
		path:  filepath.Join(configDir, "settings.json"),
		raw:   make(map[string]json.RawMessage),
		hooks: make(map[string]json.RawMessage),
	}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings.json: %w", err)
	}
	if err := json.Unmarshal(data, &s.raw); err != nil {
		return nil, fmt.Errorf("parse settings.json: %w", err)
	}
	if s.raw == nil {
		s.raw = make(map[string]json.RawMessage)
	}
	if h, ok := s.raw["hooks"]; ok {
		// A "hooks" value that is not an object is replaced on write.
		if err := json.Unmarshal(h, &s.hooks); err != nil || s.hooks == nil {
			s.hooks = make(map[string]json.RawMessage)
		}
	}
	return s, nil
}

func (s *claudeSettings) write() error {
	if len(s.hooks) == 0 {
		delete(s.raw, "hooks")
	} else {
		h, err := json.Marshal(s.hooks)
		if err != nil {
			return fmt.Errorf("marshal hooks: %w", err)
		}
		s.raw["hooks"] = h
	}
	data, err := json.MarshalIndent(s.raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings.json.tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename settings.json: %w", err)
	}
	return nil
}

func (s *claudeSettings) installed() bool {
	for _, event := range HookEvents {
		if !hasStarcmdHook(s.hooks[event]) {
			return false
		}
	}
	return true
}

// InstallClaudeHooks adds starcmd to every subscribed event in settings.json,
// keeping all other settings and hooks. It reports false when everything was
// already in place.
func InstallClaudeHooks(configDir string) (bool, error) {
	s, err := readClaudeSettings(configDir)
	if err != nil {
		return false, err
	}
	if s.installed() {
		return false, nil
	}
	for _, event := range HookEvents {
		if !hasStarcmdHook(s.hooks[event]) {
			s.hooks[event] = appendStarcmdHook(s.hooks[event])
		}
	}
	if err := s.write(); err != nil {
		return false, err
	}
	hooksLog.Info("claude_hooks_installed", slog.String("config_dir", configDir))
	return true, nil
}

// UninstallClaudeHooks removes every starcmd entry. It reports false when
// there was nothing to remove.
func UninstallClaudeHooks(configDir string) (bool, error) {
	s, err := readClaudeSettings(configDir)
	if err != nil {
		return false, err
	}
	removed := false
	for event, raw := range s.hooks {
		cleaned, changed := dropStarcmdHooks(raw)
		if !changed {
			continue
		}
		removed = true
		if cleaned == nil {
			delete(s.hooks, event)
		} else {
			s.hooks[event] = cleaned
		}
	}
	if !removed {
		return false, nil
	}
	if err := s.write(); err != nil {
		return false, err
	}
	hooksLog.Info("claude_hooks_removed", slog.String("config_dir", configDir))
	return true, nil
}

// ClaudeHooksInstalled reports whether every subscribed event runs starcmd.
func ClaudeHooksInstalled(configDir string) bool {
	s, err := readClaudeSettings(configDir)
	if err != nil {
		return false
	}
	return s.installed()
}

func isStarcmdHook(h claudeHookEntry) bool {
	return strings.HasPrefix(strings.TrimSpace(h.Command), HookCommand)
}

func hasStarcmdHook(raw json.RawMessage) bool {
	var matchers []claudeHookMatcher
	if raw == nil || json.Unmarshal(raw, &matchers) != nil {
		return false
	}
	for _, m := range matchers {
		for _, h := range m.Hooks {
			if isStarcmdHook(h) {
				return true
			}
		}
	}
	return false
}

// appendStarcmdHook adds our entry to the catch-all matcher of an event,
// creating it when absent.
func appendStarcmdHook(raw json.RawMessage) json.RawMessage {
	var matchers []claudeHookMatcher
	if raw != nil && json.Unmarshal(raw, &matchers) != nil {
		matchers = nil
	}
	entry := claudeHookEntry{Type: "command", Command: HookCommand, Timeout: 5}

	placed := false
	for i := range matchers {
		if matchers[i].Matcher == "" {
			matchers[i].Hooks = append(matchers[i].Hooks, entry)
			placed = true
			break
		}
	}
	if !placed {
		matchers = append(matchers, claudeHookMatcher{Hooks: []claudeHookEntry{entry}})
	}
	out, _ := json.Marshal(matchers)
	return out
}

// dropStarcmdHooks removes our entries from an event. Matchers left with no
// hooks are dropped; nil means the event has nothing left.
func dropStarcmdHooks(raw json.RawMessage) (json.RawMessage, bool) {
	var matchers []claudeHookMatcher
	if err := json.Unmarshal(raw, &matchers); err != nil {
		return raw, false
	}

	changed := false
	var kept []claudeHookMatcher
	for _, m := range matchers {
		hooks := m.Hooks[:0:0]
		for _, h := range m.Hooks {
			if isStarcmdHook(h) {
				changed = true
				continue
			}
			hooks = append(hooks, h)
		}
		if len(hooks) > 0 {
			m.Hooks = hooks
			kept = append(kept, m)
		}
	}
	if !changed {
		return raw, false
	}
	if len(kept) == 0 {
		return nil, true
	}
	out, _ := json.Marshal(kept)
	return out, true
}
