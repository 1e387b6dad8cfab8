package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starcmd/starcmd/internal/logging"
	"github.com/starcmd/starcmd/internal/platform"
)

var configLog = logging.ForComponent(logging.CompConfig)

// ConfigWatcher reloads config.toml when it changes on disk and hands the
// new value to onChange. Bursts of events (editors write, rename and chmod
// in quick succession) are coalesced.
type ConfigWatcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	onChange func(*Config)

	mu    sync.Mutex
	timer *time.Timer
}

// NewConfigWatcher watches the directory holding path, so that atomic
// rename-over writes are seen too.
func NewConfigWatcher(path string, onChange func(*Config)) (*ConfigWatcher, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	if warning := platform.WatchWarning(dir); warning != "" {
		configLog.Warn("config_watch_unreliable", slog.String("dir", dir), slog.String("detail", warning))
	}
	return &ConfigWatcher{
		path:     path,
		debounce: 150 * time.Millisecond,
		watcher:  w,
		onChange: onChange,
	}, nil
}

// Run blocks until ctx is cancelled or the watcher fails.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	defer w.stopTimer()

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			configLog.Warn("config_watcher_error", slog.String("error", err.Error()))
		}
	}
}

func (w *ConfigWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *ConfigWatcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *ConfigWatcher) reload() {
	cfg, err := LoadConfigFile(w.path)
	if err != nil {
		configLog.Warn("config_reload_failed", slog.String("path", w.path), slog.String("error", err.Error()))
		return
	}

	configCacheMu.Lock()
	configCache = cfg
	configCacheMu.Unlock()

	configLog.Info("config_reloaded", slog.String("path", w.path))
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
