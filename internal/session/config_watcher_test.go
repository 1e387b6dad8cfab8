package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigWatcher_ReloadsOnWrite(t *testing.T) {
	dir := useTempHome(t)
	path := filepath.Join(dir, ConfigFileName)

	changes := make(chan *Config, 4)
	w, err := NewConfigWatcher(path, func(cfg *Config) { changes <- cfg })
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Unrelated files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"debug\"\n"), 0o600))

	select {
	case cfg := <-changes:
		assert.Equal(t, "debug", cfg.Log.Level)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report the change")
	}

	cached, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cached.Log.Level)
}

func TestConfigWatcher_InvalidFileKeepsPrevious(t *testing.T) {
	dir := useTempHome(t)
	path := filepath.Join(dir, ConfigFileName)

	called := make(chan struct{}, 1)
	w, err := NewConfigWatcher(path, func(*Config) { called <- struct{}{} })
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(path, []byte("[sessions]\nlocation_format = \"grid\"\n"), 0o600))

	select {
	case <-called:
		t.Fatal("invalid config must not be applied")
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	assert.NoError(t, <-done)
}
