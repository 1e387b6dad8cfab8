package session

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// ConfigFileName is the TOML config file inside the state dir.
	ConfigFileName = "config.toml"

	// DefaultSocketPath is the well-known socket hook scripts write to.
	DefaultSocketPath = "/tmp/starcmd.sock"

	// SocketPathEnv overrides [socket] path.
	SocketPathEnv = "STARCMD_SOCKET"

	// HomeEnv overrides the state dir (~/.starcmd).
	HomeEnv = "STARCMD_HOME"
)

// Duration is a time.Duration that decodes from TOML strings like "90s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" || s == "0" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the user configuration in ~/.starcmd/config.toml.
type Config struct {
	Socket   SocketSettings   `toml:"socket"`
	Sessions SessionsSettings `toml:"sessions"`
	Log      LogSettings      `toml:"log"`
	Web      WebSettings      `toml:"web"`
	Tmux     TmuxSettings     `toml:"tmux"`
}

// SocketSettings configures the Unix socket listener.
type SocketSettings struct {
	// Path of the socket (default: /tmp/starcmd.sock)
	Path string `toml:"path"`

	// Mode is the octal file mode applied after bind (default: "0600")
	Mode string `toml:"mode"`

	// MaxMessageBytes bounds one request (default: 1MiB)
	MaxMessageBytes int64 `toml:"max_message_bytes"`

	// ReadTimeout bounds reading one request; "0" or empty disables it
	ReadTimeout Duration `toml:"read_timeout"`

	// MaxConcurrent caps connections handled at once (default: 32, 0 = no cap)
	MaxConcurrent *int64 `toml:"max_concurrent"`
}

// SessionsSettings configures the session store.
type SessionsSettings struct {
	// LocationFormat is "pane" (default), "window-id", "legacy" or "auto"
	LocationFormat string `toml:"location_format"`

	// StaleAfter drops sessions idle for longer than this; empty disables pruning
	StaleAfter Duration `toml:"stale_after"`
}

// LogSettings configures internal/logging.
type LogSettings struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	Dir        string `toml:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// WebSettings configures the optional HTTP status feed.
type WebSettings struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
	Token   string `toml:"token"`
}

// TmuxSettings configures navigation.
type TmuxSettings struct {
	// Binary is the tmux executable (default: "tmux" from PATH)
	Binary string `toml:"binary"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	maxConcurrent := int64(32)
	return Config{
		Socket: SocketSettings{
			Path:            DefaultSocketPath,
			Mode:            "0600",
			MaxMessageBytes: 1 << 20,
			MaxConcurrent:   &maxConcurrent,
		},
		Sessions: SessionsSettings{LocationFormat: string(FormatPane)},
		Log: LogSettings{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  5,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
		Web:  WebSettings{Listen: "127.0.0.1:8421"},
		Tmux: TmuxSettings{Binary: "tmux"},
	}
}

var (
	configCache   *Config
	configCacheMu sync.RWMutex
)

// GetStarcmdDir returns the state directory (~/.starcmd or $STARCMD_HOME).
func GetStarcmdDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".starcmd"), nil
}

// GetConfigPath returns the path of config.toml.
func GetConfigPath() (string, error) {
	dir, err := GetStarcmdDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// LoadConfig returns the cached config, reading it on first use. A missing
// file yields the defaults; a broken file yields the defaults plus the error.
func LoadConfig() (*Config, error) {
	configCacheMu.RLock()
	if configCache != nil {
		defer configCacheMu.RUnlock()
		return configCache, nil
	}
	configCacheMu.RUnlock()

	configCacheMu.Lock()
	defer configCacheMu.Unlock()
	if configCache != nil {
		return configCache, nil
	}

	path, err := GetConfigPath()
	if err != nil {
		cfg := DefaultConfig()
		configCache = &cfg
		return configCache, nil
	}
	cfg, err := LoadConfigFile(path)
	configCache = cfg
	return cfg, err
}

// ReloadConfig drops the cache and reads the file again.
func ReloadConfig() (*Config, error) {
	configCacheMu.Lock()
	configCache = nil
	configCacheMu.Unlock()
	return LoadConfig()
}

// LoadConfigFile decodes path over the defaults and applies the socket env override.
func LoadConfigFile(path string) (*Config, error) {
	cfg, err := decodeConfigFile(path)
	cfg.applyEnv()
	return cfg, err
}

func decodeConfigFile(path string) (*Config, error) {
	defaults := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &defaults, nil
	}
	if err != nil {
		return &defaults, fmt.Errorf("read %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return &defaults, fmt.Errorf("config.toml parse error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return &defaults, fmt.Errorf("config.toml: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if p := os.Getenv(SocketPathEnv); p != "" {
		c.Socket.Path = p
	}
}

// Validate checks values that cannot be defaulted silently.
func (c *Config) Validate() error {
	if _, err := ParseLocationFormat(c.Sessions.LocationFormat); err != nil {
		return fmt.Errorf("[sessions] %w", err)
	}
	if _, err := c.Socket.FileMode(); err != nil {
		return fmt.Errorf("[socket] %w", err)
	}
	if c.Socket.MaxMessageBytes < 0 {
		return fmt.Errorf("[socket] max_message_bytes must not be negative")
	}
	if c.Sessions.StaleAfter.Duration < 0 {
		return fmt.Errorf("[sessions] stale_after must not be negative")
	}
	return nil
}

// FileMode parses Mode as an octal permission.
func (s SocketSettings) FileMode() (os.FileMode, error) {
	if s.Mode == "" {
		return 0o600, nil
	}
	var m uint32
	if _, err := fmt.Sscanf(s.Mode, "%o", &m); err != nil || m > 0o777 {
		return 0, fmt.Errorf("invalid mode %q", s.Mode)
	}
	return os.FileMode(m), nil
}

// Concurrency returns the handler cap; nil in the file means the default.
func (s SocketSettings) Concurrency() int64 {
	if s.MaxConcurrent == nil {
		return 32
	}
	return *s.MaxConcurrent
}

// Format returns the parsed location format.
func (s SessionsSettings) Format() LocationFormat {
	f, err := ParseLocationFormat(s.LocationFormat)
	if err != nil {
		return FormatPane
	}
	return f
}

// LogDir returns the configured log directory or the state dir.
func (l LogSettings) LogDir() string {
	if l.Dir != "" {
		return l.Dir
	}
	dir, err := GetStarcmdDir()
	if err != nil {
		return ""
	}
	return dir
}

// SaveConfig writes cfg atomically and clears the cache.
func SaveConfig(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename config: %w", err)
	}

	configCacheMu.Lock()
	configCache = nil
	configCacheMu.Unlock()
	return nil
}
