package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Component names used as the "component" attribute.
const (
	CompIPC     = "ipc"
	CompStore   = "store"
	CompWeb     = "web"
	CompNav     = "nav"
	CompHook    = "hook"
	CompConfig  = "config"
	CompDaemon  = "daemon"
	CompSummary = "summary"
)

// LogFileName is the rotated log file written inside Config.LogDir.
const LogFileName = "starcmd.log"

// Config holds logging configuration.
type Config struct {
	// LogDir is the directory for the log file (e.g. ~/.starcmd)
	LogDir string

	// Level is the minimum log level: "debug", "info" (default), "warn", "error"
	Level string

	// Format is "json" (default) or "text"
	Format string

	// Stderr mirrors every record to stderr (foreground/debug runs)
	Stderr bool

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// RingBufferSize is the in-memory tail kept for crash dumps (default: 1MB)
	RingBufferSize int

	// AggregateIntervalSecs is the summary flush interval (default: 60)
	AggregateIntervalSecs int
}

var (
	globalLogger *slog.Logger
	globalRing   *RingBuffer
	globalAgg    *Aggregator
	globalMu     sync.RWMutex
	fileWriter   *lumberjack.Logger

	// level is shared by every handler so SetLevel takes effect without re-Init.
	level = new(slog.LevelVar)
)

// ParseLevel maps a config string to a slog level. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the minimum level of the running logger.
func SetLevel(s string) {
	level.Set(ParseLevel(s))
}

// Level returns the current minimum level.
func Level() slog.Level {
	return level.Level()
}

// Init initializes the global logging system.
// With neither a log dir nor Stderr set, records are discarded.
func Init(cfg Config) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 5
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 3
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 7
	}
	if cfg.RingBufferSize <= 0 {
		cfg.RingBufferSize = 1024 * 1024
	}
	if cfg.AggregateIntervalSecs <= 0 {
		cfg.AggregateIntervalSecs = 60
	}
	level.Set(ParseLevel(cfg.Level))

	if cfg.LogDir == "" && !cfg.Stderr {
		globalLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
		globalRing = NewRingBuffer(1024)
		globalAgg = NewAggregator(nil, cfg.AggregateIntervalSecs)
		return
	}

	globalRing = NewRingBuffer(cfg.RingBufferSize)
	writers := []io.Writer{globalRing}

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o700); err == nil {
			fileWriter = &lumberjack.Logger{
				Filename:   filepath.Join(cfg.LogDir, LogFileName),
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAgeDays,
				Compress:   cfg.Compress,
			}
			writers = append(writers, fileWriter)
		}
	}
	if cfg.Stderr {
		writers = append(writers, os.Stderr)
	}

	out := io.MultiWriter(writers...)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	globalLogger = slog.New(handler)

	globalAgg = NewAggregator(globalLogger, cfg.AggregateIntervalSecs)
	globalAgg.Start()
}

// Logger returns the global logger. Safe to call before Init.
func Logger() *slog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return globalLogger
}

// ForComponent returns a logger tagged with a component. The handler is
// resolved at log time, so package-level loggers created before Init still
// write to the configured destination.
func ForComponent(name string) *slog.Logger {
	return slog.New(&componentHandler{component: name})
}

type componentHandler struct {
	component string
	attrs     []slog.Attr
	groups    []string
}

func (h *componentHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return Logger().Handler().Enabled(ctx, l)
}

func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	handler := Logger().Handler().WithAttrs([]slog.Attr{slog.String("component", h.component)})
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	for _, g := range h.groups {
		handler = handler.WithGroup(g)
	}
	return handler.Handle(ctx, r)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &componentHandler{component: h.component, attrs: merged, groups: h.groups}
}

func (h *componentHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := append(append([]string(nil), h.groups...), name)
	return &componentHandler{component: h.component, attrs: h.attrs, groups: groups}
}

// Aggregate counts a high-frequency event; counts are logged in periodic summaries.
func Aggregate(component, event string, fields ...slog.Attr) {
	globalMu.RLock()
	agg := globalAgg
	globalMu.RUnlock()
	if agg != nil {
		agg.Record(component, event, fields...)
	}
}

// DumpRingBuffer writes the buffered log tail to path.
func DumpRingBuffer(path string) error {
	globalMu.RLock()
	ring := globalRing
	globalMu.RUnlock()
	if ring == nil {
		return nil
	}
	return ring.DumpToFile(path)
}

// Shutdown flushes pending summaries and closes the log file.
func Shutdown() {
	globalMu.Lock()
	agg := globalAgg
	globalAgg = nil
	globalMu.Unlock()

	// Stop outside the lock: the final flush logs through Logger().
	if agg != nil {
		agg.Stop()
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if fileWriter != nil {
		_ = fileWriter.Close()
		fileWriter = nil
	}
	globalLogger = nil
	globalRing = nil
}
