package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starcmd/starcmd/internal/ipc"
	"github.com/starcmd/starcmd/internal/logging"
	"github.com/starcmd/starcmd/internal/platform"
	"github.com/starcmd/starcmd/internal/session"
	"github.com/starcmd/starcmd/internal/web"
)

var daemonLog = logging.ForComponent(logging.CompDaemon)

// pruneInterval is how often stale sessions are swept when stale_after is set.
var pruneInterval = 30 * time.Second

func handleServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	socket := fs.String("socket", "", "Socket path (overrides config)")
	debug := fs.Bool("debug", os.Getenv("STARCMD_DEBUG") != "", "Log at debug level and mirror logs to stderr")
	webFlag := fs.Bool("web", false, "Enable the HTTP status feed")
	listen := fs.String("listen", "", "HTTP feed listen address (implies --web)")

	fs.Usage = func() {
		fmt.Println("Usage: starcmd serve [options]")
		fmt.Println()
		fmt.Println("Run the session daemon. Exits 1 if another daemon owns the socket.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := *loadConfig()
	if *socket != "" {
		cfg.Socket.Path = *socket
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	if *listen != "" {
		cfg.Web.Listen = *listen
		cfg.Web.Enabled = true
	}
	if *webFlag {
		cfg.Web.Enabled = true
	}

	logDir := cfg.Log.LogDir()
	logging.Init(logging.Config{
		LogDir:     logDir,
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Stderr:     *debug,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	defer logging.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SIGQUIT dumps the in-memory log tail for post-mortem debugging.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGQUIT)
	defer signal.Stop(quit)
	go func() {
		for range quit {
			path := filepath.Join(logDir, fmt.Sprintf("crash-%d.log", time.Now().Unix()))
			if err := logging.DumpRingBuffer(path); err != nil {
				daemonLog.Error("crash_dump_failed", slog.String("error", err.Error()))
				continue
			}
			daemonLog.Info("crash_dump_written", slog.String("path", path))
		}
	}()

	configPath, _ := session.GetConfigPath()
	err := runDaemon(ctx, &cfg, configPath)
	switch {
	case errors.Is(err, ipc.ErrAlreadyRunning):
		fmt.Fprintf(os.Stderr, "starcmd is already running on %s\n", cfg.Socket.Path)
		logging.Shutdown()
		os.Exit(1)
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logging.Shutdown()
		os.Exit(1)
	}
}

// runDaemon serves until ctx is cancelled. configPath, when set, is watched
// for live changes to the log level and stale_after.
func runDaemon(ctx context.Context, cfg *session.Config, configPath string) error {
	if !platform.SupportsUnixSockets() {
		daemonLog.Warn("unix_sockets_unreliable", slog.String("platform", platform.Detect().String()))
	}
	store := session.NewStore(session.WithLocationFormat(cfg.Sessions.Format()))

	mode, err := cfg.Socket.FileMode()
	if err != nil {
		return err
	}
	srv := ipc.NewServer(cfg.Socket.Path, store, ipc.Options{
		Mode:            mode,
		MaxMessageBytes: cfg.Socket.MaxMessageBytes,
		ReadTimeout:     cfg.Socket.ReadTimeout.Duration,
		MaxConcurrent:   cfg.Socket.Concurrency(),
	})
	if err := srv.Start(ctx); err != nil {
		return err
	}
	daemonLog.Info("daemon_started",
		slog.Int("pid", os.Getpid()),
		slog.String("version", Version),
		slog.String("socket", cfg.Socket.Path),
		slog.String("location_format", string(cfg.Sessions.Format())))

	var staleAfter atomic.Int64
	staleAfter.Store(int64(cfg.Sessions.StaleAfter.Duration))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-srv.Done():
		}
		err := srv.Stop()
		srv.Wait()
		if acceptErr := srv.Err(); acceptErr != nil {
			daemonLog.Error("listener_failed", slog.String("error", acceptErr.Error()))
			return acceptErr
		}
		return err
	})

	if cfg.Web.Enabled {
		feed := web.NewServer(web.Config{ListenAddr: cfg.Web.Listen, Token: cfg.Web.Token}, store)
		g.Go(feed.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return feed.Shutdown(shutdownCtx)
		})
	}

	if configPath != "" {
		watcher, err := session.NewConfigWatcher(configPath, func(next *session.Config) {
			logging.SetLevel(next.Log.Level)
			staleAfter.Store(int64(next.Sessions.StaleAfter.Duration))
		})
		if err != nil {
			daemonLog.Warn("config_watch_disabled", slog.String("error", err.Error()))
		} else {
			g.Go(func() error { return watcher.Run(gctx) })
		}
	}

	g.Go(func() error {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				store.Prune(time.Duration(staleAfter.Load()))
			}
		}
	})

	err = g.Wait()
	daemonLog.Info("daemon_stopped", slog.Int("sessions", store.Len()))
	return err
}
