package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/starcmd/starcmd/internal/ipc"
	"github.com/starcmd/starcmd/internal/session"
)

const Version = "0.3.0"

// clientTimeout bounds one request from a CLI command to the daemon.
const clientTimeout = 2 * time.Second

func init() {
	initColorProfile()
}

// initColorProfile picks the lipgloss profile. STARCMD_COLOR overrides
// detection: truecolor, 256, 16, none.
func initColorProfile() {
	switch strings.ToLower(os.Getenv("STARCMD_COLOR")) {
	case "truecolor", "true", "24bit":
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	case "256", "ansi256":
		lipgloss.SetColorProfile(termenv.ANSI256)
		return
	case "16", "ansi", "basic":
		lipgloss.SetColorProfile(termenv.ANSI)
		return
	case "none", "off", "ascii":
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	if os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	if ct := os.Getenv("COLORTERM"); ct == "truecolor" || ct == "24bit" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}
	lipgloss.SetColorProfile(termenv.ANSI256)
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		printHelp()
		os.Exit(1)
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Printf("starcmd v%s\n", Version)
	case "help", "--help", "-h":
		printHelp()
	case "serve", "daemon":
		handleServe(args[1:])
	case "hook":
		handleHook(args[1:])
	case "hooks":
		handleHooks(args[1:])
	case "send":
		handleSend(args[1:])
	case "list", "ls":
		handleList(args[1:])
	case "status":
		handleStatus(args[1:])
	case "focus":
		handleFocus(args[1:])
	case "back":
		handleBack(args[1:])
	case "forward":
		handleForward(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Printf("starcmd v%s\n", Version)
	fmt.Println("Tracks coding-assistant sessions across tmux panes")
	fmt.Println()
	fmt.Println("Usage: starcmd <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve            Run the session daemon on the Unix socket")
	fmt.Println("  hook             Forward one assistant hook event (reads JSON on stdin)")
	fmt.Println("  hooks            Install, remove or inspect the assistant hooks")
	fmt.Println("  send             Send a raw wire message from stdin")
	fmt.Println("  list, ls         List sessions, most recently active first")
	fmt.Println("  status           Show the aggregate status")
	fmt.Println("  focus <query>    Switch tmux to the best matching session")
	fmt.Println("  back, forward    Walk the focus history")
	fmt.Println("  version          Show version")
	fmt.Println("  help             Show this help")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Printf("  %-16s socket path (default %s)\n", session.SocketPathEnv, session.DefaultSocketPath)
	fmt.Printf("  %-16s state dir (default ~/.starcmd)\n", session.HomeEnv)
	fmt.Println("  STARCMD_COLOR    truecolor, 256, 16 or none")
}

// loadConfig returns the user config. A broken file is reported once and the
// defaults are used.
func loadConfig() *session.Config {
	cfg, err := session.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}
	return cfg
}

// socketPath resolves the --socket flag against the config.
func socketPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return loadConfig().Socket.Path
}

// fetchSnapshot asks the daemon for the session list.
func fetchSnapshot(path string) ([]session.SessionInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
	defer cancel()

	resp, err := ipc.Request(ctx, path, &ipc.ListMessage{})
	if err != nil {
		return nil, err
	}
	return session.DecodeSnapshot(resp)
}

// exitOnClientError prints a friendly message for a daemon request failure and exits.
func exitOnClientError(err error) {
	if errors.Is(err, ipc.ErrNotRunning) {
		fmt.Fprintln(os.Stderr, "Error: starcmd daemon is not running (start it with: starcmd serve)")
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}
