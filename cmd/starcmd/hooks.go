package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/starcmd/starcmd/internal/ipc"
	"github.com/starcmd/starcmd/internal/session"
)

func handleHooks(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: starcmd hooks <install|uninstall|status>")
		os.Exit(1)
	}

	dir := session.ClaudeConfigDir()
	settings := filepath.Join(dir, "settings.json")

	switch args[0] {
	case "install":
		installed, err := session.InstallClaudeHooks(dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error installing hooks: %v\n", err)
			os.Exit(1)
		}
		if installed {
			fmt.Println("Hooks installed.")
			fmt.Printf("Config: %s\n", settings)
		} else {
			fmt.Println("Hooks are already installed.")
		}
	case "uninstall":
		removed, err := session.UninstallClaudeHooks(dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error removing hooks: %v\n", err)
			os.Exit(1)
		}
		if removed {
			fmt.Println("Hooks removed.")
		} else {
			fmt.Println("No starcmd hooks found to remove.")
		}
	case "status":
		if session.ClaudeHooksInstalled(dir) {
			fmt.Println("Hooks:  INSTALLED")
		} else {
			fmt.Println("Hooks:  NOT INSTALLED (run: starcmd hooks install)")
		}
		fmt.Printf("Config: %s\n", settings)

		path := loadConfig().Socket.Path
		if ipc.Probe(path, ipc.DefaultProbeTimeout) {
			fmt.Printf("Daemon: running on %s\n", path)
		} else {
			fmt.Printf("Daemon: not running (%s)\n", path)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown hooks subcommand: %s\n", args[0])
		fmt.Fprintln(os.Stderr, "Usage: starcmd hooks <install|uninstall|status>")
		os.Exit(1)
	}
}
