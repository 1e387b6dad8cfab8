package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/starcmd/starcmd/internal/session"
)

// Table column widths for list output
const (
	colStatus   = 9
	colLocation = 24
	colCwd      = 36
	colAge      = 6
	colMessage  = 48
)

var (
	colorWorking = lipgloss.Color("#9ece6a")
	colorIdle    = lipgloss.Color("#e0af68")
	colorBlocked = lipgloss.Color("#f7768e")
	colorDim     = lipgloss.Color("#787fa0")

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7aa2f7"))
	dimStyle    = lipgloss.NewStyle().Foreground(colorDim)
)

func statusStyle(st session.Status) lipgloss.Style {
	switch st {
	case session.StatusBlocked:
		return lipgloss.NewStyle().Bold(true).Foreground(colorBlocked)
	case session.StatusIdle:
		return lipgloss.NewStyle().Foreground(colorIdle)
	default:
		return lipgloss.NewStyle().Foreground(colorWorking)
	}
}

func statusIcon(st session.Status) string {
	switch st {
	case session.StatusBlocked:
		return "!"
	case session.StatusIdle:
		return "…"
	default:
		return "✓"
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func handleList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON (default when stdout is not a terminal)")
	socket := fs.String("socket", "", "Socket path (overrides config)")
	fs.Usage = func() {
		fmt.Println("Usage: starcmd list [options]")
		fmt.Println()
		fmt.Println("List sessions, most recently active first.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	infos, err := fetchSnapshot(socketPath(*socket))
	if err != nil {
		exitOnClientError(err)
	}

	if *jsonOutput || !isTerminal(os.Stdout) {
		writeJSONOut(os.Stdout, infos)
		return
	}
	if len(infos) == 0 {
		fmt.Println("No sessions.")
		return
	}
	renderTable(os.Stdout, infos, time.Now())
}

func writeJSONOut(w io.Writer, v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to format JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintln(w, string(out))
}

// pad truncates s to width display cells and pads it with spaces.
func pad(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if runewidth.StringWidth(s) > width {
		s = runewidth.Truncate(s, width, "…")
	}
	return runewidth.FillRight(s, width)
}

// shortenHome replaces the home dir prefix with "~".
func shortenHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == home {
		return "~"
	}
	if strings.HasPrefix(path, home+"/") {
		return "~" + path[len(home):]
	}
	return path
}

// formatAge renders a duration as a compact age: 42s, 5m, 3h, 2d.
func formatAge(d time.Duration) string {
	switch {
	case d < 0:
		return "0s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func renderTable(w io.Writer, infos []session.SessionInfo, now time.Time) {
	header := strings.Join([]string{
		pad("STATUS", colStatus),
		pad("LOCATION", colLocation),
		pad("CWD", colCwd),
		pad("AGE", colAge),
		"MESSAGE",
	}, " ")
	fmt.Fprintln(w, headerStyle.Render(header))

	for _, info := range infos {
		msg := ""
		if n := info.LastNotification; n != nil {
			msg = n.Message
		}
		status := statusStyle(info.Status).Render(pad(statusIcon(info.Status)+" "+string(info.Status), colStatus))
		row := strings.Join([]string{
			status,
			pad(info.Tmux, colLocation),
			pad(shortenHome(info.Cwd), colCwd),
			dimStyle.Render(pad(formatAge(now.Sub(info.LastActivity())), colAge)),
			pad(msg, colMessage),
		}, " ")
		fmt.Fprintln(w, strings.TrimRight(row, " "))
	}
}

type statusSummary struct {
	Status  session.Status `json:"status"`
	Total   int            `json:"total"`
	Working int            `json:"working"`
	Idle    int            `json:"idle"`
	Blocked int            `json:"blocked"`
}

func summarize(infos []session.SessionInfo) statusSummary {
	s := statusSummary{Status: session.Aggregate(infos), Total: len(infos)}
	for _, info := range infos {
		switch info.Status {
		case session.StatusBlocked:
			s.Blocked++
		case session.StatusIdle:
			s.Idle++
		default:
			s.Working++
		}
	}
	return s
}

func handleStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	quiet := fs.Bool("quiet", false, "Only print the aggregate status (for status bars)")
	quietShort := fs.Bool("q", false, "Only print the aggregate status (short)")
	socket := fs.String("socket", "", "Socket path (overrides config)")
	fs.Usage = func() {
		fmt.Println("Usage: starcmd status [options]")
		fmt.Println()
		fmt.Println("Show the most urgent status across all sessions.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  starcmd status                     # Summary")
		fmt.Println("  starcmd status -q                  # working | idle | blocked")
		fmt.Println("  set -g status-right '#(starcmd status -q)'")
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	infos, err := fetchSnapshot(socketPath(*socket))
	if err != nil {
		exitOnClientError(err)
	}
	sum := summarize(infos)

	switch {
	case *jsonOutput:
		writeJSONOut(os.Stdout, sum)
	case *quiet || *quietShort:
		fmt.Println(sum.Status)
	default:
		fmt.Printf("%s %s  (%d sessions: %d working, %d idle, %d blocked)\n",
			statusStyle(sum.Status).Render(statusIcon(sum.Status)),
			statusStyle(sum.Status).Render(string(sum.Status)),
			sum.Total, sum.Working, sum.Idle, sum.Blocked)
	}
}
