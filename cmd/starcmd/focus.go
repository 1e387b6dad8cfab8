package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/starcmd/starcmd/internal/session"
	"github.com/starcmd/starcmd/internal/tmux"
)

// sessionCandidates adapts a snapshot to fuzzy.Source. Each session is
// matched on its id, working directory and location together.
type sessionCandidates []session.SessionInfo

func (c sessionCandidates) String(i int) string {
	info := c[i]
	return info.SessionID + " " + info.Cwd + " " + info.Tmux
}

func (c sessionCandidates) Len() int { return len(c) }

// pickSession chooses the session for a focus query. An empty query picks
// the most urgent session, most recently active first; a query that is a
// pane id or session id picks that session exactly.
func pickSession(infos []session.SessionInfo, query string) (session.SessionInfo, error) {
	if len(infos) == 0 {
		return session.SessionInfo{}, errors.New("no sessions")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		best := infos[0]
		for _, info := range infos[1:] {
			if info.Status.Severity() > best.Status.Severity() {
				best = info
			}
		}
		return best, nil
	}
	for _, info := range infos {
		if info.PaneID == query || info.SessionID == query {
			return info, nil
		}
	}
	matches := fuzzy.FindFrom(query, sessionCandidates(infos))
	if len(matches) == 0 {
		return session.SessionInfo{}, fmt.Errorf("no session matches %q", query)
	}
	return infos[matches[0].Index], nil
}

func infoLocation(info session.SessionInfo) session.Location {
	if info.Location != nil {
		return *info.Location
	}
	loc, err := session.ParseLocation(info.Tmux, session.FormatAuto)
	if err != nil {
		return session.Location{PaneID: info.PaneID}
	}
	return loc
}

func historyPath() string {
	dir, err := session.GetStarcmdDir()
	if err != nil {
		return filepath.Join(os.TempDir(), tmux.HistoryFileName)
	}
	return filepath.Join(dir, tmux.HistoryFileName)
}

// withNavigator runs fn with a navigator loaded from the history file and
// saves the history afterwards.
func withNavigator(fn func(context.Context, *tmux.Navigator) error) error {
	cfg := loadConfig()
	path := historyPath()
	nav := tmux.NewNavigator(tmux.NewExecRunner(cfg.Tmux.Binary), tmux.LoadHistory(path))

	ctx, cancel := context.WithTimeout(context.Background(), 2*clientTimeout)
	defer cancel()
	if err := fn(ctx, nav); err != nil {
		return err
	}
	return tmux.SaveHistory(path, nav.History())
}

func handleFocus(args []string) {
	fs := flag.NewFlagSet("focus", flag.ExitOnError)
	socket := fs.String("socket", "", "Socket path (overrides config)")
	fs.Usage = func() {
		fmt.Println("Usage: starcmd focus [query]")
		fmt.Println()
		fmt.Println("Switch tmux to a session. Without a query, the most urgent one.")
		fmt.Println("The query is a pane id, a session id, or fuzzy text matched against")
		fmt.Println("session id, working directory and location.")
		fmt.Println()
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	infos, err := fetchSnapshot(socketPath(*socket))
	if err != nil {
		exitOnClientError(err)
	}
	target, err := pickSession(infos, strings.Join(fs.Args(), " "))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	err = withNavigator(func(ctx context.Context, nav *tmux.Navigator) error {
		return nav.Focus(ctx, infoLocation(target))
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s %s\n", statusStyle(target.Status).Render(statusIcon(target.Status)), target.Tmux)
}

func handleBack(args []string)    { handleStep("back", args) }
func handleForward(args []string) { handleStep("forward", args) }

func handleStep(direction string, args []string) {
	fs := flag.NewFlagSet(direction, flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	var loc session.Location
	err := withNavigator(func(ctx context.Context, nav *tmux.Navigator) error {
		var err error
		if direction == "back" {
			loc, err = nav.Back(ctx)
		} else {
			loc, err = nav.Forward(ctx)
		}
		return err
	})
	if errors.Is(err, tmux.ErrHistoryEmpty) {
		fmt.Fprintf(os.Stderr, "Nothing to go %s to.\n", direction)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(loc.Display())
}
