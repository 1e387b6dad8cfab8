package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"

	"github.com/starcmd/starcmd/internal/session"
)

func TestPad(t *testing.T) {
	assert.Equal(t, "abc  ", pad("abc", 5))
	assert.Equal(t, 5, runewidth.StringWidth(pad("abcdefgh", 5)))
	assert.True(t, strings.HasSuffix(pad("abcdefgh", 5), "…"))

	wide := pad("日本語のパス", 7)
	assert.Equal(t, 7, runewidth.StringWidth(wide))
	assert.NotContains(t, pad("two\nlines", 20), "\n")
}

func TestFormatAge(t *testing.T) {
	assert.Equal(t, "0s", formatAge(-time.Second))
	assert.Equal(t, "42s", formatAge(42*time.Second))
	assert.Equal(t, "5m", formatAge(5*time.Minute+10*time.Second))
	assert.Equal(t, "3h", formatAge(3*time.Hour))
	assert.Equal(t, "2d", formatAge(50*time.Hour))
}

func TestShortenHome(t *testing.T) {
	t.Setenv("HOME", "/home/dev")
	assert.Equal(t, "~", shortenHome("/home/dev"))
	assert.Equal(t, "~/src/app", shortenHome("/home/dev/src/app"))
	assert.Equal(t, "/home/devops", shortenHome("/home/devops"))
}

func TestRenderTable(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)
	t.Cleanup(initColorProfile)

	now := time.Unix(1_700_000_600, 0)
	infos := []session.SessionInfo{
		{
			SessionID: "a", PaneID: "%1", Status: session.StatusBlocked, Cwd: "/src/one", Tmux: "dev:editor:%1",
			LastActivityAt:   now.Add(-90 * time.Second).Unix(),
			LastNotification: &session.NotificationInfo{Message: "Allow Bash?", Type: session.KindPermissionPrompt},
		},
		{SessionID: "b", PaneID: "%2", Status: session.StatusWorking, Cwd: "/src/two", Tmux: "dev:tests:%2", LastActivityAt: now.Unix()},
	}

	var buf bytes.Buffer
	renderTable(&buf, infos, now)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")

	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "STATUS")
	assert.Contains(t, lines[1], "blocked")
	assert.Contains(t, lines[1], "dev:editor:%1")
	assert.Contains(t, lines[1], "1m")
	assert.Contains(t, lines[1], "Allow Bash?")
	assert.Contains(t, lines[2], "working")
}

func TestSummarize(t *testing.T) {
	sum := summarize([]session.SessionInfo{
		{Status: session.StatusWorking},
		{Status: session.StatusIdle},
		{Status: session.StatusIdle},
	})
	assert.Equal(t, statusSummary{Status: session.StatusIdle, Total: 3, Working: 1, Idle: 2}, sum)

	assert.Equal(t, session.StatusWorking, summarize(nil).Status)
}
