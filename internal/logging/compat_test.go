package logging

import (
	"log/slog"
	"path/filepath"
	"testing"
)

func TestStdLoggerRoutesThroughSlog(t *testing.T) {
	Shutdown()

	dir := t.TempDir()
	Init(Config{LogDir: dir})
	defer Shutdown()

	l := NewStdLogger(CompWeb, slog.LevelWarn)
	l.Print("http: superfluous response.WriteHeader call")

	rec := findRecord(readRecords(t, filepath.Join(dir, LogFileName)), "superfluous response.WriteHeader call")
	if rec == nil {
		t.Fatal("expected bridged record")
	}
	if rec["origin"] != "http" {
		t.Errorf("expected origin=http, got %v", rec["origin"])
	}
	if rec["level"] != "WARN" {
		t.Errorf("expected level WARN, got %v", rec["level"])
	}
	if rec["component"] != CompWeb {
		t.Errorf("expected component=%s, got %v", CompWeb, rec["component"])
	}
}

func TestStripLogTimestamp(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"15:04:05.000000 hello", "hello"},
		{"15:04:05 hello", "hello"},
		{"hello", "hello"},
	}
	for _, tt := range tests {
		if got := stripLogTimestamp(tt.in); got != tt.want {
			t.Errorf("stripLogTimestamp(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
