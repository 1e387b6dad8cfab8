package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func readRecords(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	var records []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("failed to parse JSONL line %q: %v", sc.Text(), err)
		}
		records = append(records, rec)
	}
	return records
}

func findRecord(records []map[string]any, msg string) map[string]any {
	for _, r := range records {
		if r["msg"] == msg {
			return r
		}
	}
	return nil
}

func TestInitWritesJSONL(t *testing.T) {
	Shutdown()

	dir := t.TempDir()
	Init(Config{LogDir: dir})
	defer Shutdown()

	Logger().Info("test_message", "key", "value")

	rec := findRecord(readRecords(t, filepath.Join(dir, LogFileName)), "test_message")
	if rec == nil {
		t.Fatal("expected test_message record")
	}
	if rec["key"] != "value" {
		t.Errorf("expected key=value, got %v", rec["key"])
	}
}

func TestInitWithoutDestinationDiscards(t *testing.T) {
	Shutdown()
	Init(Config{})
	defer Shutdown()

	if Logger() == nil {
		t.Fatal("expected non-nil logger")
	}
	Logger().Info("goes nowhere")
}

func TestForComponentBeforeInit(t *testing.T) {
	Shutdown()
	early := ForComponent(CompStore)

	dir := t.TempDir()
	Init(Config{LogDir: dir})
	defer Shutdown()

	early.Info("register_applied", slog.String("session_id", "A"))

	rec := findRecord(readRecords(t, filepath.Join(dir, LogFileName)), "register_applied")
	if rec == nil {
		t.Fatal("expected record from logger created before Init")
	}
	if rec["component"] != CompStore {
		t.Errorf("expected component=%s, got %v", CompStore, rec["component"])
	}
	if rec["session_id"] != "A" {
		t.Errorf("expected session_id=A, got %v", rec["session_id"])
	}
}

func TestSetLevelAppliesLive(t *testing.T) {
	Shutdown()

	dir := t.TempDir()
	Init(Config{LogDir: dir, Level: "warn"})
	defer Shutdown()

	Logger().Info("filtered_before")
	SetLevel("debug")
	Logger().Debug("visible_after")

	records := readRecords(t, filepath.Join(dir, LogFileName))
	if findRecord(records, "filtered_before") != nil {
		t.Error("info record should have been filtered at warn level")
	}
	if findRecord(records, "visible_after") == nil {
		t.Error("debug record should appear after SetLevel(debug)")
	}
	if Level() != slog.LevelDebug {
		t.Errorf("expected level debug, got %v", Level())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTextFormat(t *testing.T) {
	Shutdown()

	dir := t.TempDir()
	Init(Config{LogDir: dir, Format: "text"})
	defer Shutdown()

	Logger().Info("text_format_test")

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &rec); err == nil {
		t.Error("expected text format, got JSON")
	}
	if !bytes.Contains(data, []byte("msg=text_format_test")) {
		t.Errorf("expected msg=text_format_test in %q", data)
	}
}

func TestDumpRingBuffer(t *testing.T) {
	Shutdown()

	dir := t.TempDir()
	Init(Config{LogDir: dir, RingBufferSize: 4096})
	defer Shutdown()

	Logger().Info("ring_test_message")

	dumpPath := filepath.Join(dir, "crash.log")
	if err := DumpRingBuffer(dumpPath); err != nil {
		t.Fatalf("DumpRingBuffer failed: %v", err)
	}
	data, err := os.ReadFile(dumpPath)
	if err != nil {
		t.Fatalf("failed to read dump: %v", err)
	}
	if !bytes.Contains(data, []byte("ring_test_message")) {
		t.Errorf("dump missing message: %q", data)
	}
}
