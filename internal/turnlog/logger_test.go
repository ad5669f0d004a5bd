package turnlog

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecordTurnDualWrites(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "events.db")
	jsonlPath := filepath.Join(dir, "events.jsonl")

	l, err := Open(dbPath, jsonlPath, "sess1", testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	turn := json.RawMessage(`[{"type":"text","text":"hello there"}]`)
	if err := l.RecordTurn(turn, 1000); err != nil {
		t.Fatalf("RecordTurn: %v", err)
	}

	turns, err := l.RecentTurns(10)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn from sqlite, got %d", len(turns))
	}

	lines := readLines(t, jsonlPath)
	if len(lines) != 1 {
		t.Fatalf("expected 1 jsonl line, got %d", len(lines))
	}
	var rec turnRecord
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal jsonl line: %v", err)
	}
	if rec.Summary != "hello there" {
		t.Errorf("Summary = %q, want %q", rec.Summary, "hello there")
	}
	if rec.Session != "sess1" {
		t.Errorf("Session = %q, want sess1", rec.Session)
	}
}

func TestRecordEventDualWrites(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(filepath.Join(dir, "events.db"), filepath.Join(dir, "events.jsonl"), "sess1", testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	if err := l.RecordEvent("SessionStart", json.RawMessage(`{"cwd":"/tmp"}`), 2000); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}

	lines := readLines(t, filepath.Join(dir, "events.jsonl"))
	if len(lines) != 1 {
		t.Fatalf("expected 1 jsonl line, got %d", len(lines))
	}
	var rec eventRecord
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.Name != "SessionStart" {
		t.Errorf("Name = %q, want SessionStart", rec.Name)
	}
}

func TestFormatTimestampIsStable(t *testing.T) {
	got := FormatTimestamp(0)
	want := "1970-01-01 00:00:00"
	if got != want {
		t.Errorf("FormatTimestamp(0) = %q, want %q", got, want)
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}
