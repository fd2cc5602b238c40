package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWritesJSONWithService(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Service: "worker", Level: "warn", Output: &buf})

	logger.Info("job_started", "job_id", "j1")
	logger.Warn("job_failed", "job_id", "j1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected info to be filtered, got %d lines: %s", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["msg"] != "job_failed" || entry["service"] != "worker" || entry["job_id"] != "j1" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Service: "phasectl", Format: "TEXT", Output: &buf}).Info("transmittal_imported", "basename", "FAC10005-CTR-CLT-TRS-00001")

	out := buf.String()
	if !strings.Contains(out, "msg=transmittal_imported") || !strings.Contains(out, "service=phasectl") {
		t.Fatalf("unexpected text output: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
