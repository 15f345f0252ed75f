package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q): want %v, got %v", in, want, got)
		}
	}
}

func TestSetupRejectsUnknown(t *testing.T) {
	if err := Setup(Options{Level: "loud"}); err == nil {
		t.Fatalf("Setup: want error for unknown level")
	}
	if err := Setup(Options{Format: "xml"}); err == nil {
		t.Fatalf("Setup: want error for unknown format")
	}
}

func TestForConnJSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	if err := Setup(Options{Level: "info", Format: "json", Output: &buf}); err != nil {
		t.Fatalf("Setup: unexpected error: %v", err)
	}
	ForConn("01HX", "127.0.0.1:5000").Info("client registered", "nick", "bob")
	ForConn("01HX", "127.0.0.1:5000").Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("log lines: want 1, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	for key, want := range map[string]string{"msg": "client registered", "conn": "01HX", "remote": "127.0.0.1:5000", "nick": "bob"} {
		if rec[key] != want {
			t.Fatalf("log attr %s: want %q, got %v", key, want, rec[key])
		}
	}
}
