package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSetOutputLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, slog.LevelWarn, "text")
	defer Setup("info", "text")

	LogInfo("hidden")
	LogWarn("shown", "key", 1)
	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("info written at warn level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") || !strings.Contains(buf.String(), "key=1") {
		t.Errorf("warn missing: %q", buf.String())
	}
	if IsDebugMode() {
		t.Error("warn level is not debug mode")
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, slog.LevelDebug, "JSON")
	defer Setup("info", "text")

	LogDebug("walk", "depth", 2)
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"depth":2`) {
		t.Errorf("unexpected json output %q", buf.String())
	}
	if !IsDebugMode() {
		t.Error("debug level should enable debug mode")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestOr(t *testing.T) {
	l := Discard()
	if Or(l) != l {
		t.Error("Or should keep a non-nil logger")
	}
	if Or(nil) != Logger() {
		t.Error("Or(nil) should return the package logger")
	}
}

func TestLevelChangeKeepsFormat(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, slog.LevelInfo, "json")
	defer Setup("info", "text")

	SetDebugMode(true)
	LogDebug("after debug", "n", 1)
	SetVerbosity(1)
	LogWarn("after verbosity")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines in the original writer, got %q", buf.String())
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "{") {
			t.Errorf("format switched away from json: %q", line)
		}
	}
	if IsDebugMode() {
		t.Error("verbosity 1 should leave debug mode")
	}
}
