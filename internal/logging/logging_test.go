package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewJSONWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Format: FormatAuto, Out: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug().Int("child", 42).Msg("fork")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if record["message"] != "fork" {
		t.Fatalf("unexpected message: %v", record["message"])
	}
	if record["child"] != float64(42) {
		t.Fatalf("unexpected child field: %v", record["child"])
	}
	if record["app"] != "scriptq" {
		t.Fatalf("unexpected app field: %v", record["app"])
	}
}

func TestNewConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Format: FormatConsole, Out: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info().Msg("ready")

	out := buf.String()
	if !strings.Contains(out, "ready") {
		t.Fatalf("expected message in console output, got %q", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Fatalf("expected console output, got JSON %q", out)
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Format: FormatJSON, Out: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn, got %q", buf.String())
	}
	logger.Warn().Msg("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn should pass, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":         zerolog.InfoLevel,
		"TRACE":    zerolog.TraceLevel,
		" debug ":  zerolog.DebugLevel,
		"disabled": zerolog.Disabled,
	}
	for name, want := range cases {
		got, err := ParseLevel(name)
		if err != nil {
			t.Fatalf("ParseLevel(%q) returned error: %v", name, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml", Out: &bytes.Buffer{}}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
