package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewWritesJSONWithService(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(Config{Service: "chat"}, &buf)
	logger.Info().Str("route", "menu").Msg("routed")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %q", buf.String())
	}
	if line["service"] != "chat" || line["route"] != "menu" || line["message"] != "routed" {
		t.Fatalf("unexpected line: %v", line)
	}
	if _, ok := line["caller"]; !ok {
		t.Fatal("caller missing")
	}
}

func TestNewFiltersDebugUnlessEnabled(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	quiet := New(Config{}, &buf)
	quiet.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line written at info level: %q", buf.String())
	}

	verbose := New(Config{Debug: true}, &buf)
	verbose.Debug().Msg("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("debug line missing: %q", buf.String())
	}
}

func TestNewPrettyFormatIsNotJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(Config{PrettyFormat: true}, &buf)
	logger.Info().Msg("hello")
	if json.Valid(bytes.TrimSpace(buf.Bytes())) {
		t.Fatalf("pretty output should not be JSON: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("message missing: %q", buf.String())
	}
}
