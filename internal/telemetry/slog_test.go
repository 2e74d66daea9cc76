package telemetry

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
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewHandler_JSONFormat_ProducesValidJSON(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf, "json", "info")).Info("test message", "key", "value")

	var obj map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &obj); err != nil {
		t.Fatalf("JSON handler output is not valid JSON: %v\noutput: %s", err, buf.String())
	}
	if obj["msg"] != "test message" {
		t.Errorf("expected msg=test message, got %v", obj["msg"])
	}
	if obj["key"] != "value" {
		t.Errorf("expected key=value, got %v", obj["key"])
	}
}

func TestNewHandler_TextFormat_ProducesKeyValuePairs(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf, "text", "info")).Info("text test", "env", "development")

	line := buf.String()
	if !strings.Contains(line, "text test") || !strings.Contains(line, "env=development") {
		t.Errorf("unexpected text output: %q", line)
	}
}

func TestNewHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "json", "warn"))
	logger.Info("should be suppressed")
	logger.Warn("should appear")

	output := buf.String()
	if strings.Contains(output, "should be suppressed") {
		t.Error("Info record appeared despite warn level")
	}
	if !strings.Contains(output, "should appear") {
		t.Error("Warn record was unexpectedly suppressed")
	}
}

func TestNewHandler_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf, "text", "info")).Info("approved",
		"temporary_password", "Xy7Pq2Lm9Rt4",
		"token", "eyJhbGciOi",
		"email", "reader@example.com",
	)

	out := buf.String()
	if strings.Contains(out, "Xy7Pq2Lm9Rt4") || strings.Contains(out, "eyJhbGciOi") {
		t.Errorf("secret leaked into log output: %q", out)
	}
	if !strings.Contains(out, "reader@example.com") {
		t.Errorf("non-secret attribute was dropped: %q", out)
	}
}

func TestSetupLogger_DoesNotPanicForAllCombinations(t *testing.T) {
	defer SetupLogger("text", "error")
	for _, format := range []string{"json", "text", "JSON", "", "unknown"} {
		for _, level := range []string{"debug", "info", "warn", "error", ""} {
			SetupLogger(format, level)
		}
	}
}
