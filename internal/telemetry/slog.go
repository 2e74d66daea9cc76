package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// redactedKeys never reach log output with their values.
var redactedKeys = map[string]bool{
	"password":           true,
	"temporary_password": true,
	"token":              true,
	"authorization":      true,
}

// ParseLevel maps "debug", "info", "warn"/"warning", "error" (case-insensitive) to a
// slog level. Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if redactedKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, "[REDACTED]")
	}
	return a
}

// NewHandler builds the handler SetupLogger installs: JSON when format is "json",
// text otherwise. Source locations are included only at debug level.
func NewHandler(w io.Writer, format, level string) slog.Handler {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   lvl == slog.LevelDebug,
		ReplaceAttr: redact,
	}
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SetupLogger installs the configured logger as the slog default, so slog.Info and
// friends work everywhere without carrying a *slog.Logger around.
func SetupLogger(format, level string) {
	slog.SetDefault(slog.New(NewHandler(os.Stdout, format, level)))
	slog.Info("logger initialised", "format", format, "level", ParseLevel(level).String())
}
