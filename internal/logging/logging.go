package logging

import (
	"errors"
	"io"
	"log/slog"
	"os"
)

// Configure sets up the default slog logger. Valid levels are "none",
// "error", "warn", "info" and "debug". With logFile empty, text output goes
// to stdout; otherwise JSON output goes to the file, and the returned
// *os.File should be closed at shutdown.
func Configure(logLevel, logFile string) (*os.File, error) {
	var options slog.HandlerOptions

	switch logLevel {
	case "none":
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return nil, nil
	case "error":
		options.Level = slog.LevelError
	case "warn":
		options.Level = slog.LevelWarn
	case "info":
		options.Level = slog.LevelInfo
	case "debug":
		options.Level = slog.LevelDebug
	default:
		return nil, errors.New("unexpected log level: " + logLevel)
	}

	if logFile == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &options)))
		return nil, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(f, &options)))
	return f, nil
}
