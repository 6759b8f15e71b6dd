package config

import (
	"io"
	"log/slog"
	"os"
)

// SetupLogging configures the global slog logger based on args
// Returns the log file handle (caller must close it) or nil if no file
func SetupLogging(args Args) (*os.File, error) {
	handler, logFile, err := newHandler(args, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(handler))
	return logFile, nil
}

// newHandler builds the handler writing to stderr and, if set, the log file.
// In JSON mode logs are JSON too so stdout stays machine readable.
func newHandler(args Args, stderr io.Writer) (slog.Handler, *os.File, error) {
	writers := []io.Writer{stderr}
	var logFile *os.File

	// Add file writer if specified
	if args.Log != "" {
		f, err := os.OpenFile(args.Log, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, err
		}
		logFile = f
		writers = append(writers, f)
	}

	// Combine writers if multiple
	var output io.Writer
	if len(writers) == 1 {
		output = writers[0]
	} else {
		output = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(args.LogLevel),
	}
	if opts.Level == slog.LevelDebug {
		opts.AddSource = true
	}

	if args.Json {
		return slog.NewJSONHandler(output, opts), logFile, nil
	}
	return slog.NewTextHandler(output, opts), logFile, nil
}

// parseLogLevel converts string to slog.Level
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
