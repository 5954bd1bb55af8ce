package logger

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger sinks.
type Options struct {
	Env string
	// File, when set, receives a copy of every record and is rotated by size.
	File string
}

// New returns a slog.Logger configured based on the application environment.
func New(env string) *slog.Logger {
	return NewWithOptions(Options{Env: env})
}

// NewWithOptions builds a JSON logger writing to stdout and, optionally, a rotating file.
func NewWithOptions(opts Options) *slog.Logger {
	handler := slog.NewJSONHandler(writer(opts.File), &slog.HandlerOptions{
		Level: parseLevel(opts.Env),
	})
	return slog.New(handler)
}

func writer(file string) io.Writer {
	if file == "" {
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   file,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	})
}

func parseLevel(env string) slog.Level {
	switch env {
	case "production":
		return slog.LevelInfo
	case "staging":
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
