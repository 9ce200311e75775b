// Package obslog builds the hub's structured logger: one tint handler
// writing to the console, its output optionally duplicated into a rotating
// file, grounded in the corpus's tint (console) and lumberjack (file) pairing.
package obslog

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger New builds.
type Options struct {
	Level   string // "debug", "info", "warn", "error"
	File    string // rotating log file path; empty disables file output
	NoColor bool
}

// New returns a slog.Logger writing tint-formatted lines to stderr and, when
// Options.File is set, the same lines (colorized unless NoColor is set) to
// a size/age-rotated file via lumberjack — the console stays for a human
// watching the process, the file survives after it scrolls off.
func New(opts Options) *slog.Logger {
	level := parseLevel(opts.Level)

	dest := io.Writer(os.Stderr)
	if opts.File != "" {
		dest = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	handler := tint.NewHandler(dest, &tint.Options{
		Level:      level,
		NoColor:    opts.NoColor,
		TimeFormat: "15:04:05",
	})
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
