// Package logging builds the process logger.
package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Options selects the handler.
type Options struct {
	Level  string // debug, info, warn or error; empty means info
	Format string // text or json; empty means text
}

// New returns a logger writing to w.
//
// The text format uses tint, coloured only when w is a terminal. An unknown
// level or format falls back to the default and logs a warning through the
// returned logger.
func New(w io.Writer, opts Options) *slog.Logger {
	level, levelOK := ParseLevel(opts.Level)

	var handler slog.Handler
	format := strings.ToLower(opts.Format)
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
			NoColor:    !isTerminal(w),
		})
	}

	logger := slog.New(handler)
	if !levelOK {
		logger.Warn("could not parse log level", "level", opts.Level)
	}
	if format != "" && format != "text" && format != "json" {
		logger.Warn("could not parse log format", "format", opts.Format)
	}
	return logger
}

// ParseLevel maps a level name to a slog.Level. The bool is false for
// unknown names, which map to info.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
