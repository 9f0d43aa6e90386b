package cli

import (
	"io"
	"log/slog"
	"strings"
)

// newLogger builds the process logger. The returned LevelVar lets a config
// reload change the level of a running server.
func newLogger(w io.Writer, level, format string, verbose bool) (*slog.Logger, *slog.LevelVar) {
	lv := new(slog.LevelVar)
	lv.Set(parseLevel(level))
	if verbose {
		lv.Set(slog.LevelDebug)
	}

	hopts := &slog.HandlerOptions{Level: lv}
	var h slog.Handler
	if format == "text" {
		h = slog.NewTextHandler(w, hopts)
	} else {
		h = slog.NewJSONHandler(w, hopts)
	}
	return slog.New(h), lv
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
