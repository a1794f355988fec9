// Package logger constructs the application's slog logger.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// New builds a slog.Logger writing to output (stdout when nil) with the
// given level. Format "json" selects the JSON handler; anything else gets
// the text handler.
func New(level slog.Level, format string, output io.Writer) *slog.Logger {
	if output == nil {
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
