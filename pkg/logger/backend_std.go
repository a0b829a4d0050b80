package logger

import (
	"io"
	"log/slog"
)

func newStdHandler(cfg Config, w io.Writer) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     cfg.level(),
		AddSource: cfg.AddSource,
	})
}
