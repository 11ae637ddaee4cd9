package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// SlogHandler routes log/slog records into zerolog. The supervisor tree's
// event hook only speaks slog.
type SlogHandler struct {
	logger zerolog.Logger
	attrs  []slog.Attr
}

func NewSlogHandler(l zerolog.Logger) *SlogHandler {
	return &SlogHandler{logger: l}
}

// NewSlogLogger wraps the current global logger.
func NewSlogLogger() *slog.Logger {
	return slog.New(NewSlogHandler(Logger()))
}

func (h *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.GetLevel() <= toZerologLevel(level) && zerolog.GlobalLevel() <= toZerologLevel(level)
}

func (h *SlogHandler) Handle(_ context.Context, r slog.Record) error {
	event := h.logger.WithLevel(toZerologLevel(r.Level))
	for _, a := range h.attrs {
		event = event.Interface(a.Key, a.Value.Any())
	}
	r.Attrs(func(a slog.Attr) bool {
		event = event.Interface(a.Key, a.Value.Any())
		return true
	})
	event.Msg(r.Message)
	return nil
}

func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &SlogHandler{logger: h.logger, attrs: merged}
}

// WithGroup flattens groups; supervisor events do not use them.
func (h *SlogHandler) WithGroup(string) slog.Handler {
	return h
}

func toZerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level >= slog.LevelError:
		return zerolog.ErrorLevel
	case level >= slog.LevelWarn:
		return zerolog.WarnLevel
	case level >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
