package logging

import (
	"context"
	"log/slog"

	"github.com/drblury/resourceflow/internal/runtime/correlation"
)

// ContextHandler decorates a slog.Handler with the correlation id found in the
// record context, so any slog call made with a request context is tagged.
type ContextHandler struct {
	inner slog.Handler
}

// NewContextHandler wraps inner.
func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, record slog.Record) error {
	if id, ok := correlation.FromContext(ctx); ok {
		record = record.Clone()
		record.AddAttrs(slog.String(correlation.MetadataKey, id))
	}
	return h.inner.Handle(ctx, record)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}
