package redact

import (
	"context"
	"log/slog"
)

// Handler wraps a slog.Handler and redacts secrets from the message
// and every string-valued attribute before the record reaches the
// inner handler, so no key leaks into logs regardless of where the
// log call originates.
type Handler struct {
	inner    slog.Handler
	redactor *Redactor
}

var _ slog.Handler = (*Handler)(nil)

// NewHandler wraps inner with redaction.
func NewHandler(inner slog.Handler, redactor *Redactor) *Handler {
	return &Handler{inner: inner, redactor: redactor}
}

// Enabled delegates to the inner handler.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle redacts the message and the call-site attributes, then
// delegates to the inner handler.
func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	clean := slog.NewRecord(record.Time, record.Level, h.redactor.Redact(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, clean)
}

// WithAttrs redacts the attributes and folds them into the inner
// handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = h.redactAttr(a)
	}
	return &Handler{inner: h.inner.WithAttrs(clean), redactor: h.redactor}
}

// WithGroup delegates grouping to the inner handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name), redactor: h.redactor}
}

func (h *Handler) redactAttr(a slog.Attr) slog.Attr {
	// Resolve first so LogValuer, error, and Stringer values take
	// their final form before matching.
	a.Value = a.Value.Resolve()

	switch a.Value.Kind() {
	case slog.KindString:
		a.Value = slog.StringValue(h.redactor.Redact(a.Value.String()))
	case slog.KindGroup:
		attrs := a.Value.Group()
		clean := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			clean[i] = h.redactAttr(ga)
		}
		a.Value = slog.GroupValue(clean...)
	case slog.KindAny:
		s := a.Value.String()
		if cleaned := h.redactor.Redact(s); cleaned != s {
			a.Value = slog.StringValue(cleaned)
		}
	}
	return a
}
