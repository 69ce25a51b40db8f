package conn

import (
	"context"
	"log/slog"
	"slices"
)

// logHandler forwards adapter log records to the connection's logger and
// emits them as EventLog notices. Attrs under a group reach listeners with
// dotted keys ("group.key").
type logHandler struct {
	next   slog.Handler
	emit   func(Notice)
	attrs  []slog.Attr
	prefix string
}

func (h *logHandler) Enabled(ctx context.Context, level slog.Level) bool {
	// Listeners see every record, including those the logger drops.
	return true
}

func (h *logHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, h.qualify(a))
		return true
	})
	h.emit(Notice{Event: EventLog, Message: r.Message, Attrs: attrs})

	if h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *logHandler) qualify(a slog.Attr) slog.Attr {
	if h.prefix != "" {
		a.Key = h.prefix + a.Key
	}
	return a
}

func (h *logHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := slices.Clip(h.attrs)
	for _, a := range attrs {
		merged = append(merged, h.qualify(a))
	}
	return &logHandler{
		next:   h.next.WithAttrs(attrs),
		emit:   h.emit,
		attrs:  merged,
		prefix: h.prefix,
	}
}

func (h *logHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &logHandler{
		next:   h.next.WithGroup(name),
		emit:   h.emit,
		attrs:  h.attrs,
		prefix: h.prefix + name + ".",
	}
}
