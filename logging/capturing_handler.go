package logging

import (
	"context"
	"log/slog"
)

// CapturingHandler wraps an slog.Handler, recording every log record for a
// pipeline stage before passing it on.
type CapturingHandler struct {
	underlying slog.Handler
	collector  *LogCollector
	stage      string
	attrs      []slog.Attr
	groups     []string
}

// NewCapturingHandler creates a handler that records logs for stage in the
// collector and forwards them to underlying.
func NewCapturingHandler(underlying slog.Handler, collector *LogCollector, stage string) *CapturingHandler {
	return &CapturingHandler{
		underlying: underlying,
		collector:  collector,
		stage:      stage,
	}
}

// Enabled reports true for every level so debug logs are captured even when
// the underlying handler filters them out.
func (h *CapturingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

// Handle captures the record, then forwards it if the underlying handler
// accepts the level.
func (h *CapturingHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := LogEntry{
		Time:       r.Time,
		Level:      r.Level.String(),
		Message:    r.Message,
		Attributes: make(map[string]any, r.NumAttrs()+len(h.attrs)),
	}

	for _, attr := range h.attrs {
		entry.Attributes[attr.Key] = resolveValue(attr.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		entry.Attributes[a.Key] = resolveValue(a.Value)
		return true
	})

	h.collector.AddLog(h.stage, entry)

	if !h.underlying.Enabled(ctx, r.Level) {
		return nil
	}
	return h.underlying.Handle(ctx, r)
}

// WithAttrs returns a new CapturingHandler so capturing survives .With() chains.
func (h *CapturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)

	return &CapturingHandler{
		underlying: h.underlying.WithAttrs(attrs),
		collector:  h.collector,
		stage:      h.stage,
		attrs:      newAttrs,
		groups:     h.groups,
	}
}

// WithGroup returns a new CapturingHandler so capturing survives WithGroup.
func (h *CapturingHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups[len(h.groups)] = name

	return &CapturingHandler{
		underlying: h.underlying.WithGroup(name),
		collector:  h.collector,
		stage:      h.stage,
		attrs:      h.attrs,
		groups:     newGroups,
	}
}

// resolveValue converts a slog.Value to a JSON-serializable value.
func resolveValue(v slog.Value) any {
	v = v.Resolve()

	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time()
	case slog.KindAny:
		a := v.Any()
		if err, ok := a.(error); ok {
			return err.Error()
		}
		return a
	case slog.KindGroup:
		attrs := v.Group()
		group := make(map[string]any, len(attrs))
		for _, attr := range attrs {
			group[attr.Key] = resolveValue(attr.Value)
		}
		return group
	default:
		return v.Any()
	}
}
