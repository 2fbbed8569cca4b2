package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	otellog "go.opentelemetry.io/otel/log"
)

// scopeName is the instrumentation scope of mirrored log records.
const scopeName = "offsync"

// slogHandler forwards every record to next and mirrors it into an
// OpenTelemetry logger. Errors from the mirror are not observable; the
// result of next is returned.
type slogHandler struct {
	next   slog.Handler
	logger otellog.Logger
	attrs  []otellog.KeyValue
	prefix string
}

// NewSlogHandler returns a handler that writes to next and emits each record
// through lp. Pass global.GetLoggerProvider() after [Setup].
func NewSlogHandler(next slog.Handler, lp otellog.LoggerProvider) slog.Handler {
	return &slogHandler{next: next, logger: lp.Logger(scopeName)}
}

func (h *slogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *slogHandler) Handle(ctx context.Context, r slog.Record) error {
	err := h.next.Handle(ctx, r)

	var rec otellog.Record
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	rec.SetTimestamp(ts)
	rec.SetObservedTimestamp(time.Now())
	rec.SetSeverity(severity(r.Level))
	rec.SetSeverityText(r.Level.String())
	rec.SetBody(otellog.StringValue(r.Message))
	rec.AddAttributes(h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		rec.AddAttributes(convertAttr(h.prefix, a)...)
		return true
	})
	h.logger.Emit(ctx, rec)

	return err
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	kvs := make([]otellog.KeyValue, 0, len(h.attrs)+len(attrs))
	kvs = append(kvs, h.attrs...)
	for _, a := range attrs {
		kvs = append(kvs, convertAttr(h.prefix, a)...)
	}
	return &slogHandler{
		next:   h.next.WithAttrs(attrs),
		logger: h.logger,
		attrs:  kvs,
		prefix: h.prefix,
	}
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &slogHandler{
		next:   h.next.WithGroup(name),
		logger: h.logger,
		attrs:  h.attrs,
		prefix: h.prefix + name + ".",
	}
}

func severity(l slog.Level) otellog.Severity {
	switch {
	case l >= slog.LevelError:
		return otellog.SeverityError
	case l >= slog.LevelWarn:
		return otellog.SeverityWarn
	case l >= slog.LevelInfo:
		return otellog.SeverityInfo
	default:
		return otellog.SeverityDebug
	}
}

// convertAttr flattens groups into dotted keys.
func convertAttr(prefix string, a slog.Attr) []otellog.KeyValue {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return nil
	}
	key := prefix + a.Key
	v := a.Value

	switch v.Kind() {
	case slog.KindGroup:
		p := prefix
		if a.Key != "" {
			p = key + "."
		}
		var out []otellog.KeyValue
		for _, ga := range v.Group() {
			out = append(out, convertAttr(p, ga)...)
		}
		return out
	case slog.KindString:
		return []otellog.KeyValue{otellog.String(key, v.String())}
	case slog.KindInt64:
		return []otellog.KeyValue{otellog.Int64(key, v.Int64())}
	case slog.KindUint64:
		return []otellog.KeyValue{otellog.Int64(key, int64(v.Uint64()))} //nolint:gosec // counters never exceed int64
	case slog.KindFloat64:
		return []otellog.KeyValue{otellog.Float64(key, v.Float64())}
	case slog.KindBool:
		return []otellog.KeyValue{otellog.Bool(key, v.Bool())}
	case slog.KindDuration:
		return []otellog.KeyValue{otellog.String(key, v.Duration().String())}
	case slog.KindTime:
		return []otellog.KeyValue{otellog.String(key, v.Time().UTC().Format(time.RFC3339Nano))}
	}

	if err, ok := v.Any().(error); ok {
		return []otellog.KeyValue{otellog.String(key, err.Error())}
	}
	return []otellog.KeyValue{otellog.String(key, fmt.Sprint(v.Any()))}
}
