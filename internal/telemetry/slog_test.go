package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

type memExporter struct {
	mu   sync.Mutex
	recs []sdklog.Record
}

func (e *memExporter) Export(_ context.Context, recs []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range recs {
		e.recs = append(e.recs, r.Clone())
	}
	return nil
}

func (e *memExporter) Shutdown(context.Context) error   { return nil }
func (e *memExporter) ForceFlush(context.Context) error { return nil }

func newTestLogger(t *testing.T, level slog.Level) (*slog.Logger, *bytes.Buffer, *memExporter) {
	t.Helper()
	exp := &memExporter{}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exp)))
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })

	var buf bytes.Buffer
	text := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})
	return slog.New(NewSlogHandler(text, lp)), &buf, exp
}

func attrs(r sdklog.Record) map[string]string {
	out := make(map[string]string)
	r.WalkAttributes(func(kv otellog.KeyValue) bool {
		out[kv.Key] = kv.Value.String()
		return true
	})
	return out
}

func TestSlogHandler_Tees(t *testing.T) {
	logger, buf, exp := newTestLogger(t, slog.LevelInfo)

	logger.With("collection", "tasks").WithGroup("pass").Warn("sync failed",
		"pushed", 3,
		"took", 1500*time.Millisecond,
		"error", errors.New("boom"),
		slog.Group("remote", "status", 503),
	)

	if !strings.Contains(buf.String(), "sync failed") {
		t.Errorf("text output = %q, want the message", buf.String())
	}
	if len(exp.recs) != 1 {
		t.Fatalf("exported %d records, want 1", len(exp.recs))
	}
	rec := exp.recs[0]
	if got := rec.Body().AsString(); got != "sync failed" {
		t.Errorf("Body = %q, want %q", got, "sync failed")
	}
	if rec.Severity() != otellog.SeverityWarn {
		t.Errorf("Severity = %v, want Warn", rec.Severity())
	}

	got := attrs(rec)
	want := map[string]string{
		"collection":         "tasks",
		"pass.pushed":        "3",
		"pass.took":          "1.5s",
		"pass.error":         "boom",
		"pass.remote.status": "503",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("attr %q = %q, want %q (all: %v)", k, got[k], v, got)
		}
	}
}

func TestSlogHandler_RespectsLevel(t *testing.T) {
	logger, buf, exp := newTestLogger(t, slog.LevelInfo)
	logger.Debug("noise")
	if buf.Len() != 0 || len(exp.recs) != 0 {
		t.Errorf("debug record leaked: text %q, exported %d", buf.String(), len(exp.recs))
	}
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  otellog.Severity
	}{
		{slog.LevelDebug, otellog.SeverityDebug},
		{slog.LevelInfo, otellog.SeverityInfo},
		{slog.LevelWarn, otellog.SeverityWarn},
		{slog.LevelError, otellog.SeverityError},
		{slog.LevelError + 4, otellog.SeverityError},
	}
	for _, tt := range tests {
		if got := severity(tt.level); got != tt.want {
			t.Errorf("severity(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestSetup_RequiresEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	if err == nil {
		t.Fatal("Setup succeeded without an endpoint")
	}
	if shutdown == nil {
		t.Fatal("Setup returned a nil shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown: %v", err)
	}
}
