// Package telemetry wires optional OpenTelemetry export for offsync. Spans
// for sync passes, the per-collection record counters and mirrored slog
// records all leave the process over one OTLP gRPC connection.
//
// Call [Setup] once during startup and defer the returned [ShutdownFunc]
// with a fresh context. Without Setup the global providers stay no-ops, so
// instrumented code never has to check whether telemetry is on.
// [NewSlogHandler] feeds slog records into the log provider.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// DefaultServiceName is the service.name used when none is configured.
const DefaultServiceName = "offsync"

// Config mirrors the telemetry block of the offsync config file.
type Config struct {
	// OTLPEndpoint is the collector's gRPC host:port, e.g. "localhost:4317".
	OTLPEndpoint string

	// Insecure dials the collector without TLS.
	Insecure bool

	// ServiceName sets service.name. Defaults to [DefaultServiceName].
	ServiceName string

	// Headers travel as gRPC metadata on every export, typically an
	// Authorization header for hosted collectors.
	Headers map[string]string
}

// ShutdownFunc flushes pending telemetry and closes the collector
// connection. Pass a context that is not already cancelled.
type ShutdownFunc func(context.Context) error

// pipeline holds what Setup built so far, so a failure halfway can unwind
// exactly that.
type pipeline struct {
	conn *grpc.ClientConn
	tp   *sdktrace.TracerProvider
	mp   *sdkmetric.MeterProvider
	lp   *sdklog.LoggerProvider
}

func (p *pipeline) shutdown(ctx context.Context) error {
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	if p.lp != nil {
		if err := p.lp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("logger provider: %w", err))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("collector connection: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Setup installs global tracer, meter and logger providers exporting to
// cfg.OTLPEndpoint. The returned ShutdownFunc is never nil, so callers may
// defer it even when Setup fails.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	if cfg.OTLPEndpoint == "" {
		return noopShutdown, errors.New("telemetry: OTLP endpoint is required")
	}

	res, err := newResource(cfg.ServiceName)
	if err != nil {
		return noopShutdown, err
	}

	p := &pipeline{}
	if p.conn, err = dial(cfg); err != nil {
		return noopShutdown, err
	}
	fail := func(err error) (ShutdownFunc, error) {
		_ = p.shutdown(ctx)
		return noopShutdown, err
	}

	if p.tp, err = newTracerProvider(ctx, p.conn, cfg.Headers, res); err != nil {
		return fail(err)
	}
	if p.mp, err = newMeterProvider(ctx, p.conn, cfg.Headers, res); err != nil {
		return fail(err)
	}
	if p.lp, err = newLoggerProvider(ctx, p.conn, cfg.Headers, res); err != nil {
		return fail(err)
	}

	otel.SetTracerProvider(p.tp)
	otel.SetMeterProvider(p.mp)
	global.SetLoggerProvider(p.lp)
	return p.shutdown, nil
}

// newResource describes this process. NewSchemaless keeps the merge from
// failing when the SDK default resource and our semconv import disagree on
// schema URL.
func newResource(service string) (*resource.Resource, error) {
	if service == "" {
		service = DefaultServiceName
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(semconv.ServiceName(service)))
	if err != nil {
		return nil, fmt.Errorf("building OTel resource: %w", err)
	}
	return res, nil
}

func dial(cfg Config) (*grpc.ClientConn, error) {
	creds := credentials.NewTLS(nil)
	if cfg.Insecure {
		creds = insecure.NewCredentials()
	}
	conn, err := grpc.NewClient(cfg.OTLPEndpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("dialling OTLP collector at %q: %w", cfg.OTLPEndpoint, err)
	}
	return conn, nil
}

func newTracerProvider(ctx context.Context, conn *grpc.ClientConn, headers map[string]string, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn), otlptracegrpc.WithHeaders(headers))
	if err != nil {
		return nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res)), nil
}

func newMeterProvider(ctx context.Context, conn *grpc.ClientConn, headers map[string]string, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn), otlpmetricgrpc.WithHeaders(headers))
	if err != nil {
		return nil, fmt.Errorf("creating OTLP metric exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	), nil
}

func newLoggerProvider(ctx context.Context, conn *grpc.ClientConn, headers map[string]string, res *resource.Resource) (*sdklog.LoggerProvider, error) {
	exp, err := otlploggrpc.New(ctx, otlploggrpc.WithGRPCConn(conn), otlploggrpc.WithHeaders(headers))
	if err != nil {
		return nil, fmt.Errorf("creating OTLP log exporter: %w", err)
	}
	return sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		sdklog.WithResource(res),
	), nil
}

func noopShutdown(context.Context) error { return nil }
