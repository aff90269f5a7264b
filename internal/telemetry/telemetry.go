// Package telemetry wires OpenTelemetry tracing for the pipeline and
// servers. Metrics instruments use the global meter and work whether or not
// tracing is enabled.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

const (
	// ServiceName identifies this service in exported telemetry.
	ServiceName = "releasepulse"

	shutdownTimeout = 5 * time.Second
)

// Config controls trace export.
type Config struct {
	// Enabled turns tracing on. When false Init is a no-op.
	Enabled bool `koanf:"enabled"`
	// Exporter is otlp or stdout. Default otlp.
	Exporter string `koanf:"exporter"`
	// Endpoint is the OTLP/HTTP collector endpoint, host:port.
	Endpoint string `koanf:"endpoint"`
	// Insecure disables TLS on the OTLP exporter.
	Insecure bool `koanf:"insecure"`
	// SampleRate is the parent-based trace sample ratio in [0, 1].
	SampleRate float64 `koanf:"sample_rate"`
}

// DefaultConfig returns tracing defaults: disabled, OTLP to localhost,
// sampling everything.
func DefaultConfig() Config {
	return Config{
		Exporter:   "otlp",
		Endpoint:   "localhost:4318",
		SampleRate: 1.0,
	}
}

// Init installs the global tracer provider and propagator. The returned
// shutdown function flushes pending spans; it is safe to call when tracing
// is disabled.
func Init(ctx context.Context, cfg Config, version string) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "", "otlp":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}
}
