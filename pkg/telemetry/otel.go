// Package telemetry wires OpenTelemetry tracing and Prometheus metrics into
// index builds.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ServiceName is the tracer and resource name used by the indexer.
const ServiceName = "ismn"

// OTLPConfig configures the OpenTelemetry OTLP gRPC exporter.
type OTLPConfig struct {
	Endpoint       string // host:port of the collector
	ServiceName    string
	ServiceVersion string
	Environment    string
	InsecureTLS    bool
	Headers        map[string]string

	BatchTimeout  time.Duration
	MaxBatchSize  int
	MaxQueueSize  int
	ExportTimeout time.Duration

	// SamplingRatio is the fraction of builds traced, 0 to 1.
	SamplingRatio float64
}

// DefaultOTLPConfig returns defaults for a local collector.
func DefaultOTLPConfig() OTLPConfig {
	return OTLPConfig{
		Endpoint:       "localhost:4317",
		ServiceName:    ServiceName,
		ServiceVersion: "dev",
		Environment:    "development",
		InsecureTLS:    true,
		BatchTimeout:   5 * time.Second,
		MaxBatchSize:   512,
		MaxQueueSize:   2048,
		ExportTimeout:  30 * time.Second,
		SamplingRatio:  1.0,
	}
}

// InitOTLP installs a global tracer provider exporting station spans to the
// OTLP gRPC endpoint of cfg. The returned function flushes pending spans and
// closes the exporter.
func InitOTLP(ctx context.Context, cfg OTLPConfig) (func(context.Context) error, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithTimeout(cfg.ExportTimeout),
	}
	if cfg.InsecureTLS {
		opts = append(opts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	if err != nil {
		exporter.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(cfg.BatchTimeout),
			sdktrace.WithMaxExportBatchSize(cfg.MaxBatchSize),
			sdktrace.WithMaxQueueSize(cfg.MaxQueueSize),
			sdktrace.WithExportTimeout(cfg.ExportTimeout),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SamplingRatio)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() { err = tp.Shutdown(ctx) })
		return err
	}, nil
}

// sampler keeps every station span at ratio 1, none at 0.
func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1.0:
		return sdktrace.AlwaysSample()
	case ratio <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// Tracer returns t, or the global tracer when t is nil. Without a
// configured provider the global tracer records nothing.
func Tracer(t trace.Tracer) trace.Tracer {
	if t != nil {
		return t
	}
	return otel.Tracer(ServiceName)
}

// StartStationSpan starts the span covering the scan of one station folder.
func StartStationSpan(ctx context.Context, t trace.Tracer, folder string) (context.Context, trace.Span) {
	return Tracer(t).Start(ctx, "scan_station",
		trace.WithAttributes(attribute.String("ismn.folder", folder)))
}

// EndStationSpan annotates span with the scan outcome and ends it.
func EndStationSpan(span trace.Span, files, errs, warnings int) {
	span.SetAttributes(
		attribute.Int("ismn.files", files),
		attribute.Int("ismn.errors", errs),
		attribute.Int("ismn.warnings", warnings),
	)
	if errs > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d files excluded", errs))
	}
	span.End()
}
