// Package traces wires OpenTelemetry spans through the request path.
package traces

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ipvlabs/vendord"

// Init installs a tracer provider exporting over OTLP gRPC. With an
// empty endpoint it leaves the default no-op provider in place, so
// StartSpan callers need no enabled/disabled branching. The returned
// function flushes and stops the exporter.
func Init(ctx context.Context, otlpEndpoint string, logger *slog.Logger) (func(context.Context) error, error) {
	if otlpEndpoint == "" {
		logger.Info("tracing disabled (no OTEL_EXPORTER_OTLP_ENDPOINT set)")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(otlpEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName("vendord"),
		semconv.ServiceVersion("0.1.0"),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Info("tracing enabled", "endpoint", otlpEndpoint)
	return tp.Shutdown, nil
}

// StartSpan opens a span on the process tracer and tags it with attrs.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// Attribute helpers shared across services so span keys stay uniform.

func LicenseID(id string) attribute.KeyValue {
	return attribute.String("license.id", id)
}

func Domain(domain string) attribute.KeyValue {
	return attribute.String("license.domain", domain)
}

func Provider(name string) attribute.KeyValue {
	return attribute.String("provider", name)
}

func JobID(id string) attribute.KeyValue {
	return attribute.String("job.id", id)
}

func CreditAmount(n int) attribute.KeyValue {
	return attribute.Int("credits.amount", n)
}
